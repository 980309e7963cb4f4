package optimize

import (
	"github.com/atr-swing-bot/pkg/strategy"
)

// Axis is one searched parameter and its candidate values.
type Axis struct {
	Name   string
	Values []float64
}

// Grid is the search space of one signal family.
type Grid struct {
	Family strategy.Family
	Axes   []Axis
}

// ParamSet is a family plus one concrete parameter assignment.
type ParamSet struct {
	Family strategy.Family
	Params strategy.Params
}

// Key identifies the set across instruments
func (s ParamSet) Key() string {
	return string(s.Family) + ":" + s.Params.Key()
}

// Generator builds the validated signal generator for the set.
func (s ParamSet) Generator() (strategy.Generator, error) {
	return strategy.GeneratorFromParams(s.Family, s.Params)
}

// Points enumerates the cartesian product of the axes. The last axis varies
// fastest, so enumeration order is stable for a given grid.
func (g Grid) Points() []ParamSet {
	if len(g.Axes) == 0 {
		return nil
	}
	total := 1
	for _, a := range g.Axes {
		total *= len(a.Values)
	}
	if total == 0 {
		return nil
	}

	out := make([]ParamSet, 0, total)
	idx := make([]int, len(g.Axes))
	for n := 0; n < total; n++ {
		p := make(strategy.Params, len(g.Axes))
		for i, a := range g.Axes {
			p[a.Name] = a.Values[idx[i]]
		}
		out = append(out, ParamSet{Family: g.Family, Params: p})

		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(g.Axes[i].Values) {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

// MeanReversionGrid is the default z-score search space.
func MeanReversionGrid() Grid {
	return Grid{
		Family: strategy.FamilyMeanReversion,
		Axes: []Axis{
			{Name: "enter_thresh", Values: []float64{-0.5, -1.0}},
			{Name: "window", Values: []float64{20, 40}},
			{Name: "exit_thresh", Values: []float64{0}},
		},
	}
}

// MomentumGrid is the default trailing-return search space.
func MomentumGrid() Grid {
	return Grid{
		Family: strategy.FamilyMomentum,
		Axes: []Axis{
			{Name: "long_thresh", Values: []float64{0.05}},
			{Name: "short_thresh", Values: []float64{-0.05}},
			{Name: "window", Values: []float64{21}},
		},
	}
}

// DefaultGrids returns every family's default grid.
func DefaultGrids() []Grid {
	return []Grid{MeanReversionGrid(), MomentumGrid()}
}

// AllPoints flattens several grids in order.
func AllPoints(grids []Grid) []ParamSet {
	var out []ParamSet
	for _, g := range grids {
		out = append(out, g.Points()...)
	}
	return out
}
