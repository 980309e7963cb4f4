package risk

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// ErrNoReturns is returned when there is nothing to resample.
var ErrNoReturns = errors.New("no returns to resample")

// PathSet holds bootstrapped equity paths, each starting from 1.0 before the first step.
type PathSet struct {
	Equity [][]float64 // [path][day] cumulative growth of 1.0
}

// Terminal returns each path's final return (terminal equity - 1).
func (p *PathSet) Terminal() []float64 {
	out := make([]float64, len(p.Equity))
	for i, path := range p.Equity {
		if len(path) == 0 {
			continue
		}
		out[i] = path[len(path)-1] - 1
	}
	return out
}

// BootstrapPaths resamples returns with replacement into nPaths paths of the same
// length and compounds each into an equity curve. NaN returns are dropped first.
// The same seed always yields the same paths.
func BootstrapPaths(returns []float64, nPaths int, seed uint64) (*PathSet, error) {
	if nPaths <= 0 {
		return nil, fmt.Errorf("path count must be > 0, got %d", nPaths)
	}
	clean := make([]float64, 0, len(returns))
	for _, r := range returns {
		if !math.IsNaN(r) {
			clean = append(clean, r)
		}
	}
	if len(clean) == 0 {
		return nil, ErrNoReturns
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	ps := &PathSet{Equity: make([][]float64, nPaths)}
	for p := range ps.Equity {
		path := make([]float64, len(clean))
		eq := 1.0
		for d := range path {
			eq *= 1 + clean[rng.IntN(len(clean))]
			path[d] = eq
		}
		ps.Equity[p] = path
	}
	return ps, nil
}

// TailRisk is value-at-risk and expected shortfall on terminal return.
type TailRisk struct {
	Level float64
	VaR   float64 // level-quantile of terminal return
	ES    float64 // mean of terminal returns at or below VaR
}

// VaRES computes TailRisk over the terminal returns of paths. The quantile uses
// linear interpolation between order statistics.
func VaRES(paths *PathSet, level float64) (TailRisk, error) {
	if level <= 0 || level >= 1 {
		return TailRisk{}, fmt.Errorf("level must be in (0, 1), got %v", level)
	}
	if paths == nil || len(paths.Equity) == 0 {
		return TailRisk{}, ErrNoReturns
	}
	final := paths.Terminal()
	sort.Float64s(final)

	v := Quantile(final, level)
	sum, n := 0.0, 0
	for _, f := range final {
		if f > v {
			break
		}
		sum += f
		n++
	}
	es := v
	if n > 0 {
		es = sum / float64(n)
	}
	return TailRisk{Level: level, VaR: v, ES: es}, nil
}

// Quantile returns the q-quantile of an ascending slice by linear interpolation.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
