package metrics

import (
	"math"
	"time"

	"github.com/atr-swing-bot/pkg/feed"
)

// Comparison is one row of a strategy-versus-benchmark table.
type Comparison struct {
	Name        string
	Sharpe      float64
	CAGR        float64
	MaxDrawdown float64
}

// BenchmarkCurve reindexes closes onto dates (forward then backward filled) and
// normalises it to start at 1. Returns nil when the series has no usable value.
func BenchmarkCurve(closes *feed.Series, dates []time.Time) []float64 {
	out := make([]float64, len(dates))
	first := math.NaN()
	for i, d := range dates {
		v, ok := closes.AsOf(d)
		if !ok {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
		if math.IsNaN(first) {
			first = v
		}
	}
	if math.IsNaN(first) || first == 0 {
		return nil
	}
	for i := range out {
		if math.IsNaN(out[i]) {
			out[i] = first
		}
		out[i] /= first
	}
	return out
}

// EqualWeightCurve averages several normalised benchmark curves.
func EqualWeightCurve(series []*feed.Series, dates []time.Time) []float64 {
	var curves [][]float64
	for _, s := range series {
		if c := BenchmarkCurve(s, dates); c != nil {
			curves = append(curves, c)
		}
	}
	if len(curves) == 0 {
		return nil
	}
	out := make([]float64, len(dates))
	for i := range out {
		for _, c := range curves {
			out[i] += c[i]
		}
		out[i] /= float64(len(curves))
	}
	return out
}

// Compare builds the comparison row for an equity curve.
func Compare(name string, equity []float64, dates []time.Time, riskFree float64) Comparison {
	return Comparison{
		Name:        name,
		Sharpe:      Sharpe(DailyReturns(equity), riskFree),
		CAGR:        CAGR(equity, dates),
		MaxDrawdown: MaxDrawdown(equity),
	}
}

// Period is an inclusive date range used for stress comparisons.
type Period struct {
	Name  string
	Start time.Time
	End   time.Time
}

// StressPeriods are the drawdown windows checked against the benchmark.
var StressPeriods = []Period{
	{Name: "covid-crash", Start: time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2020, 4, 30, 0, 0, 0, 0, time.UTC)},
	{Name: "2022-bear", Start: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)},
}

// PeriodReturn is strategy versus benchmark return over one period.
type PeriodReturn struct {
	Period    Period
	Strategy  float64
	Benchmark float64
	Excess    float64
}

// PeriodExcess compares returns over each period that overlaps dates. Periods with
// no dates in range are omitted.
func PeriodExcess(equity, bench []float64, dates []time.Time, periods []Period) []PeriodReturn {
	var out []PeriodReturn
	for _, p := range periods {
		first, last := -1, -1
		for i, d := range dates {
			if d.Before(p.Start) || d.After(p.End) {
				continue
			}
			if first < 0 {
				first = i
			}
			last = i
		}
		if first < 0 || equity[first] <= 0 || bench[first] <= 0 {
			continue
		}
		s := equity[last]/equity[first] - 1
		b := bench[last]/bench[first] - 1
		out = append(out, PeriodReturn{Period: p, Strategy: s, Benchmark: b, Excess: s - b})
	}
	return out
}

// Targets are the pass marks for a strategy to be considered viable.
type Targets struct {
	MinSharpe        float64
	MaxDrawdown      float64 // drawdown must stay at or above this (negative) value
	MinExcessPeriods int
}

// DefaultTargets requires Sharpe 0.7, drawdown no worse than 15% and beating the
// benchmark in both stress periods.
func DefaultTargets() Targets {
	return Targets{MinSharpe: 0.70, MaxDrawdown: -0.15, MinExcessPeriods: 2}
}

// Meets reports whether a run clears every target.
func (t Targets) Meets(row Comparison, periods []PeriodReturn) bool {
	beat := 0
	for _, p := range periods {
		if p.Excess > 0 {
			beat++
		}
	}
	return row.Sharpe >= t.MinSharpe && row.MaxDrawdown >= t.MaxDrawdown && beat >= t.MinExcessPeriods
}
