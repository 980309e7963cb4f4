package strategy

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/atr-swing-bot/pkg/feed"
)

// Regime is the market volatility bucket for a date.
type Regime string

const (
	RegimeCalm      Regime = "calm"
	RegimeNormal    Regime = "normal"
	RegimeTurbulent Regime = "turbulent"
)

// DefaultAllowedRegimes excludes turbulent markets.
var DefaultAllowedRegimes = []Regime{RegimeCalm, RegimeNormal}

// SPYVolWindow is the rolling window for benchmark realised volatility.
const SPYVolWindow = 21

// RegimeStatus reports what the regime filter did to a signal.
type RegimeStatus int

const (
	// RegimeApplied means dates outside the allowed regimes were zeroed.
	RegimeApplied RegimeStatus = iota
	// RegimeAllAllowed means every regime was allowed, so nothing was filtered.
	RegimeAllAllowed
	// RegimeEmptySignal means there was nothing to filter.
	RegimeEmptySignal
	// RegimeUnavailable means regime inputs were missing and the signal passed through unfiltered.
	RegimeUnavailable
)

func (s RegimeStatus) String() string {
	switch s {
	case RegimeApplied:
		return "applied"
	case RegimeAllAllowed:
		return "all-allowed"
	case RegimeEmptySignal:
		return "empty-signal"
	case RegimeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// RegimeInputs carries the market series the regime classification needs.
// Either field may be nil, which makes the filter unavailable.
type RegimeInputs struct {
	VIX *feed.Series // daily VIX close
	SPY *feed.Series // daily benchmark close
}

// RegimeSeries is a date-indexed regime classification.
type RegimeSeries struct {
	Dates   []time.Time
	Regimes []Regime
}

// AsOf returns the most recent regime at or before date.
func (r *RegimeSeries) AsOf(date time.Time) (Regime, bool) {
	i := sort.Search(len(r.Dates), func(i int) bool { return r.Dates[i].After(date) })
	if i == 0 {
		return "", false
	}
	return r.Regimes[i-1], true
}

// ComputeRegime classifies each date where both inputs are present:
// calm when both percentile ranks are below 0.33, turbulent when either is above
// 0.66, normal otherwise.
func ComputeRegime(vix, spyVol *feed.Series) *RegimeSeries {
	var dates []time.Time
	var vixVals, volVals []float64
	for i, d := range vix.Dates {
		v := vix.Values[i]
		if math.IsNaN(v) {
			continue
		}
		sv, ok := spyVol.Get(d)
		if !ok {
			continue
		}
		dates = append(dates, d)
		vixVals = append(vixVals, v)
		volVals = append(volVals, sv)
	}

	vixPct := percentileRank(vixVals)
	volPct := percentileRank(volVals)
	out := &RegimeSeries{Dates: dates, Regimes: make([]Regime, len(dates))}
	for i := range dates {
		r := RegimeNormal
		if vixPct[i] < 0.33 && volPct[i] < 0.33 {
			r = RegimeCalm
		}
		if vixPct[i] > 0.66 || volPct[i] > 0.66 {
			r = RegimeTurbulent
		}
		out.Regimes[i] = r
	}
	return out
}

// percentileRank returns average-tie ranks divided by n.
func percentileRank(vals []float64) []float64 {
	n := len(vals)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return vals[idx[a]] < vals[idx[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && vals[idx[j+1]] == vals[idx[i]] {
			j++
		}
		// positions i..j share the average of ranks i+1..j+1
		avg := float64(i+j+2) / 2
		for k := i; k <= j; k++ {
			out[idx[k]] = avg / float64(n)
		}
		i = j + 1
	}
	return out
}

// ApplyRegimeFilter zeroes signal values on dates whose regime is not allowed.
// Dates before the first classified date are zeroed too. When the inputs cannot
// produce a classification the signal is returned unchanged with RegimeUnavailable.
func ApplyRegimeFilter(sig Signal, allowed []Regime, in *RegimeInputs, logger *zap.Logger) (Signal, RegimeStatus) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(sig.Values) == 0 {
		return sig.Clone(), RegimeEmptySignal
	}
	if allowsAll(allowed) {
		return sig.Clone(), RegimeAllAllowed
	}
	if in == nil || in.VIX.Len() == 0 || in.SPY.Len() == 0 {
		logger.Warn("regime filter unavailable, passing signal through",
			zap.Bool("vix", in != nil && in.VIX.Len() > 0),
			zap.Bool("spy", in != nil && in.SPY.Len() > 0))
		return sig.Clone(), RegimeUnavailable
	}

	regimes := ComputeRegime(in.VIX, SPYVolatility(in.SPY, SPYVolWindow))
	if len(regimes.Dates) == 0 {
		logger.Warn("regime filter unavailable, no overlapping VIX and SPY volatility dates")
		return sig.Clone(), RegimeUnavailable
	}

	allowedSet := make(map[Regime]bool, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = true
	}
	out := sig.Clone()
	for i, d := range out.Dates {
		r, ok := regimes.AsOf(d)
		if !ok || !allowedSet[r] {
			out.Values[i] = 0
		}
	}
	return out, RegimeApplied
}

func allowsAll(allowed []Regime) bool {
	var calm, normal, turbulent bool
	for _, r := range allowed {
		switch r {
		case RegimeCalm:
			calm = true
		case RegimeNormal:
			normal = true
		case RegimeTurbulent:
			turbulent = true
		}
	}
	return calm && normal && turbulent
}
