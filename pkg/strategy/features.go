package strategy

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/atr-swing-bot/pkg/feed"
)

// RollingZScore returns (close - rolling mean) / rolling sample stdev over window.
// Undefined points (warm-up, zero stdev, missing bars) are NaN.
func RollingZScore(h *feed.History, window int) []float64 {
	closes := h.Closes()
	out := nanSlice(len(closes))
	if window < 2 {
		return out
	}
	for _, run := range validRuns(h) {
		seg := closes[run[0]:run[1]]
		if len(seg) < window {
			continue
		}
		mean := talib.Sma(seg, window)
		std := sampleStd(seg, window)
		for i := window - 1; i < len(seg); i++ {
			if std[i] > 0 {
				out[run[0]+i] = (seg[i] - mean[i]) / std[i]
			}
		}
	}
	return out
}

// CumulativeReturn returns close[i]/close[i-window] - 1 within each valid run. The
// first day of a run counts as a zero return, so index window-1 of a run is
// close[window-1]/close[0] - 1.
func CumulativeReturn(h *feed.History, window int) []float64 {
	closes := h.Closes()
	out := nanSlice(len(closes))
	if window < 1 {
		return out
	}
	for _, run := range validRuns(h) {
		seg := closes[run[0]:run[1]]
		if len(seg) < window {
			continue
		}
		out[run[0]+window-1] = seg[window-1]/seg[0] - 1
		if len(seg) == window {
			continue
		}
		ratio := talib.Rocr(seg, window)
		for i := window; i < len(seg); i++ {
			out[run[0]+i] = ratio[i] - 1
		}
	}
	return out
}

// VolAdjustedMomentum divides the cumulative return by the rolling sample stdev
// of daily returns over the same window.
func VolAdjustedMomentum(h *feed.History, window int) []float64 {
	cum := CumulativeReturn(h, window)
	out := nanSlice(len(cum))
	if window < 2 {
		return out
	}
	closes := h.Closes()
	for _, run := range validRuns(h) {
		seg := closes[run[0]:run[1]]
		if len(seg) < window {
			continue
		}
		rets := make([]float64, len(seg))
		for i := 1; i < len(seg); i++ {
			rets[i] = seg[i]/seg[i-1] - 1
		}
		std := sampleStd(rets, window)
		for i := window - 1; i < len(seg); i++ {
			if std[i] > 0 && !math.IsNaN(cum[run[0]+i]) {
				out[run[0]+i] = cum[run[0]+i] / std[i]
			}
		}
	}
	return out
}

// SPYVolatility returns the annualised rolling sample stdev of daily returns.
func SPYVolatility(closes *feed.Series, window int) *feed.Series {
	out := &feed.Series{Name: "SPY_vol", Dates: closes.Dates, Values: nanSlice(closes.Len())}
	if window < 2 || closes.Len() <= window {
		return out
	}
	rets := make([]float64, closes.Len()-1)
	for i := 1; i < closes.Len(); i++ {
		rets[i-1] = closes.Values[i]/closes.Values[i-1] - 1
	}
	std := sampleStd(rets, window)
	for i := window - 1; i < len(rets); i++ {
		if !math.IsNaN(std[i]) {
			out.Values[i+1] = std[i] * math.Sqrt(252)
		}
	}
	return out
}

// sampleStd converts talib's population stdev to the n-1 estimator.
// Values before the first full window are NaN.
func sampleStd(in []float64, window int) []float64 {
	out := nanSlice(len(in))
	if window < 2 || len(in) < window {
		return out
	}
	pop := talib.StdDev(in, window, 1.0)
	scale := math.Sqrt(float64(window) / float64(window-1))
	for i := window - 1; i < len(in); i++ {
		out[i] = pop[i] * scale
	}
	return out
}
