package strategy

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/atr-swing-bot/pkg/feed"
)

// DefaultATRWindow is the rolling window used when none is configured.
const DefaultATRWindow = 14

// ComputeATR returns the Average True Range of h, one value per bar.
//
// True range is max(H-L, |H-prevC|, |L-prevC|), with H-L on the first bar of a run.
// ATR is the simple rolling mean of the true range; the first window-1 values of
// each contiguous run of valid bars are back-filled from the first full window.
// Missing bars (and runs shorter than window) yield NaN.
func ComputeATR(h *feed.History, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("atr window must be >= 1, got %d", window)
	}
	out := nanSlice(h.Len())
	highs, lows, closes := h.Highs(), h.Lows(), h.Closes()

	for _, run := range validRuns(h) {
		from, to := run[0], run[1]
		if to-from < window {
			continue
		}
		hi, lo, cl := highs[from:to], lows[from:to], closes[from:to]

		tr := talib.TRange(hi, lo, cl)
		tr[0] = hi[0] - lo[0]

		sma := talib.Sma(tr, window)
		first := sma[window-1]
		for i := range sma {
			if i < window-1 {
				out[from+i] = first
			} else {
				out[from+i] = sma[i]
			}
		}
	}
	return out, nil
}

// validRuns returns [from, to) index pairs of consecutive non-missing bars.
func validRuns(h *feed.History) [][2]int {
	var runs [][2]int
	start := -1
	for i, b := range h.Bars {
		if b.Missing() {
			if start >= 0 {
				runs = append(runs, [2]int{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, h.Len()})
	}
	return runs
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
