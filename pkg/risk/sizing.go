package risk

import (
	"math"
)

// Direction is the side of a position
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// DirectionOf returns the side of a signed quantity.
func DirectionOf(qty int) Direction {
	if qty < 0 {
		return Short
	}
	return Long
}

// Sign returns +1 for long and -1 for short
func (d Direction) Sign() int {
	if d == Short {
		return -1
	}
	return 1
}

// MaxShares bounds every computed size so a vanishing ATR cannot overflow int.
const MaxShares = 1_000_000_000_000

// riskShares is the unrounded ATR-risk size; 0 for undefined inputs, possibly +Inf.
func riskShares(equity, atr, riskPct float64) float64 {
	if !(atr > 0) || !(equity > 0) || math.IsInf(atr, 0) || math.IsInf(equity, 0) {
		return 0
	}
	return riskPct * equity / (2 * atr)
}

func clampShares(shares float64) int {
	if !(shares > 0) {
		return 0
	}
	if shares > MaxShares {
		return MaxShares
	}
	return int(shares)
}

// PositionSize returns the share count that risks riskPct of equity against a
// 2×ATR adverse move: floor(riskPct*equity / (2*atr)), at most MaxShares.
// Returns 0 for a non-positive or undefined ATR or equity.
func PositionSize(equity, atr, riskPct float64) int {
	return clampShares(math.Floor(riskShares(equity, atr, riskPct)))
}

// LeverageCappedSize caps the risk-based size at the Kelly leverage limit:
// min(floor(risk size), equity*kelly/price), rounded to the nearest share and floored at zero.
// A non-positive price leaves the risk-based size uncapped.
func LeverageCappedSize(equity, atr, price, riskPct, kelly float64) int {
	size := math.Floor(riskShares(equity, atr, riskPct))
	if price > 0 && !math.IsNaN(price) {
		size = math.Min(size, equity*kelly/price)
	}
	return clampShares(math.Round(size))
}

// CalculateStopLoss calculates the stop price for an entry at atrMultiplier×ATR.
// For shorts: stop = entry + (atr * multiplier)
// For longs: stop = entry - (atr * multiplier)
func CalculateStopLoss(entryPrice, atr, atrMultiplier float64, direction Direction) float64 {
	if direction == Short {
		return entryPrice + (atr * atrMultiplier)
	}
	return entryPrice - (atr * atrMultiplier)
}

// IsStopHit reports whether price has crossed the stop strictly against the position.
func IsStopHit(price, stopPrice float64, direction Direction) bool {
	if direction == Short {
		return price > stopPrice
	}
	return price < stopPrice
}
