package metrics

import (
	"math"
	"time"

	"github.com/atr-swing-bot/pkg/backtest"
)

// TradingDays annualises daily statistics.
const TradingDays = 252

// constTol is the spread below which returns count as constant, so float noise on a
// geometric curve does not produce an unbounded Sharpe.
const constTol = 1e-12

// DailyReturns returns simple day-over-day returns of equity, one fewer than the
// curve has points. A non-positive prior value yields 0 for that day.
func DailyReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] > 0 {
			out[i-1] = equity[i]/equity[i-1] - 1
		}
	}
	return out
}

// Sharpe returns the annualised Sharpe ratio of daily returns in excess of a daily
// risk-free rate, using the population standard deviation. Constant or empty
// returns give 0.
func Sharpe(returns []float64, riskFree float64) float64 {
	n := len(returns)
	if n == 0 {
		return 0
	}
	mean := 0.0
	constant := true
	for i, r := range returns {
		mean += r - riskFree
		if i > 0 && math.Abs(r-returns[0]) > constTol*math.Max(1, math.Abs(returns[0])) {
			constant = false
		}
	}
	if constant {
		return 0
	}
	mean /= float64(n)

	variance := 0.0
	for _, r := range returns {
		d := r - riskFree - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(n))
	if std <= constTol || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(TradingDays)
}

// MaxDrawdown returns the worst peak-to-trough decline as a non-positive fraction.
func MaxDrawdown(equity []float64) float64 {
	worst := 0.0
	peak := math.Inf(-1)
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := v/peak - 1; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// CAGR returns the compound annual growth rate between the first and last points,
// measuring years as calendar days / 365.25. It returns 0 for a non-positive start
// or a zero or backwards span, and -1 when the end value is non-positive.
func CAGR(equity []float64, dates []time.Time) float64 {
	if len(equity) == 0 || len(dates) != len(equity) {
		return 0
	}
	start, end := equity[0], equity[len(equity)-1]
	if start <= 0 {
		return 0
	}
	if end <= 0 {
		return -1
	}
	days := dates[len(dates)-1].Sub(dates[0]).Hours() / 24
	days = math.Floor(days)
	if days <= 0 {
		return 0
	}
	years := days / 365.25
	return math.Pow(end/start, 1/years) - 1
}

// Stats summarises a trade ledger.
type Stats struct {
	Count   int
	Wins    int
	WinRate float64 // 0 when there are no trades
	AvgPnL  float64 // 0 when there are no trades
	Total   float64
}

// TradeStats computes count, win rate and average net PnL.
func TradeStats(trades []backtest.Trade) Stats {
	s := Stats{Count: len(trades)}
	if s.Count == 0 {
		return s
	}
	for _, t := range trades {
		if t.NetPnL > 0 {
			s.Wins++
		}
		s.Total += t.NetPnL
	}
	s.WinRate = float64(s.Wins) / float64(s.Count)
	s.AvgPnL = s.Total / float64(s.Count)
	return s
}

// Record is the metric set reported for one run.
type Record struct {
	TotalReturn float64 `json:"total_return"`
	Sharpe      float64 `json:"sharpe"`
	MaxDrawdown float64 `json:"max_drawdown"`
	CAGR        float64 `json:"cagr"`
	Trades      int     `json:"trades"`
	WinRate     float64 `json:"win_rate"`
	AvgTradePnL float64 `json:"avg_trade_pnl"`
	FinalEquity float64 `json:"final_equity"`
}

// Summarize computes the standard Record for a run.
func Summarize(res *backtest.Result, riskFree float64) Record {
	equity := res.Equity()
	if len(equity) == 0 {
		return Record{}
	}
	stats := TradeStats(res.Trades)
	rec := Record{
		Sharpe:      Sharpe(DailyReturns(equity), riskFree),
		MaxDrawdown: MaxDrawdown(equity),
		CAGR:        CAGR(equity, res.Dates()),
		Trades:      stats.Count,
		WinRate:     stats.WinRate,
		AvgTradePnL: stats.AvgPnL,
		FinalEquity: equity[len(equity)-1],
	}
	if equity[0] > 0 {
		rec.TotalReturn = equity[len(equity)-1]/equity[0] - 1
	}
	return rec
}
