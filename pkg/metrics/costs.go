package metrics

import (
	"github.com/shopspring/decimal"

	"github.com/atr-swing-bot/pkg/backtest"
)

// CostModel charges a percentage of traded notional plus a per-share commission on
// both legs of each trade. It is applied to the ledger after the run; the simulated
// cash path itself is frictionless.
type CostModel struct {
	FeesPct      float64
	CommPerShare float64
}

// Commission returns the total cost of a round trip
func (c CostModel) Commission(t backtest.Trade) float64 {
	shares := decimal.NewFromInt(int64(t.Shares))
	notional := shares.Mul(decimal.NewFromFloat(t.EntryPrice)).
		Add(shares.Mul(decimal.NewFromFloat(t.ExitPrice)))

	fees := notional.Mul(decimal.NewFromFloat(c.FeesPct))
	perShare := shares.Mul(decimal.NewFromInt(2)).Mul(decimal.NewFromFloat(c.CommPerShare))
	return fees.Add(perShare).Round(2).InexactFloat64()
}

// Apply returns a copy of trades with Commission and NetPnL filled in.
func (c CostModel) Apply(trades []backtest.Trade) []backtest.Trade {
	out := make([]backtest.Trade, len(trades))
	for i, t := range trades {
		comm := c.Commission(t)
		t.Commission = comm
		t.NetPnL = decimal.NewFromFloat(t.PnL).Sub(decimal.NewFromFloat(comm)).Round(2).InexactFloat64()
		out[i] = t
	}
	return out
}

// TotalCost sums commissions over trades
func (c CostModel) TotalCost(trades []backtest.Trade) float64 {
	total := decimal.Zero
	for _, t := range trades {
		total = total.Add(decimal.NewFromFloat(c.Commission(t)))
	}
	return total.InexactFloat64()
}
