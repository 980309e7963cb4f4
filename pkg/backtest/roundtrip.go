package backtest

import (
	"fmt"
	"sort"
)

// RoundTrips pairs each opening fill with the next closing fill for the same
// symbol and returns the resulting trades ordered by exit date then symbol.
// A closing fill without an open leg, or a mismatched quantity, is an error.
// Open legs left unpaired are ignored.
func RoundTrips(fills []Fill) ([]Trade, error) {
	open := make(map[string]Fill)
	var trades []Trade
	for _, f := range fills {
		if f.Opening {
			if _, dup := open[f.Symbol]; dup {
				return nil, fmt.Errorf("%s: second open leg on %s before close", f.Symbol, f.Date.Format("2006-01-02"))
			}
			open[f.Symbol] = f
			continue
		}
		entry, ok := open[f.Symbol]
		if !ok {
			return nil, fmt.Errorf("%s: closing fill on %s without an open leg", f.Symbol, f.Date.Format("2006-01-02"))
		}
		if entry.Qty != -f.Qty {
			return nil, fmt.Errorf("%s: close qty %d does not offset open qty %d", f.Symbol, f.Qty, entry.Qty)
		}
		delete(open, f.Symbol)

		shares := entry.Qty
		if shares < 0 {
			shares = -shares
		}
		pnl := float64(entry.Qty) * (f.Price - entry.Price)
		trades = append(trades, Trade{
			Symbol:     f.Symbol,
			Direction:  (&Position{Qty: entry.Qty}).Direction(),
			Shares:     shares,
			EntryDate:  entry.Date,
			EntryPrice: entry.Price,
			ExitDate:   f.Date,
			ExitPrice:  f.Price,
			PnL:        pnl,
			NetPnL:     pnl,
			Reason:     f.Reason,
		})
	}
	sort.SliceStable(trades, func(i, j int) bool {
		if !trades[i].ExitDate.Equal(trades[j].ExitDate) {
			return trades[i].ExitDate.Before(trades[j].ExitDate)
		}
		return trades[i].Symbol < trades[j].Symbol
	})
	return trades, nil
}
