package backtest

import (
	"time"

	"github.com/atr-swing-bot/pkg/risk"
)

// ExitReason represents why a position was closed
type ExitReason string

const (
	ExitReasonStopLoss ExitReason = "Stop Loss"
	ExitReasonEndOfRun ExitReason = "End of Run"
)

// Position is an open holding. Qty is signed: positive long, negative short.
type Position struct {
	Symbol     string
	Qty        int
	EntryPrice float64
	EntryDate  time.Time
}

// Direction returns the side of the position
func (p *Position) Direction() risk.Direction {
	return risk.DirectionOf(p.Qty)
}

// Trade is a completed round trip.
type Trade struct {
	Symbol     string
	Direction  risk.Direction
	Shares     int // always positive
	EntryDate  time.Time
	EntryPrice float64
	ExitDate   time.Time
	ExitPrice  float64
	PnL        float64 // gross, before costs
	Reason     ExitReason

	// Filled in by a cost model after the run; zero otherwise.
	Commission float64
	NetPnL     float64
}

// Fill is one executed leg. Qty is signed from the account's view: buys positive, sells negative.
type Fill struct {
	Symbol  string
	Date    time.Time
	Qty     int
	Price   float64
	Opening bool
	Reason  ExitReason // set on closing fills
}

// EquityPoint is the marked-to-market account state at the end of a day.
type EquityPoint struct {
	Date     time.Time
	Equity   float64
	Cash     float64
	Exposure float64 // gross |qty|×price of open positions
}

// Result holds everything a run produced.
type Result struct {
	Curve     []EquityPoint
	Trades    []Trade
	Fills     []Fill
	FinalCash float64
}

// Equity returns the equity column of the curve
func (r *Result) Equity() []float64 {
	out := make([]float64, len(r.Curve))
	for i, p := range r.Curve {
		out[i] = p.Equity
	}
	return out
}

// Dates returns the date column of the curve
func (r *Result) Dates() []time.Time {
	out := make([]time.Time, len(r.Curve))
	for i, p := range r.Curve {
		out[i] = p.Date
	}
	return out
}
