package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/atr-swing-bot/pkg/backtest"
	"github.com/atr-swing-bot/pkg/metrics"
	"github.com/atr-swing-bot/pkg/optimize"
	"github.com/atr-swing-bot/pkg/risk"
)

// Run kinds
const (
	KindBacktest    = "backtest"
	KindBatch       = "batch"
	KindWalkForward = "walkforward"
)

type Run struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind     string    `gorm:"index;not null"`
	Strategy string    `gorm:"not null"`

	StartDate time.Time
	EndDate   time.Time

	InitialCapital float64 `gorm:"type:decimal(20,2)"`
	FinalEquity    float64 `gorm:"type:decimal(20,2)"`
	TotalReturn    float64
	Sharpe         float64
	MaxDrawdown    float64
	CAGR           float64
	Trades         int
	WinRate        float64

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type TradeRow struct {
	ID         uint      `gorm:"primaryKey"`
	RunID      uuid.UUID `gorm:"type:uuid;index;not null"`
	Symbol     string    `gorm:"index;not null"`
	Direction  string    `gorm:"not null"`
	Shares     int       `gorm:"not null"`
	EntryDate  time.Time `gorm:"index;not null"`
	EntryPrice float64   `gorm:"type:decimal(20,8);not null"`
	ExitDate   time.Time `gorm:"index;not null"`
	ExitPrice  float64   `gorm:"type:decimal(20,8);not null"`
	Reason     string

	PnL        float64 `gorm:"type:decimal(20,2)"`
	Commission float64 `gorm:"type:decimal(20,2)"`
	NetPnL     float64 `gorm:"type:decimal(20,2)"`
}

type BatchResultRow struct {
	ID          uint      `gorm:"primaryKey"`
	RunID       uuid.UUID `gorm:"type:uuid;index;not null"`
	Symbol      string    `gorm:"index;not null"`
	Family      string    `gorm:"not null"`
	Params      string    `gorm:"not null"`
	TotalReturn float64
	Sharpe      float64
	MaxDrawdown float64
	CAGR        float64
	Trades      int
}

type FoldRow struct {
	ID        uint      `gorm:"primaryKey"`
	RunID     uuid.UUID `gorm:"type:uuid;index;not null"`
	Symbol    string    `gorm:"index;not null"`
	ISStart   time.Time
	FoldStart time.Time `gorm:"index;not null"`
	Family    string    `gorm:"not null"`
	Params    string    `gorm:"not null"`
	ISSharpe  float64
	OOSSharpe float64
	OOSReturn float64
	OOSMaxDD  float64
	OOSTrades int
}

// NewRun creates a run header with a fresh ID from a backtest result.
func NewRun(kind, strategy string, res *backtest.Result, rec metrics.Record) *Run {
	run := &Run{
		ID:          uuid.New(),
		Kind:        kind,
		Strategy:    strategy,
		FinalEquity: rec.FinalEquity,
		TotalReturn: rec.TotalReturn,
		Sharpe:      rec.Sharpe,
		MaxDrawdown: rec.MaxDrawdown,
		CAGR:        rec.CAGR,
		Trades:      rec.Trades,
		WinRate:     rec.WinRate,
	}
	if res != nil && len(res.Curve) > 0 {
		run.StartDate = res.Curve[0].Date
		run.EndDate = res.Curve[len(res.Curve)-1].Date
		run.InitialCapital = res.Curve[0].Equity
	}
	return run
}

// NewSweepRun creates a run header for an optimizer sweep, which has no single curve.
func NewSweepRun(kind, strategy string) *Run {
	return &Run{ID: uuid.New(), Kind: kind, Strategy: strategy}
}

func tradeRows(runID uuid.UUID, trades []backtest.Trade) []TradeRow {
	rows := make([]TradeRow, len(trades))
	for i, t := range trades {
		rows[i] = TradeRow{
			RunID:      runID,
			Symbol:     t.Symbol,
			Direction:  string(t.Direction),
			Shares:     t.Shares,
			EntryDate:  t.EntryDate,
			EntryPrice: t.EntryPrice,
			ExitDate:   t.ExitDate,
			ExitPrice:  t.ExitPrice,
			Reason:     string(t.Reason),
			PnL:        t.PnL,
			Commission: t.Commission,
			NetPnL:     t.NetPnL,
		}
	}
	return rows
}

// Trade converts a stored row back to a ledger entry.
func (r TradeRow) Trade() backtest.Trade {
	return backtest.Trade{
		Symbol:     r.Symbol,
		Direction:  risk.Direction(r.Direction),
		Shares:     r.Shares,
		EntryDate:  r.EntryDate,
		EntryPrice: r.EntryPrice,
		ExitDate:   r.ExitDate,
		ExitPrice:  r.ExitPrice,
		PnL:        r.PnL,
		Reason:     backtest.ExitReason(r.Reason),
		Commission: r.Commission,
		NetPnL:     r.NetPnL,
	}
}

func batchRows(runID uuid.UUID, rows []optimize.BatchRow) []BatchResultRow {
	out := make([]BatchResultRow, len(rows))
	for i, r := range rows {
		out[i] = BatchResultRow{
			RunID:       runID,
			Symbol:      r.Symbol,
			Family:      string(r.Set.Family),
			Params:      r.Set.Params.Key(),
			TotalReturn: r.TotalReturn,
			Sharpe:      r.Sharpe,
			MaxDrawdown: r.MaxDrawdown,
			CAGR:        r.CAGR,
			Trades:      r.Trades,
		}
	}
	return out
}

func foldRows(runID uuid.UUID, folds []optimize.Fold) []FoldRow {
	out := make([]FoldRow, len(folds))
	for i, f := range folds {
		out[i] = FoldRow{
			RunID:     runID,
			Symbol:    f.Symbol,
			ISStart:   f.ISStart,
			FoldStart: f.FoldStart,
			Family:    string(f.Set.Family),
			Params:    f.Set.Params.Key(),
			ISSharpe:  f.ISSharpe,
			OOSSharpe: f.OOS.Sharpe,
			OOSReturn: f.OOS.TotalReturn,
			OOSMaxDD:  f.OOS.MaxDrawdown,
			OOSTrades: f.OOS.Trades,
		}
	}
	return out
}
