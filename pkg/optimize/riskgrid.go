package optimize

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atr-swing-bot/pkg/backtest"
	"github.com/atr-swing-bot/pkg/feed"
	"github.com/atr-swing-bot/pkg/metrics"
	"github.com/atr-swing-bot/pkg/strategy"
)

// DefaultRiskPcts and DefaultStopMults are the sizing sweep used by RiskGrid.
var (
	DefaultRiskPcts  = []float64{0.0004, 0.0005, 0.0006, 0.0007}
	DefaultStopMults = []float64{1.5, 2.0, 2.5}
)

// RiskRow is a portfolio run at one risk fraction and stop multiple.
type RiskRow struct {
	RiskPct  float64
	StopMult float64
	metrics.Record
}

// RiskGrid runs the whole universe as one portfolio for every risk fraction ×
// stop multiple, holding the signals fixed. Rows follow riskPcts then stopMults.
func RiskGrid(ctx context.Context, base backtest.Config, histories map[string]*feed.History, signals map[string]strategy.Signal,
	riskPcts, stopMults []float64, riskFree float64, workers int, logger *zap.Logger) ([]RiskRow, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	rows := make([]RiskRow, len(riskPcts)*len(stopMults))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rp := range riskPcts {
		for j, sm := range stopMults {
			slot := i*len(stopMults) + j
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				cfg := base
				cfg.RiskPct, cfg.StopMult = rp, sm
				engine, err := backtest.NewEngine(cfg)
				if err != nil {
					return fmt.Errorf("risk=%v stop=%v: %w", rp, sm, err)
				}
				res, err := engine.Run(histories, signals)
				if err != nil {
					return fmt.Errorf("risk=%v stop=%v: %w", rp, sm, err)
				}
				rows[slot] = RiskRow{RiskPct: rp, StopMult: sm, Record: metrics.Summarize(res, riskFree)}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Info("risk grid complete", zap.Int("rows", len(rows)))
	return rows, nil
}
