package optimize

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/atr-swing-bot/pkg/feed"
	"github.com/atr-swing-bot/pkg/metrics"
)

// Default fold lengths: two years in-sample, one quarter out-of-sample.
const (
	DefaultISDays  = 504
	DefaultOOSDays = 63
)

// Fold is one walk-forward step: the set chosen in-sample and how it did
// out-of-sample.
type Fold struct {
	Symbol    string
	ISStart   time.Time
	FoldStart time.Time // first out-of-sample date
	Set       ParamSet
	ISSharpe  float64
	OOS       metrics.Record
}

// WalkForward fits the grid on a rolling isDays window and scores the winner,
// un-refit, on the next oosDays. The window slides by oosDays until the next
// in-sample plus out-of-sample span would run past the data, so a history
// shorter than isDays+oosDays yields no folds and no error.
//
// The in-sample winner is the highest Sharpe; on ties the earlier grid point wins.
func (b *BatchRunner) WalkForward(ctx context.Context, h *feed.History, grid Grid, isDays, oosDays int) ([]Fold, error) {
	if isDays < 1 || oosDays < 1 {
		return nil, fmt.Errorf("walk-forward windows must be positive, got is=%d oos=%d", isDays, oosDays)
	}
	points := grid.Points()
	if len(points) == 0 {
		return nil, fmt.Errorf("walk-forward grid for %s is empty", grid.Family)
	}

	folds := []Fold{}
	for start := 0; start+isDays+oosDays <= h.Len(); start += oosDays {
		is := h.Slice(start, start+isDays)
		oos := h.Slice(start+isDays, start+isDays+oosDays)

		jobs := make([]job, len(points))
		for i, p := range points {
			jobs[i] = job{h: is, set: p}
		}
		rows, err := b.evaluate(ctx, jobs)
		if err != nil {
			return nil, err
		}

		best, bestSharpe := -1, math.Inf(-1)
		for i, r := range rows {
			if r.Sharpe > bestSharpe {
				best, bestSharpe = i, r.Sharpe
			}
		}
		if best < 0 {
			continue
		}

		rec, err := b.evaluator.Evaluate(oos, points[best])
		if err != nil {
			return nil, fmt.Errorf("%s oos fold %s: %w", h.Symbol, oos.Bars[0].Date.Format(feed.DateLayout), err)
		}
		fold := Fold{
			Symbol:    h.Symbol,
			ISStart:   is.Bars[0].Date,
			FoldStart: oos.Bars[0].Date,
			Set:       points[best],
			ISSharpe:  bestSharpe,
			OOS:       rec,
		}
		b.logger.Debug("walk-forward fold",
			zap.String("symbol", h.Symbol),
			zap.Time("fold_start", fold.FoldStart),
			zap.String("params", fold.Set.Key()),
			zap.Float64("is_sharpe", bestSharpe),
			zap.Float64("oos_sharpe", rec.Sharpe))
		folds = append(folds, fold)
	}
	return folds, nil
}
