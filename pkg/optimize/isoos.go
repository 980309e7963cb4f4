package optimize

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atr-swing-bot/pkg/feed"
	"github.com/atr-swing-bot/pkg/metrics"
)

// Window is an inclusive date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// ISOOSRow compares one saved set on the in-sample and out-of-sample windows.
type ISOOSRow struct {
	Symbol string
	Set    ParamSet
	IS     metrics.Record
	OOS    metrics.Record
}

// EvaluateISOOS applies each saved set unchanged to both windows of every
// instrument. Instruments with no bars in either window are skipped.
func (b *BatchRunner) EvaluateISOOS(ctx context.Context, universe map[string]*feed.History, sets []ParamSet, is, oos Window) ([]ISOOSRow, error) {
	if !is.End.Before(oos.Start) {
		b.logger.Warn("in-sample window overlaps out-of-sample window",
			zap.Time("is_end", is.End),
			zap.Time("oos_start", oos.Start))
	}

	symbols := make([]string, 0, len(universe))
	for s := range universe {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	type pair struct{ is, oos *feed.History }
	var pairs []pair
	for _, s := range symbols {
		p := pair{is: universe[s].Between(is.Start, is.End), oos: universe[s].Between(oos.Start, oos.End)}
		if p.is.Len() == 0 || p.oos.Len() == 0 {
			b.logger.Warn("skipping instrument without data in both windows", zap.String("symbol", s))
			continue
		}
		pairs = append(pairs, p)
	}

	rows := make([]ISOOSRow, len(pairs)*len(sets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, p := range pairs {
		for j, set := range sets {
			slot := i*len(sets) + j
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				isRec, err := b.evaluator.Evaluate(p.is, set)
				if err != nil {
					return fmt.Errorf("%s in-sample %s: %w", p.is.Symbol, set.Key(), err)
				}
				oosRec, err := b.evaluator.Evaluate(p.oos, set)
				if err != nil {
					return fmt.Errorf("%s out-of-sample %s: %w", p.oos.Symbol, set.Key(), err)
				}
				rows[slot] = ISOOSRow{Symbol: p.is.Symbol, Set: set, IS: isRec, OOS: oosRec}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}
