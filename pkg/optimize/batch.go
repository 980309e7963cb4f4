package optimize

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atr-swing-bot/pkg/feed"
	"github.com/atr-swing-bot/pkg/metrics"
)

// BatchRow is the result of one (parameter set, instrument) run.
type BatchRow struct {
	Symbol string
	Set    ParamSet
	metrics.Record
}

// BatchRunner evaluates parameter sets across a universe in parallel.
type BatchRunner struct {
	evaluator *Evaluator
	workers   int
	logger    *zap.Logger
}

// NewBatchRunner creates a runner. workers <= 0 uses GOMAXPROCS.
func NewBatchRunner(ev *Evaluator, workers int, logger *zap.Logger) *BatchRunner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchRunner{evaluator: ev, workers: workers, logger: logger}
}

type job struct {
	h   *feed.History
	set ParamSet
}

// Run evaluates every set on every instrument. Rows come back in a fixed order,
// instruments sorted by symbol and sets in the given order within each, regardless
// of scheduling. Instruments with no bars are skipped.
func (b *BatchRunner) Run(ctx context.Context, universe map[string]*feed.History, sets []ParamSet) ([]BatchRow, error) {
	symbols := make([]string, 0, len(universe))
	for s, h := range universe {
		if h.Len() == 0 {
			b.logger.Warn("skipping instrument with no data", zap.String("symbol", s))
			continue
		}
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	jobs := make([]job, 0, len(symbols)*len(sets))
	for _, s := range symbols {
		for _, set := range sets {
			jobs = append(jobs, job{h: universe[s], set: set})
		}
	}
	rows, err := b.evaluate(ctx, jobs)
	if err != nil {
		return nil, err
	}
	b.logger.Info("batch complete",
		zap.Int("instruments", len(symbols)),
		zap.Int("param_sets", len(sets)),
		zap.Int("rows", len(rows)))
	return rows, nil
}

// evaluate runs jobs with bounded parallelism, each writing only its own slot.
func (b *BatchRunner) evaluate(ctx context.Context, jobs []job) ([]BatchRow, error) {
	rows := make([]BatchRow, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, j := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := b.evaluator.Evaluate(j.h, j.set)
			if err != nil {
				return fmt.Errorf("%s %s: %w", j.h.Symbol, j.set.Key(), err)
			}
			rows[i] = BatchRow{Symbol: j.h.Symbol, Set: j.set, Record: rec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// AggregateRow is a parameter set's mean performance across instruments.
type AggregateRow struct {
	Set         ParamSet
	Instruments int
	MeanSharpe  float64
	MeanReturn  float64
	MeanMaxDD   float64
	MeanCAGR    float64
	TotalTrades int
}

// Aggregate groups rows by parameter set and ranks by mean Sharpe, highest first.
// Equal means keep the order in which the sets first appear.
func Aggregate(rows []BatchRow) []AggregateRow {
	index := make(map[string]int)
	var out []AggregateRow
	for _, r := range rows {
		k := r.Set.Key()
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, AggregateRow{Set: r.Set})
		}
		a := &out[i]
		a.Instruments++
		a.MeanSharpe += r.Sharpe
		a.MeanReturn += r.TotalReturn
		a.MeanMaxDD += r.MaxDrawdown
		a.MeanCAGR += r.CAGR
		a.TotalTrades += r.Trades
	}
	for i := range out {
		n := float64(out[i].Instruments)
		out[i].MeanSharpe /= n
		out[i].MeanReturn /= n
		out[i].MeanMaxDD /= n
		out[i].MeanCAGR /= n
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MeanSharpe > out[j].MeanSharpe })
	return out
}

// TopN returns the parameter sets of the first n ranked rows.
func TopN(ranked []AggregateRow, n int) []ParamSet {
	if n > len(ranked) {
		n = len(ranked)
	}
	if n < 0 {
		n = 0
	}
	out := make([]ParamSet, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].Set
	}
	return out
}
