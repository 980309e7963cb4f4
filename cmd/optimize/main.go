package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"go.uber.org/zap"

	"github.com/atr-swing-bot/pkg/backtest"
	"github.com/atr-swing-bot/pkg/feed"
	"github.com/atr-swing-bot/pkg/optimize"
	"github.com/atr-swing-bot/pkg/runner"
	"github.com/atr-swing-bot/pkg/store"
	"github.com/atr-swing-bot/pkg/strategy"
)

type options struct {
	mode     string
	tickers  []string
	r        runner.Range
	family   string
	topN     int
	is       optimize.Window
	oos      optimize.Window
	strategy string
	save     bool
}

func main() {
	modeFlag := flag.String("mode", "batch", "batch, walkforward, isoos or riskgrid")
	tickersFlag := flag.String("tickers", "", "Comma-separated tickers (default: BACKTEST_TICKERS or the default universe)")
	startFlag := flag.String("start", "", "First date (YYYY-MM-DD)")
	endFlag := flag.String("end", "", "Last date (YYYY-MM-DD)")
	familyFlag := flag.String("family", "", "Restrict the grid to mean_reversion or momentum (default: both)")
	topNFlag := flag.Int("top-n", 0, "Parameter sets to save after a batch run (default: TOP_N)")
	isStartFlag := flag.String("is-start", "", "In-sample start for isoos mode")
	isEndFlag := flag.String("is-end", "", "In-sample end for isoos mode")
	oosStartFlag := flag.String("oos-start", "", "Out-of-sample start for isoos mode")
	oosEndFlag := flag.String("oos-end", "", "Out-of-sample end for isoos mode")
	strategyFlag := flag.String("strategy", "mean_reversion", "Strategy for riskgrid mode")
	saveFlag := flag.Bool("save", false, "Persist batch and walk-forward results when DATABASE_URL is set")
	flag.Parse()

	env, err := runner.Setup()
	if err != nil {
		log.Fatal(err)
	}
	defer env.Logger.Sync()

	opts := options{
		mode:     *modeFlag,
		tickers:  runner.ParseTickers(*tickersFlag),
		family:   *familyFlag,
		topN:     *topNFlag,
		strategy: *strategyFlag,
		save:     *saveFlag,
	}
	if opts.topN <= 0 {
		opts.topN = env.Cfg.TopN
	}
	dates := []struct {
		flag string
		dst  *time.Time
	}{
		{*startFlag, &opts.r.Start}, {*endFlag, &opts.r.End},
		{*isStartFlag, &opts.is.Start}, {*isEndFlag, &opts.is.End},
		{*oosStartFlag, &opts.oos.Start}, {*oosEndFlag, &opts.oos.End},
	}
	for _, d := range dates {
		if *d.dst, err = runner.ParseDate(d.flag); err != nil {
			log.Fatal(err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, env, opts); err != nil {
		log.Fatalf("Optimization failed: %v", err)
	}
}

func grids(family string) ([]optimize.Grid, error) {
	switch family {
	case "":
		return optimize.DefaultGrids(), nil
	case string(strategy.FamilyMeanReversion):
		return []optimize.Grid{optimize.MeanReversionGrid()}, nil
	case string(strategy.FamilyMomentum):
		return []optimize.Grid{optimize.MomentumGrid()}, nil
	}
	return nil, fmt.Errorf("%w: %q", strategy.ErrUnknownFamily, family)
}

func run(ctx context.Context, env *runner.Env, opts options) error {
	gs, err := grids(opts.family)
	if err != nil {
		return err
	}
	universe, err := env.LoadUniverse(opts.tickers, opts.r)
	if err != nil {
		return err
	}

	cfg := env.EngineConfig(nil)
	engine, err := backtest.NewEngine(cfg)
	if err != nil {
		return err
	}
	ev := optimize.NewEvaluator(engine, env.Cfg.RiskFreeRate, env.Logger)
	br := optimize.NewBatchRunner(ev, env.Cfg.Workers, env.Logger)

	start := time.Now()
	defer func() {
		env.Logger.Info("optimization finished", zap.String("mode", opts.mode), zap.Duration("elapsed", time.Since(start)))
	}()

	switch opts.mode {
	case "batch":
		return runBatch(ctx, env, br, universe, optimize.AllPoints(gs), opts)
	case "walkforward":
		return runWalkForward(ctx, env, br, universe, gs, opts)
	case "isoos":
		return runISOOS(ctx, env, br, universe, opts)
	case "riskgrid":
		return runRiskGrid(ctx, env, universe, opts)
	}
	return fmt.Errorf("unknown mode %q", opts.mode)
}

func runBatch(ctx context.Context, env *runner.Env, br *optimize.BatchRunner, universe map[string]*feed.History, sets []optimize.ParamSet, opts options) error {
	fmt.Printf("Evaluating %d parameter sets on %d instruments...\n", len(sets), len(universe))
	rows, err := br.Run(ctx, universe, sets)
	if err != nil {
		return err
	}
	ranked := optimize.Aggregate(rows)

	fmt.Println("\n=== TOP PARAMETER SETS ===")
	for i, row := range ranked {
		if i >= opts.topN {
			break
		}
		fmt.Printf("%d. %s  Sharpe %.2f, Return %.2f%%, MaxDD %.2f%%, Trades %d\n",
			i+1, row.Set.Key(), row.MeanSharpe, row.MeanReturn*100, row.MeanMaxDD*100, row.TotalTrades)
	}

	best := optimize.TopN(ranked, opts.topN)
	if err := optimize.SaveParams(env.Cfg.ParamsPath, best); err != nil {
		return err
	}
	fmt.Printf("\nSaved %d parameter sets to %s\n", len(best), env.Cfg.ParamsPath)

	if err := writeTable(env, "batch", optimize.BatchFrame(rows)); err != nil {
		return err
	}
	if err := writeTable(env, "batch_ranked", optimize.AggregateFrame(ranked)); err != nil {
		return err
	}

	if repo := openStore(env, opts.save); repo != nil {
		runRow := store.NewSweepRun(store.KindBatch, familyName(opts.family))
		if err := repo.SaveBatch(runRow, rows); err != nil {
			return err
		}
		fmt.Printf("Run saved: %s\n", runRow.ID)
	}
	return nil
}

func runWalkForward(ctx context.Context, env *runner.Env, br *optimize.BatchRunner, universe map[string]*feed.History, gs []optimize.Grid, opts options) error {
	symbols := make([]string, 0, len(universe))
	for s := range universe {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var folds []optimize.Fold
	for _, g := range gs {
		for _, symbol := range symbols {
			out, err := br.WalkForward(ctx, universe[symbol], g, env.Cfg.ISDays, env.Cfg.OOSDays)
			if err != nil {
				return err
			}
			if len(out) == 0 {
				env.Logger.Warn("not enough history for walk-forward",
					zap.String("symbol", symbol), zap.Int("bars", universe[symbol].Len()))
			}
			folds = append(folds, out...)
		}
	}

	fmt.Println("\n=== WALK-FORWARD ===")
	for _, f := range folds {
		fmt.Printf("%s %s  %s  IS Sharpe %.2f  OOS Sharpe %.2f, Return %.2f%%\n",
			f.Symbol, f.FoldStart.Format("2006-01-02"), f.Set.Key(), f.ISSharpe, f.OOS.Sharpe, f.OOS.TotalReturn*100)
	}
	if len(folds) == 0 {
		fmt.Println("No folds: histories are shorter than one in-sample plus out-of-sample window")
		return nil
	}
	if err := writeTable(env, "walkforward", optimize.FoldFrame(folds)); err != nil {
		return err
	}

	if repo := openStore(env, opts.save); repo != nil {
		runRow := store.NewSweepRun(store.KindWalkForward, familyName(opts.family))
		if err := repo.SaveFolds(runRow, folds); err != nil {
			return err
		}
		fmt.Printf("Run saved: %s\n", runRow.ID)
	}
	return nil
}

func runISOOS(ctx context.Context, env *runner.Env, br *optimize.BatchRunner, universe map[string]*feed.History, opts options) error {
	if opts.is.Start.IsZero() || opts.is.End.IsZero() || opts.oos.Start.IsZero() || opts.oos.End.IsZero() {
		return fmt.Errorf("isoos mode needs -is-start, -is-end, -oos-start and -oos-end")
	}
	sets, err := optimize.LoadParams(env.Cfg.ParamsPath)
	if err != nil {
		return fmt.Errorf("failed to load saved parameters: %w", err)
	}
	rows, err := br.EvaluateISOOS(ctx, universe, sets, opts.is, opts.oos)
	if err != nil {
		return err
	}

	fmt.Println("\n=== IN-SAMPLE vs OUT-OF-SAMPLE ===")
	for _, row := range rows {
		fmt.Printf("%s %s  IS Sharpe %.2f  OOS Sharpe %.2f\n", row.Symbol, row.Set.Key(), row.IS.Sharpe, row.OOS.Sharpe)
	}
	if len(rows) == 0 {
		return nil
	}
	return writeTable(env, "isoos", optimize.ISOOSFrame(rows))
}

func runRiskGrid(ctx context.Context, env *runner.Env, universe map[string]*feed.History, opts options) error {
	sc, err := runner.BuildStrategy(runner.StrategyOptions{Name: opts.strategy, TopN: opts.topN})
	if err != nil {
		return err
	}
	vix := env.VIX()
	gen, err := sc.Generate(universe, env.RegimeInputs(vix, env.Benchmark()), env.Logger)
	if err != nil {
		return err
	}
	rows, err := optimize.RiskGrid(ctx, env.EngineConfig(vix), universe, gen.Signals,
		optimize.DefaultRiskPcts, optimize.DefaultStopMults, env.Cfg.RiskFreeRate, env.Cfg.Workers, env.Logger)
	if err != nil {
		return err
	}

	fmt.Println("\n=== RISK GRID ===")
	for _, row := range rows {
		fmt.Printf("risk %.4f  stop %.1f  Sharpe %.2f, Return %.2f%%, MaxDD %.2f%%\n",
			row.RiskPct, row.StopMult, row.Sharpe, row.TotalReturn*100, row.MaxDrawdown*100)
	}
	return writeTable(env, "riskgrid", optimize.RiskFrame(rows))
}

func writeTable(env *runner.Env, name string, df dataframe.DataFrame) error {
	path := filepath.Join(env.Cfg.ResultsDir, fmt.Sprintf("%s_%s.csv", name, time.Now().Format("20060102_150405")))
	if err := optimize.WriteTableCSV(path, df); err != nil {
		return err
	}
	fmt.Printf("Table written to: %s\n", path)
	return nil
}

func openStore(env *runner.Env, save bool) *store.Repository {
	if !save {
		return nil
	}
	if env.Cfg.DatabaseURL == "" {
		env.Logger.Warn("save requested but DATABASE_URL is not set")
		return nil
	}
	repo, err := store.Open(env.Cfg.DatabaseURL, env.Logger)
	if err != nil {
		env.Logger.Error("failed to open result store", zap.Error(err))
		return nil
	}
	return repo
}

func familyName(family string) string {
	if family == "" {
		return "all"
	}
	return family
}
