package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/atr-swing-bot/pkg/backtest"
	"github.com/atr-swing-bot/pkg/feed"
	"github.com/atr-swing-bot/pkg/metrics"
	"github.com/atr-swing-bot/pkg/optimize"
	"github.com/atr-swing-bot/pkg/risk"
	"github.com/atr-swing-bot/pkg/runner"
	"github.com/atr-swing-bot/pkg/scanner"
	"github.com/atr-swing-bot/pkg/store"
)

func main() {
	tickersFlag := flag.String("tickers", "", "Comma-separated tickers (default: BACKTEST_TICKERS or the default universe)")
	strategyFlag := flag.String("strategy", "mean_reversion", "mean_reversion, momentum, ensemble, cs_momentum or cs_mean_reversion")
	savedFlag := flag.Bool("saved", false, "Use the parameter sets saved by the optimizer")
	savedIndexFlag := flag.Int("saved-index", -1, "Use only this saved parameter set (default: all, combined as an ensemble)")
	longShortFlag := flag.Bool("long-short", false, "Allow short entries")
	regimesFlag := flag.String("regimes", "", "Allowed regimes: comma list of calm,normal,turbulent or all (default: calm,normal)")
	topNFlag := flag.Int("top-n", 5, "Holdings for cross-sectional strategies")
	cashBufferFlag := flag.Bool("cash-buffer", false, "Go flat when the universe trend is negative (cross-sectional)")
	startFlag := flag.String("start", "", "First date (YYYY-MM-DD)")
	endFlag := flag.String("end", "", "Last date (YYYY-MM-DD)")
	accountFlag := flag.Float64("account", 0, "Initial capital (default: INITIAL_CAPITAL)")
	riskFlag := flag.Float64("risk", 0, "Risk fraction per trade (default: RISK_PCT)")
	noThrottleFlag := flag.Bool("no-throttle", false, "Disable the VIX risk throttle")
	saveFlag := flag.Bool("save", false, "Persist the run when DATABASE_URL is set")
	flag.Parse()

	env, err := runner.Setup()
	if err != nil {
		log.Fatal(err)
	}
	defer env.Logger.Sync()

	if *accountFlag > 0 {
		env.Cfg.InitialCapital = *accountFlag
	}
	if *riskFlag > 0 {
		env.Cfg.RiskPct = *riskFlag
	}

	start, err := runner.ParseDate(*startFlag)
	if err != nil {
		log.Fatal(err)
	}
	end, err := runner.ParseDate(*endFlag)
	if err != nil {
		log.Fatal(err)
	}
	allowed, err := runner.ParseRegimes(*regimesFlag)
	if err != nil {
		log.Fatal(err)
	}

	opts := runner.StrategyOptions{
		Name:       *strategyFlag,
		LongShort:  *longShortFlag,
		Allowed:    allowed,
		TopN:       *topNFlag,
		CashBuffer: *cashBufferFlag,
	}
	if *savedFlag {
		sets, err := optimize.LoadParams(env.Cfg.ParamsPath)
		if err != nil {
			log.Fatalf("Failed to load saved parameters: %v", err)
		}
		if *savedIndexFlag >= 0 {
			if *savedIndexFlag >= len(sets) {
				log.Fatalf("saved-index %d out of range (%d sets)", *savedIndexFlag, len(sets))
			}
			sets = sets[*savedIndexFlag : *savedIndexFlag+1]
		}
		opts.Saved = sets
	}

	fmt.Printf("Starting backtest...\n")
	fmt.Printf("Strategy: %s\n", *strategyFlag)
	fmt.Printf("Account Size: $%.2f\n", env.Cfg.InitialCapital)
	fmt.Printf("Risk per trade: %.3f%%\n", env.Cfg.RiskPct*100)
	fmt.Printf("Stop: %.1f x ATR(%d)\n", env.Cfg.StopMult, env.Cfg.ATRWindow)
	fmt.Printf("Long/short: %v\n", *longShortFlag)
	fmt.Println()

	if err := run(env, opts, runner.ParseTickers(*tickersFlag), runner.Range{Start: start, End: end}, !*noThrottleFlag, *saveFlag); err != nil {
		log.Fatalf("Backtest failed: %v", err)
	}
}

func run(env *runner.Env, opts runner.StrategyOptions, tickers []string, r runner.Range, throttle, save bool) error {
	sc, err := runner.BuildStrategy(opts)
	if err != nil {
		return err
	}
	universe, err := env.LoadUniverse(tickers, r)
	if err != nil {
		return err
	}

	vix := env.VIX()
	bench := env.Benchmark()
	gen, err := sc.Generate(universe, env.RegimeInputs(vix, bench), env.Logger)
	if err != nil {
		return fmt.Errorf("failed to generate signals: %w", err)
	}
	for symbol, status := range gen.Regime {
		env.Logger.Debug("regime filter", zap.String("symbol", symbol), zap.Stringer("status", status))
	}

	engineVIX := vix
	if !throttle {
		engineVIX = nil
	}
	engine, err := backtest.NewEngine(env.EngineConfig(engineVIX))
	if err != nil {
		return err
	}
	res, err := engine.Run(universe, gen.Signals)
	if err != nil {
		return err
	}

	costs := metrics.CostModel{FeesPct: env.Cfg.FeesPct, CommPerShare: env.Cfg.CommPerShare}
	if paired, err := backtest.RoundTrips(res.Fills); err != nil || len(paired) != len(res.Trades) {
		env.Logger.Warn("fills do not pair into the trade ledger", zap.Int("trades", len(res.Trades)), zap.Error(err))
	}
	res.Trades = costs.Apply(res.Trades)
	rec := metrics.Summarize(res, env.Cfg.RiskFreeRate)

	printResults(res, rec, costs.TotalCost(res.Trades))
	printConcentration(universe)
	printBenchmarks(env, res, bench)
	printTailRisk(env, res)

	if err := exportResults(env, opts.Name, res, rec); err != nil {
		return err
	}

	if save {
		if env.Cfg.DatabaseURL == "" {
			env.Logger.Warn("save requested but DATABASE_URL is not set")
			return nil
		}
		repo, err := store.Open(env.Cfg.DatabaseURL, env.Logger)
		if err != nil {
			return err
		}
		runRow := store.NewRun(store.KindBacktest, opts.Name, res, rec)
		if err := repo.SaveBacktest(runRow, res.Trades); err != nil {
			return err
		}
		fmt.Printf("Run saved: %s\n", runRow.ID)
	}
	return nil
}

func printResults(res *backtest.Result, rec metrics.Record, totalCost float64) {
	equity := res.Equity()
	fmt.Println("\n=== BACKTEST RESULTS ===")
	fmt.Printf("Period: %s to %s (%d days)\n",
		res.Curve[0].Date.Format(feed.DateLayout),
		res.Curve[len(res.Curve)-1].Date.Format(feed.DateLayout),
		len(res.Curve))
	fmt.Printf("Total Trades: %d\n", rec.Trades)
	fmt.Printf("Final Equity: $%.2f\n", rec.FinalEquity)
	fmt.Printf("Total Return: %.2f%%\n", rec.TotalReturn*100)
	fmt.Printf("CAGR: %.2f%%\n", rec.CAGR*100)
	fmt.Printf("Sharpe: %.2f\n", rec.Sharpe)
	fmt.Printf("Max Drawdown: %.2f%%\n", rec.MaxDrawdown*100)
	if rec.Trades > 0 {
		fmt.Printf("Win Rate: %.2f%%\n", rec.WinRate*100)
		fmt.Printf("Average Net P&L: $%.2f\n", rec.AvgTradePnL)
		fmt.Printf("Total Costs: $%.2f\n", totalCost)
		fmt.Printf("Equity after costs: $%.2f\n", equity[len(equity)-1]-totalCost)
	}
}

func printConcentration(universe map[string]*feed.History) {
	symbols := make([]string, 0, len(universe))
	for s := range universe {
		symbols = append(symbols, s)
	}
	sector, share := scanner.Concentration(symbols)
	fmt.Printf("Largest sector: %s (%.0f%% of %d instruments)\n", sector, share*100, len(symbols))
}

func printBenchmarks(env *runner.Env, res *backtest.Result, bench *feed.Series) {
	dates := res.Dates()
	equity := res.Equity()
	strat := metrics.Compare("Strategy", equity, dates, env.Cfg.RiskFreeRate)
	rows := []metrics.Comparison{strat}

	var periods []metrics.PeriodReturn
	if curve := metrics.BenchmarkCurve(bench, dates); curve != nil {
		rows = append(rows, metrics.Compare(env.Cfg.BenchmarkTicker, curve, dates, env.Cfg.RiskFreeRate))
		periods = metrics.PeriodExcess(equity, curve, dates, metrics.StressPeriods)
	}
	if curve := metrics.EqualWeightCurve(env.SectorSeries(), dates); curve != nil {
		rows = append(rows, metrics.Compare("Sector EW", curve, dates, env.Cfg.RiskFreeRate))
	}

	fmt.Println("\n=== BENCHMARK COMPARISON ===")
	for _, row := range rows {
		fmt.Printf("%-10s CAGR %6.1f%%, Sharpe %5.2f, MaxDD %6.1f%%\n", row.Name+":", row.CAGR*100, row.Sharpe, row.MaxDrawdown*100)
	}
	for _, p := range periods {
		fmt.Printf("%s to %s: Strategy %.1f%%, %s %.1f%%, Excess %.1f%%\n",
			p.Period.Start.Format(feed.DateLayout), p.Period.End.Format(feed.DateLayout),
			p.Strategy*100, env.Cfg.BenchmarkTicker, p.Benchmark*100, p.Excess*100)
	}
	if len(rows) > 1 {
		fmt.Printf("Meets targets: %v\n", metrics.DefaultTargets().Meets(strat, periods))
	}
}

func printTailRisk(env *runner.Env, res *backtest.Result) {
	paths, err := risk.BootstrapPaths(metrics.DailyReturns(res.Equity()), env.Cfg.MCPaths, env.Cfg.MCSeed)
	if err != nil {
		if !errors.Is(err, risk.ErrNoReturns) {
			env.Logger.Warn("monte carlo failed", zap.Error(err))
		}
		return
	}
	tail, err := risk.VaRES(paths, env.Cfg.MCLevel)
	if err != nil {
		env.Logger.Warn("tail risk failed", zap.Error(err))
		return
	}
	fmt.Println("\n=== MONTE CARLO ===")
	fmt.Printf("Paths: %d (seed %d)\n", env.Cfg.MCPaths, env.Cfg.MCSeed)
	fmt.Printf("VaR %.0f%%: %.2f%%\n", tail.Level*100, tail.VaR*100)
	fmt.Printf("Expected Shortfall: %.2f%%\n", tail.ES*100)
}

func exportResults(env *runner.Env, name string, res *backtest.Result, rec metrics.Record) error {
	stamp := time.Now().Format("20060102_150405")
	base := fmt.Sprintf("backtest_%s_%s_%.1fpct", stamp, name, rec.TotalReturn*100)

	tradesPath := filepath.Join(env.Cfg.ResultsDir, base+"_trades.csv")
	if err := backtest.ExportTradesCSV(tradesPath, res.Trades); err != nil {
		return err
	}
	equityPath := filepath.Join(env.Cfg.ResultsDir, base+"_equity.csv")
	if err := backtest.ExportEquityCSV(equityPath, res.Curve); err != nil {
		return err
	}
	fmt.Printf("\nResults exported to: %s\n", tradesPath)
	fmt.Printf("Equity curve exported to: %s\n", equityPath)
	return nil
}
