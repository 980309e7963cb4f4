package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atr-swing-bot/pkg/backtest"
	"github.com/atr-swing-bot/pkg/metrics"
	"github.com/atr-swing-bot/pkg/risk"
	"github.com/atr-swing-bot/pkg/runner"
	"github.com/atr-swing-bot/pkg/store"
)

func main() {
	csvDirFlag := flag.String("csv-dir", "", "Directory containing exported backtest results (default: RESULTS_DIR)")
	equityFlag := flag.String("equity", "", "Equity curve CSV for Monte Carlo tail risk (optional)")
	outputFlag := flag.String("output", "", "Output file path (JSON or HTML, default: stdout)")
	formatFlag := flag.String("format", "json", "Output format: json or html")
	runFlag := flag.String("run", "", "Analyze a saved backtest run from DATABASE_URL instead of CSV files")
	listFlag := flag.Int("list-runs", 0, "List this many recent saved runs and exit")
	flag.Parse()

	env, err := runner.Setup()
	if err != nil {
		log.Fatal(err)
	}
	defer env.Logger.Sync()

	stats := NewAggregateStats()
	if *runFlag != "" || *listFlag > 0 {
		if err := fromStore(env, *runFlag, *listFlag, stats); err != nil {
			log.Fatal(err)
		}
		if *listFlag > 0 {
			return
		}
	} else {
		dir := *csvDirFlag
		if dir == "" {
			dir = env.Cfg.ResultsDir
		}
		fmt.Println("Analyzing backtest results...")
		fmt.Printf("CSV Directory: %s\n", dir)
		if err := fromCSV(env, dir, stats); err != nil {
			log.Fatal(err)
		}
	}

	report := stats.GenerateReport()
	if *equityFlag != "" {
		tail, err := tailRisk(*equityFlag, env.Cfg.MCPaths, env.Cfg.MCSeed, env.Cfg.MCLevel)
		if err != nil {
			env.Logger.Warn("tail risk unavailable", zap.String("file", *equityFlag), zap.Error(err))
		} else {
			report.TailRisk = &tail
		}
	}

	if *outputFlag == "" {
		printReport(report)
		return
	}
	if *formatFlag == "html" {
		err = exportHTML(report, *outputFlag)
	} else {
		err = exportJSON(report, *outputFlag)
	}
	if err != nil {
		log.Fatalf("Failed to export report: %v", err)
	}
	fmt.Printf("Report exported to: %s\n", *outputFlag)
}

func fromCSV(env *runner.Env, dir string, stats *AggregateStats) error {
	files, err := filepath.Glob(filepath.Join(dir, "*_trades.csv"))
	if err != nil {
		return fmt.Errorf("failed to list CSV files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no trade ledgers found in %s", dir)
	}
	for _, file := range files {
		trades, err := backtest.LoadTradesCSV(file)
		if err != nil {
			env.Logger.Warn("failed to load ledger", zap.String("file", file), zap.Error(err))
			continue
		}
		for _, trade := range trades {
			stats.RecordTrade(trade)
		}
	}
	return nil
}

func fromStore(env *runner.Env, runID string, list int, stats *AggregateStats) error {
	if env.Cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	repo, err := store.Open(env.Cfg.DatabaseURL, env.Logger)
	if err != nil {
		return err
	}

	if list > 0 {
		runs, err := repo.RecentRuns("", list)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Printf("%s  %-11s %-16s %s  return %.2f%%, Sharpe %.2f, trades %d\n",
				r.ID, r.Kind, r.Strategy, r.CreatedAt.Format("2006-01-02 15:04"), r.TotalReturn*100, r.Sharpe, r.Trades)
		}
		return nil
	}

	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	run, err := repo.FindRun(id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}
	fmt.Printf("Analyzing run %s (%s, %s)\n", run.ID, run.Kind, run.Strategy)
	trades, err := repo.FindTrades(id)
	if err != nil {
		return err
	}
	for _, trade := range trades {
		stats.RecordTrade(trade)
	}
	return nil
}

// tailRisk bootstraps the daily returns of an exported equity curve.
func tailRisk(path string, paths int, seed uint64, level float64) (risk.TailRisk, error) {
	curve, err := backtest.LoadEquityCSV(path)
	if err != nil {
		return risk.TailRisk{}, err
	}
	if len(curve) < 2 {
		return risk.TailRisk{}, risk.ErrNoReturns
	}
	equity := make([]float64, len(curve))
	for i, p := range curve {
		equity[i] = p.Equity
	}
	ps, err := risk.BootstrapPaths(metrics.DailyReturns(equity), paths, seed)
	if err != nil {
		return risk.TailRisk{}, err
	}
	return risk.VaRES(ps, level)
}
