package main

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"sort"
	"strings"

	"github.com/atr-swing-bot/pkg/backtest"
	"github.com/atr-swing-bot/pkg/risk"
	"github.com/atr-swing-bot/pkg/scanner"
)

type bucket struct{ Wins, Losses, Total int }

func (b *bucket) add(win bool) {
	b.Total++
	if win {
		b.Wins++
	} else {
		b.Losses++
	}
}

func (b bucket) winRate() float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Wins) / float64(b.Total) * 100
}

// AggregateStats accumulates trade statistics across ledger files.
type AggregateStats struct {
	TotalTrades int
	TotalWins   int
	TotalLosses int
	TotalPnL    float64
	TotalCosts  float64
	HoldingDays int
	sumWin      float64
	sumLoss     float64
	bySector    map[string]*bucket
	byReason    map[string]*bucket
	byDirection map[string]*bucket
	BestTrade   *backtest.Trade
	WorstTrade  *backtest.Trade
}

// NewAggregateStats creates a new aggregate stats tracker
func NewAggregateStats() *AggregateStats {
	return &AggregateStats{
		bySector:    make(map[string]*bucket),
		byReason:    make(map[string]*bucket),
		byDirection: make(map[string]*bucket),
	}
}

func record(m map[string]*bucket, key string, win bool) {
	b, ok := m[key]
	if !ok {
		b = &bucket{}
		m[key] = b
	}
	b.add(win)
}

// RecordTrade adds one trade. Wins are judged on net P&L.
func (as *AggregateStats) RecordTrade(trade backtest.Trade) {
	as.TotalTrades++
	as.TotalPnL += trade.NetPnL
	as.TotalCosts += trade.Commission
	as.HoldingDays += int(trade.ExitDate.Sub(trade.EntryDate).Hours() / 24)

	win := trade.NetPnL > 0
	if win {
		as.TotalWins++
		as.sumWin += trade.NetPnL
	} else {
		as.TotalLosses++
		as.sumLoss += trade.NetPnL
	}
	if as.BestTrade == nil || trade.NetPnL > as.BestTrade.NetPnL {
		t := trade
		as.BestTrade = &t
	}
	if as.WorstTrade == nil || trade.NetPnL < as.WorstTrade.NetPnL {
		t := trade
		as.WorstTrade = &t
	}

	record(as.bySector, scanner.GetSector(trade.Symbol), win)
	record(as.byReason, string(trade.Reason), win)
	record(as.byDirection, string(trade.Direction), win)
}

// Report is the analysis output.
type Report struct {
	TotalTrades        int                `json:"total_trades"`
	TotalWins          int                `json:"total_wins"`
	TotalLosses        int                `json:"total_losses"`
	WinRate            float64            `json:"win_rate"`
	TotalPnL           float64            `json:"total_pnl"`
	TotalCosts         float64            `json:"total_costs"`
	AverageWin         float64            `json:"average_win"`
	AverageLoss        float64            `json:"average_loss"`
	AverageHoldingDays float64            `json:"average_holding_days"`
	WinRateBySector    map[string]float64 `json:"win_rate_by_sector"`
	WinRateByReason    map[string]float64 `json:"win_rate_by_reason"`
	WinRateByDirection map[string]float64 `json:"win_rate_by_direction"`
	BestTrade          *backtest.Trade    `json:"best_trade,omitempty"`
	WorstTrade         *backtest.Trade    `json:"worst_trade,omitempty"`
	TailRisk           *risk.TailRisk     `json:"tail_risk,omitempty"`
}

func rates(m map[string]*bucket) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, b := range m {
		out[k] = b.winRate()
	}
	return out
}

// GenerateReport generates a report from aggregated stats
func (as *AggregateStats) GenerateReport() *Report {
	report := &Report{
		TotalTrades:        as.TotalTrades,
		TotalWins:          as.TotalWins,
		TotalLosses:        as.TotalLosses,
		TotalPnL:           as.TotalPnL,
		TotalCosts:         as.TotalCosts,
		WinRateBySector:    rates(as.bySector),
		WinRateByReason:    rates(as.byReason),
		WinRateByDirection: rates(as.byDirection),
		BestTrade:          as.BestTrade,
		WorstTrade:         as.WorstTrade,
	}
	if as.TotalTrades > 0 {
		report.WinRate = float64(as.TotalWins) / float64(as.TotalTrades) * 100
		report.AverageHoldingDays = float64(as.HoldingDays) / float64(as.TotalTrades)
	}
	if as.TotalWins > 0 {
		report.AverageWin = as.sumWin / float64(as.TotalWins)
	}
	if as.TotalLosses > 0 {
		report.AverageLoss = as.sumLoss / float64(as.TotalLosses)
	}
	return report
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// printReport prints the report to stdout
func printReport(report *Report) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("BACKTEST ANALYSIS REPORT")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Total Trades: %d\n", report.TotalTrades)
	fmt.Printf("Wins: %d, Losses: %d\n", report.TotalWins, report.TotalLosses)
	fmt.Printf("Win Rate: %.2f%%\n", report.WinRate)
	fmt.Printf("Total Net P&L: $%.2f (costs $%.2f)\n", report.TotalPnL, report.TotalCosts)
	fmt.Printf("Average Win: $%.2f\n", report.AverageWin)
	fmt.Printf("Average Loss: $%.2f\n", report.AverageLoss)
	fmt.Printf("Average Holding: %.1f days\n", report.AverageHoldingDays)

	sections := []struct {
		title string
		rates map[string]float64
	}{
		{"Win Rate by Sector", report.WinRateBySector},
		{"Win Rate by Exit Reason", report.WinRateByReason},
		{"Win Rate by Direction", report.WinRateByDirection},
	}
	for _, s := range sections {
		fmt.Printf("\n%s:\n", s.title)
		for _, k := range sortedKeys(s.rates) {
			fmt.Printf("  %s - %.2f%%\n", k, s.rates[k])
		}
	}

	if report.BestTrade != nil {
		fmt.Printf("\nBest Trade: %s %s @ $%.2f, P&L: $%.2f\n",
			report.BestTrade.Symbol, report.BestTrade.Direction, report.BestTrade.EntryPrice, report.BestTrade.NetPnL)
	}
	if report.WorstTrade != nil {
		fmt.Printf("Worst Trade: %s %s @ $%.2f, P&L: $%.2f\n",
			report.WorstTrade.Symbol, report.WorstTrade.Direction, report.WorstTrade.EntryPrice, report.WorstTrade.NetPnL)
	}
	if report.TailRisk != nil {
		fmt.Printf("\nMonte Carlo VaR %.0f%%: %.2f%%, ES: %.2f%%\n",
			report.TailRisk.Level*100, report.TailRisk.VaR*100, report.TailRisk.ES*100)
	}
}

// exportJSON exports the report as JSON
func exportJSON(report *Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var htmlReport = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html><head><title>Backtest Analysis</title></head><body>
<h1>Backtest Analysis Report</h1>
<p>Total Trades: {{.TotalTrades}}</p>
<p>Win Rate: {{printf "%.2f" .WinRate}}%</p>
<p>Total Net P&amp;L: ${{printf "%.2f" .TotalPnL}}</p>
<h2>Win Rate by Sector</h2>
<ul>{{range $k, $v := .WinRateBySector}}<li>{{$k}}: {{printf "%.2f" $v}}%</li>{{end}}</ul>
{{with .TailRisk}}<p>VaR: {{printf "%.2f" .VaR}}, ES: {{printf "%.2f" .ES}}</p>{{end}}
</body></html>
`))

// exportHTML exports the report as HTML
func exportHTML(report *Report, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return htmlReport.Execute(file, report)
}
