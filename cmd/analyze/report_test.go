package main

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atr-swing-bot/pkg/backtest"
	"github.com/atr-swing-bot/pkg/risk"
)

func trade(symbol string, dir risk.Direction, reason backtest.ExitReason, net float64, days int) backtest.Trade {
	entry := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	return backtest.Trade{
		Symbol:     symbol,
		Direction:  dir,
		Shares:     10,
		EntryDate:  entry,
		EntryPrice: 100,
		ExitDate:   entry.AddDate(0, 0, days),
		Reason:     reason,
		Commission: 1,
		NetPnL:     net,
	}
}

func TestGenerateReport(t *testing.T) {
	stats := NewAggregateStats()
	stats.RecordTrade(trade("AAPL", risk.Long, backtest.ExitReasonStopLoss, -50, 2))
	stats.RecordTrade(trade("JPM", risk.Short, backtest.ExitReasonEndOfRun, 150, 4))
	stats.RecordTrade(trade("MSFT", risk.Long, backtest.ExitReasonEndOfRun, 30, 6))

	r := stats.GenerateReport()
	if r.TotalTrades != 3 || r.TotalWins != 2 || r.TotalLosses != 1 {
		t.Fatalf("report = %+v", r)
	}
	if math.Abs(r.WinRate-200.0/3) > 1e-9 {
		t.Errorf("WinRate = %v", r.WinRate)
	}
	if r.AverageWin != 90 || r.AverageLoss != -50 {
		t.Errorf("averages = %v, %v", r.AverageWin, r.AverageLoss)
	}
	if r.AverageHoldingDays != 4 || r.TotalCosts != 3 || r.TotalPnL != 130 {
		t.Errorf("totals = %+v", r)
	}
	if r.WinRateBySector["Technology"] != 50 || r.WinRateBySector["Finance"] != 100 {
		t.Errorf("by sector = %v", r.WinRateBySector)
	}
	if r.WinRateByReason[string(backtest.ExitReasonStopLoss)] != 0 {
		t.Errorf("by reason = %v", r.WinRateByReason)
	}
	if r.WinRateByDirection["SHORT"] != 100 {
		t.Errorf("by direction = %v", r.WinRateByDirection)
	}
	if r.BestTrade.Symbol != "JPM" || r.WorstTrade.Symbol != "AAPL" {
		t.Errorf("best/worst = %s/%s", r.BestTrade.Symbol, r.WorstTrade.Symbol)
	}
}

func TestEmptyReport(t *testing.T) {
	r := NewAggregateStats().GenerateReport()
	if r.WinRate != 0 || r.AverageWin != 0 || r.BestTrade != nil {
		t.Errorf("empty report = %+v", r)
	}
}

func TestExports(t *testing.T) {
	stats := NewAggregateStats()
	stats.RecordTrade(trade("AAPL", risk.Long, backtest.ExitReasonEndOfRun, 10, 1))
	r := stats.GenerateReport()
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "report.json")
	if err := exportJSON(r, jsonPath); err != nil {
		t.Fatalf("exportJSON: %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var back Report
	if err := json.Unmarshal(data, &back); err != nil || back.TotalTrades != 1 {
		t.Fatalf("json = %s, %v", data, err)
	}

	htmlPath := filepath.Join(dir, "report.html")
	if err := exportHTML(r, htmlPath); err != nil {
		t.Fatalf("exportHTML: %v", err)
	}
	html, _ := os.ReadFile(htmlPath)
	if !strings.Contains(string(html), "Technology: 100.00%") {
		t.Errorf("html missing sector line:\n%s", html)
	}
}

func TestTailRisk(t *testing.T) {
	var curve []backtest.EquityPoint
	eq := 100000.0
	for i := 0; i < 30; i++ {
		if i%3 == 0 {
			eq *= 0.99
		} else {
			eq *= 1.01
		}
		curve = append(curve, backtest.EquityPoint{Date: time.Date(2023, 1, 1+i, 0, 0, 0, 0, time.UTC), Equity: eq, Cash: eq})
	}
	path := filepath.Join(t.TempDir(), "equity.csv")
	if err := backtest.ExportEquityCSV(path, curve); err != nil {
		t.Fatal(err)
	}
	tail, err := tailRisk(path, 500, 7, 0.05)
	if err != nil {
		t.Fatalf("tailRisk: %v", err)
	}
	if tail.ES > tail.VaR || tail.Level != 0.05 {
		t.Errorf("tail = %+v", tail)
	}
	again, _ := tailRisk(path, 500, 7, 0.05)
	if again != tail {
		t.Error("same seed should give the same tail risk")
	}
}
