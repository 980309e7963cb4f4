package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/atr-swing-bot/pkg/risk"
)

var tradeHeader = []string{
	"Ticker",
	"EntryDate",
	"ExitDate",
	"Direction",
	"EntryPrice",
	"ExitPrice",
	"Shares",
	"Reason",
	"GrossPnL",
	"Commission",
	"NetPnL",
}

// ExportTradesCSV writes the trade ledger to path, creating parent directories.
func ExportTradesCSV(path string, trades []Trade) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(tradeHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, trade := range trades {
		record := []string{
			trade.Symbol,
			trade.EntryDate.Format("2006-01-02"),
			trade.ExitDate.Format("2006-01-02"),
			string(trade.Direction),
			strconv.FormatFloat(trade.EntryPrice, 'f', 4, 64),
			strconv.FormatFloat(trade.ExitPrice, 'f', 4, 64),
			strconv.Itoa(trade.Shares),
			string(trade.Reason),
			strconv.FormatFloat(trade.PnL, 'f', 2, 64),
			strconv.FormatFloat(trade.Commission, 'f', 2, 64),
			strconv.FormatFloat(trade.NetPnL, 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTradesCSV parses a ledger written by ExportTradesCSV.
func ReadTradesCSV(r io.Reader) ([]Trade, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	trades := make([]Trade, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < len(tradeHeader) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", i+2, len(tradeHeader), len(rec))
		}
		var t Trade
		var perr error
		parseF := func(s string) float64 {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil && perr == nil {
				perr = err
			}
			return v
		}
		parseD := func(s string) time.Time {
			v, err := time.Parse("2006-01-02", s)
			if err != nil && perr == nil {
				perr = err
			}
			return v
		}

		t.Symbol = rec[0]
		t.EntryDate = parseD(rec[1])
		t.ExitDate = parseD(rec[2])
		t.Direction = risk.Direction(rec[3])
		t.EntryPrice = parseF(rec[4])
		t.ExitPrice = parseF(rec[5])
		shares, err := strconv.Atoi(rec[6])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid shares: %w", i+2, err)
		}
		t.Shares = shares
		t.Reason = ExitReason(rec[7])
		t.PnL = parseF(rec[8])
		t.Commission = parseF(rec[9])
		t.NetPnL = parseF(rec[10])
		if perr != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, perr)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// LoadTradesCSV reads a trade ledger file
func LoadTradesCSV(path string) ([]Trade, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	return ReadTradesCSV(file)
}

// ExportEquityCSV writes the equity curve to path.
func ExportEquityCSV(path string, curve []EquityPoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Date", "Equity", "Cash", "Exposure"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, p := range curve {
		record := []string{
			p.Date.Format("2006-01-02"),
			strconv.FormatFloat(p.Equity, 'f', 2, 64),
			strconv.FormatFloat(p.Cash, 'f', 2, 64),
			strconv.FormatFloat(p.Exposure, 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// LoadEquityCSV reads a curve written by ExportEquityCSV.
func LoadEquityCSV(path string) ([]EquityPoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}
	curve := make([]EquityPoint, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 4 {
			return nil, fmt.Errorf("line %d: expected 4 fields, got %d", i+2, len(rec))
		}
		date, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		var vals [3]float64
		for j := range vals {
			if vals[j], err = strconv.ParseFloat(rec[j+1], 64); err != nil {
				return nil, fmt.Errorf("line %d: %w", i+2, err)
			}
		}
		curve = append(curve, EquityPoint{Date: date, Equity: vals[0], Cash: vals[1], Exposure: vals[2]})
	}
	return curve, nil
}
