package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ReadHistoryCSV parses a daily OHLCV CSV with a header row.
// Recognized columns: date, open, high, low, close, volume. Blank cells become missing values.
func ReadHistoryCSV(symbol string, r io.Reader) (*History, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header for %s: %w", symbol, err)
	}
	cols := columnIndex(header)
	dateCol, ok := cols["date"]
	if !ok {
		return nil, fmt.Errorf("%s: missing date column", symbol)
	}
	closeCol, ok := cols["close"]
	if !ok {
		return nil, fmt.Errorf("%s: missing close column", symbol)
	}

	h := &History{Symbol: symbol}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", symbol, line, err)
		}
		date, err := parseDate(field(record, dateCol))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", symbol, line, err)
		}

		bar := Bar{Date: date}
		if bar.Close, err = parseFloatCell(field(record, closeCol)); err != nil {
			return nil, fmt.Errorf("%s line %d close: %w", symbol, line, err)
		}
		// Absent OHLC columns fall back to the close.
		bar.Open, bar.High, bar.Low = bar.Close, bar.Close, bar.Close
		if c, ok := cols["open"]; ok {
			if bar.Open, err = parseFloatCell(field(record, c)); err != nil {
				return nil, fmt.Errorf("%s line %d open: %w", symbol, line, err)
			}
		}
		if c, ok := cols["high"]; ok {
			if bar.High, err = parseFloatCell(field(record, c)); err != nil {
				return nil, fmt.Errorf("%s line %d high: %w", symbol, line, err)
			}
		}
		if c, ok := cols["low"]; ok {
			if bar.Low, err = parseFloatCell(field(record, c)); err != nil {
				return nil, fmt.Errorf("%s line %d low: %w", symbol, line, err)
			}
		}
		if c, ok := cols["volume"]; ok {
			if v := strings.TrimSpace(field(record, c)); v != "" {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, fmt.Errorf("%s line %d volume: %w", symbol, line, err)
				}
				bar.Volume = int64(f)
			}
		}
		h.Bars = append(h.Bars, bar)
	}

	sort.SliceStable(h.Bars, func(i, j int) bool { return h.Bars[i].Date.Before(h.Bars[j].Date) })
	return h, nil
}

// LoadHistory reads <dir>/<SYMBOL>.csv.
func LoadHistory(dir, symbol string) (*History, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s.csv", symbol))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadHistoryCSV(symbol, f)
}

// ReadSeriesCSV parses a two-column date/value CSV. When the file has more columns
// the "close" column is used, then "value", then the second column.
func ReadSeriesCSV(name string, r io.Reader) (*Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header for %s: %w", name, err)
	}
	cols := columnIndex(header)
	dateCol, ok := cols["date"]
	if !ok {
		dateCol = 0
	}
	valueCol := 1
	if c, ok := cols["close"]; ok {
		valueCol = c
	} else if c, ok := cols["value"]; ok {
		valueCol = c
	}

	type obs struct {
		date  time.Time
		value float64
	}
	var rows []obs
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, line, err)
		}
		date, err := parseDate(field(record, dateCol))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, line, err)
		}
		v, err := parseFloatCell(field(record, valueCol))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, line, err)
		}
		rows = append(rows, obs{date, v})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })

	s := &Series{Name: name, Dates: make([]time.Time, len(rows)), Values: make([]float64, len(rows))}
	for i, o := range rows {
		s.Dates[i] = o.date
		s.Values[i] = o.value
	}
	return s, nil
}

// LoadSeries reads a date/value CSV from path.
func LoadSeries(name, path string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadSeriesCSV(name, f)
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.TrimPrefix(key, "\ufeff")
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return cols
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

func parseFloatCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
