package feed

import (
	"math"
	"sort"
	"time"
)

// DateLayout is the calendar-date format used by every CSV and cache file.
const DateLayout = "2006-01-02"

// Bar represents a single daily bar. A NaN close marks the day as missing.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Missing reports whether the bar carries no usable price.
func (b Bar) Missing() bool {
	return math.IsNaN(b.Close) || math.IsNaN(b.High) || math.IsNaN(b.Low)
}

// MissingBar returns a placeholder bar for a date with no data.
func MissingBar(date time.Time) Bar {
	nan := math.NaN()
	return Bar{Date: date, Open: nan, High: nan, Low: nan, Close: nan}
}

// History is the ascending daily price history of one instrument.
type History struct {
	Symbol string
	Bars   []Bar
}

// Len returns the number of bars
func (h *History) Len() int {
	return len(h.Bars)
}

// Dates returns the date index of the history
func (h *History) Dates() []time.Time {
	out := make([]time.Time, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = b.Date
	}
	return out
}

// Closes returns the close column
func (h *History) Closes() []float64 {
	out := make([]float64, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs returns the high column
func (h *History) Highs() []float64 {
	out := make([]float64, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = b.High
	}
	return out
}

// Lows returns the low column
func (h *History) Lows() []float64 {
	out := make([]float64, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = b.Low
	}
	return out
}

// IndexOf returns the position of date in the history, or -1.
func (h *History) IndexOf(date time.Time) int {
	i := sort.Search(len(h.Bars), func(i int) bool { return !h.Bars[i].Date.Before(date) })
	if i < len(h.Bars) && h.Bars[i].Date.Equal(date) {
		return i
	}
	return -1
}

// Slice returns a view of bars [from, to). Bounds are clamped.
func (h *History) Slice(from, to int) *History {
	if from < 0 {
		from = 0
	}
	if to > len(h.Bars) {
		to = len(h.Bars)
	}
	if from > to {
		from = to
	}
	return &History{Symbol: h.Symbol, Bars: h.Bars[from:to]}
}

// Between returns the bars whose date falls within [start, end].
func (h *History) Between(start, end time.Time) *History {
	from := sort.Search(len(h.Bars), func(i int) bool { return !h.Bars[i].Date.Before(start) })
	to := sort.Search(len(h.Bars), func(i int) bool { return h.Bars[i].Date.After(end) })
	return h.Slice(from, to)
}

// Series is a date-indexed float series, ascending by date.
type Series struct {
	Name   string
	Dates  []time.Time
	Values []float64
}

// Len returns the number of observations
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Dates)
}

// Get returns the value observed exactly on date.
func (s *Series) Get(date time.Time) (float64, bool) {
	if s == nil {
		return 0, false
	}
	i := sort.Search(len(s.Dates), func(i int) bool { return !s.Dates[i].Before(date) })
	if i < len(s.Dates) && s.Dates[i].Equal(date) && !math.IsNaN(s.Values[i]) {
		return s.Values[i], true
	}
	return 0, false
}

// AsOf returns the most recent non-missing value at or before date.
func (s *Series) AsOf(date time.Time) (float64, bool) {
	if s == nil {
		return 0, false
	}
	i := sort.Search(len(s.Dates), func(i int) bool { return s.Dates[i].After(date) })
	for j := i - 1; j >= 0; j-- {
		if !math.IsNaN(s.Values[j]) {
			return s.Values[j], true
		}
	}
	return 0, false
}

// CloseSeries converts a history's closes to a Series.
func CloseSeries(h *History) *Series {
	return &Series{Name: h.Symbol, Dates: h.Dates(), Values: h.Closes()}
}
