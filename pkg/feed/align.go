package feed

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// UnionDates returns the sorted union of every history's dates.
func UnionDates(histories map[string]*History) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, h := range histories {
		for _, b := range h.Bars {
			seen[b.Date] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Align reindexes every history onto the union date index. Dates an instrument
// lacks become missing bars. With forwardFill, gaps after the first valid bar carry
// the previous close instead; gaps before it always stay missing.
func Align(histories map[string]*History, forwardFill bool) map[string]*History {
	dates := UnionDates(histories)
	out := make(map[string]*History, len(histories))

	for symbol, h := range histories {
		byDate := make(map[time.Time]Bar, len(h.Bars))
		for _, b := range h.Bars {
			byDate[b.Date] = b
		}

		aligned := &History{Symbol: symbol, Bars: make([]Bar, len(dates))}
		var last Bar
		haveLast := false
		for i, d := range dates {
			b, ok := byDate[d]
			if ok && !b.Missing() {
				aligned.Bars[i] = b
				last, haveLast = b, true
				continue
			}
			if forwardFill && haveLast {
				filled := last
				filled.Date = d
				filled.Open, filled.High, filled.Low = last.Close, last.Close, last.Close
				filled.Volume = 0
				aligned.Bars[i] = filled
				continue
			}
			aligned.Bars[i] = MissingBar(d)
		}
		out[symbol] = aligned
	}
	return out
}

// ErrMisaligned is returned when histories do not share a date index.
var ErrMisaligned = errors.New("histories are not aligned")

// CommonDates returns the date index shared by every history, or ErrMisaligned.
func CommonDates(histories map[string]*History) ([]time.Time, error) {
	symbols := make([]string, 0, len(histories))
	for s := range histories {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var dates []time.Time
	for i, symbol := range symbols {
		h := histories[symbol]
		if i == 0 {
			dates = h.Dates()
			continue
		}
		if h.Len() != len(dates) {
			return nil, fmt.Errorf("%w: %s has %d bars, %s has %d", ErrMisaligned, symbol, h.Len(), symbols[0], len(dates))
		}
		for j, b := range h.Bars {
			if !b.Date.Equal(dates[j]) {
				return nil, fmt.Errorf("%w: %s and %s differ at %s", ErrMisaligned, symbol, symbols[0], b.Date.Format(DateLayout))
			}
		}
	}
	return dates, nil
}
