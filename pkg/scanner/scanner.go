package scanner

import (
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/atr-swing-bot/pkg/config"
	"github.com/atr-swing-bot/pkg/feed"
)

// DefaultUniverse is traded when no tickers are configured.
var DefaultUniverse = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA"}

// VolumeLookback is the number of trailing bars averaged for the volume filter.
const VolumeLookback = 20

// Scanner selects the tradable universe
type Scanner struct {
	tickers   []string
	blacklist map[string]bool
	minPrice  float64
	maxPrice  float64 // 0 means no ceiling
	minVolume int64
	logger    *zap.Logger
}

// NewScanner creates a new scanner
func NewScanner(cfg *config.Config, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	blacklistMap := make(map[string]bool)
	for _, ticker := range cfg.Blacklist {
		blacklistMap[strings.ToUpper(ticker)] = true
	}

	tickers := cfg.BacktestTickers
	if len(tickers) == 0 {
		tickers = DefaultUniverse
	}

	return &Scanner{
		tickers:   dedupe(tickers),
		blacklist: blacklistMap,
		minPrice:  cfg.MinPrice,
		minVolume: cfg.MinAvgVolume,
		logger:    logger,
	}
}

func dedupe(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(t)
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// GetTickers returns the configured tickers that are not blacklisted
func (s *Scanner) GetTickers() []string {
	out := make([]string, 0, len(s.tickers))
	for _, t := range s.tickers {
		if !s.IsBlacklisted(t) {
			out = append(out, t)
		}
	}
	return out
}

// SetMaxPrice sets a price ceiling; 0 removes it.
func (s *Scanner) SetMaxPrice(max float64) {
	s.maxPrice = max
}

// IsBlacklisted checks if a ticker is blacklisted
func (s *Scanner) IsBlacklisted(ticker string) bool {
	return s.blacklist[strings.ToUpper(ticker)]
}

// FilterTicker checks if a ticker meets basic filter criteria.
// A volume of 0 means unknown and passes.
func (s *Scanner) FilterTicker(ticker string, price float64, volume int64) bool {
	if s.IsBlacklisted(ticker) {
		return false
	}
	if price < s.minPrice || (s.maxPrice > 0 && price > s.maxPrice) {
		return false
	}
	if volume > 0 && volume < s.minVolume {
		return false
	}
	return true
}

// FilterHistory applies FilterTicker to the last valid close and the trailing
// average volume of h.
func (s *Scanner) FilterHistory(h *feed.History) bool {
	last := math.NaN()
	var volSum int64
	var volN int64
	for i := len(h.Bars) - 1; i >= 0; i-- {
		b := h.Bars[i]
		if b.Missing() {
			continue
		}
		if math.IsNaN(last) {
			last = b.Close
		}
		if volN < VolumeLookback {
			volSum += b.Volume
			volN++
		}
		if volN == VolumeLookback {
			break
		}
	}
	if math.IsNaN(last) {
		return false
	}
	var avg int64
	if volN > 0 {
		avg = volSum / volN
	}
	return s.FilterTicker(h.Symbol, last, avg)
}

// Select keeps the histories that pass the filters and returns the rejected symbols, sorted.
func (s *Scanner) Select(histories map[string]*feed.History) (map[string]*feed.History, []string) {
	kept := make(map[string]*feed.History, len(histories))
	var rejected []string
	for symbol, h := range histories {
		if s.FilterHistory(h) {
			kept[symbol] = h
			continue
		}
		rejected = append(rejected, symbol)
	}
	sort.Strings(rejected)
	if len(rejected) > 0 {
		s.logger.Info("universe filter rejected instruments",
			zap.Strings("symbols", rejected),
			zap.Float64("min_price", s.minPrice),
			zap.Int64("min_avg_volume", s.minVolume))
	}
	return kept, rejected
}
