package feed

import (
	"errors"
	"sort"

	"go.uber.org/zap"
)

// ErrNoData is returned when none of the requested symbols could be loaded.
var ErrNoData = errors.New("no price data loaded")

// LoadUniverse loads every symbol through the cache. Symbols whose file is
// missing or unreadable are logged and skipped; they are returned sorted.
func (cm *CacheManager) LoadUniverse(dataDir string, symbols []string, logger *zap.Logger) (map[string]*History, []string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make(map[string]*History, len(symbols))
	var skipped []string
	for _, symbol := range symbols {
		h, err := cm.LoadHistory(dataDir, symbol)
		if err != nil {
			logger.Warn("skipping symbol", zap.String("symbol", symbol), zap.Error(err))
			skipped = append(skipped, symbol)
			continue
		}
		if h.Len() == 0 {
			logger.Warn("skipping symbol with no bars", zap.String("symbol", symbol))
			skipped = append(skipped, symbol)
			continue
		}
		out[symbol] = h
	}
	sort.Strings(skipped)
	if len(out) == 0 {
		return nil, skipped, ErrNoData
	}
	return out, skipped, nil
}

// LoadOptionalSeries loads a close series for symbol from the data directory, or
// returns nil when it is unavailable.
func (cm *CacheManager) LoadOptionalSeries(dataDir, symbol string, logger *zap.Logger) *Series {
	h, err := cm.LoadHistory(dataDir, symbol)
	if err != nil {
		if logger != nil {
			logger.Debug("series unavailable", zap.String("symbol", symbol), zap.Error(err))
		}
		return nil
	}
	return CloseSeries(h)
}
