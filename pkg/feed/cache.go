package feed

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// CacheMetadata stores metadata about cached data
type CacheMetadata struct {
	Symbol     string    `json:"symbol"`
	Source     string    `json:"source"`      // CSV the cache was built from
	SourceMod  time.Time `json:"source_mod"`  // source modification time at build
	SourceSize int64     `json:"source_size"` // source size in bytes at build
	BuiltAt    time.Time `json:"built_at"`
	BarCount   int       `json:"bar_count"`
}

// CacheManager keeps parsed histories as JSON so repeated optimizer runs skip CSV parsing.
type CacheManager struct {
	cacheDir string
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cacheDir string) *CacheManager {
	if cacheDir == "" {
		cacheDir = "data/cache"
	}
	return &CacheManager{
		cacheDir: cacheDir,
	}
}

// GetCachePath returns the cache file path for a symbol
func (cm *CacheManager) GetCachePath(symbol string) string {
	return filepath.Join(cm.cacheDir, fmt.Sprintf("%s.json", symbol))
}

// GetMetadataPath returns the metadata file path for a symbol
func (cm *CacheManager) GetMetadataPath(symbol string) string {
	return filepath.Join(cm.cacheDir, fmt.Sprintf("%s_metadata.json", symbol))
}

// CachedBar is a serializable version of Bar. Missing prices are stored as null.
type CachedBar struct {
	Date   string   `json:"date"`
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume int64    `json:"volume"`
}

// LoadHistory returns the history for symbol from <dataDir>/<symbol>.csv, served from
// the cache when the source file has not changed since the cache was written.
func (cm *CacheManager) LoadHistory(dataDir, symbol string) (*History, error) {
	source := filepath.Join(dataDir, fmt.Sprintf("%s.csv", symbol))
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", source, err)
	}

	if h, ok := cm.loadCached(symbol, info); ok {
		return h, nil
	}

	h, err := LoadHistory(dataDir, symbol)
	if err != nil {
		return nil, err
	}
	if err := cm.SaveCachedData(h, source, info); err != nil {
		return nil, err
	}
	return h, nil
}

// loadCached returns the cached history when its metadata matches the source file.
func (cm *CacheManager) loadCached(symbol string, source os.FileInfo) (*History, bool) {
	metadataBytes, err := os.ReadFile(cm.GetMetadataPath(symbol))
	if err != nil {
		return nil, false // No cache exists, that's okay
	}
	var metadata CacheMetadata
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return nil, false
	}
	if !metadata.SourceMod.Equal(source.ModTime()) || metadata.SourceSize != source.Size() {
		return nil, false // Source changed since the cache was built
	}

	dataBytes, err := os.ReadFile(cm.GetCachePath(symbol))
	if err != nil {
		return nil, false
	}
	var cached []CachedBar
	if err := json.Unmarshal(dataBytes, &cached); err != nil {
		return nil, false
	}
	if len(cached) != metadata.BarCount {
		return nil, false
	}

	h := &History{Symbol: symbol, Bars: make([]Bar, len(cached))}
	for i, cb := range cached {
		date, err := time.Parse(DateLayout, cb.Date)
		if err != nil {
			return nil, false
		}
		h.Bars[i] = Bar{
			Date:   date,
			Open:   fromCached(cb.Open),
			High:   fromCached(cb.High),
			Low:    fromCached(cb.Low),
			Close:  fromCached(cb.Close),
			Volume: cb.Volume,
		}
	}
	return h, true
}

// SaveCachedData saves a parsed history and the source fingerprint it was built from
func (cm *CacheManager) SaveCachedData(h *History, source string, info os.FileInfo) error {
	if err := os.MkdirAll(cm.cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	cached := make([]CachedBar, len(h.Bars))
	for i, b := range h.Bars {
		cached[i] = CachedBar{
			Date:   b.Date.Format(DateLayout),
			Open:   toCached(b.Open),
			High:   toCached(b.High),
			Low:    toCached(b.Low),
			Close:  toCached(b.Close),
			Volume: b.Volume,
		}
	}
	dataBytes, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := os.WriteFile(cm.GetCachePath(h.Symbol), dataBytes, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	metadata := CacheMetadata{
		Symbol:     h.Symbol,
		Source:     source,
		SourceMod:  info.ModTime(),
		SourceSize: info.Size(),
		BuiltAt:    time.Now(),
		BarCount:   len(h.Bars),
	}
	metadataBytes, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(cm.GetMetadataPath(h.Symbol), metadataBytes, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

func toCached(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func fromCached(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
