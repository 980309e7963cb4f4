package risk

import (
	"time"

	"github.com/atr-swing-bot/pkg/feed"
)

// Throttle scales the per-trade risk fraction for a date.
type Throttle interface {
	Adjust(baseRisk float64, date time.Time) float64
}

// VIX levels at which the throttle steps down.
const (
	VIXElevated = 20.0
	VIXHigh     = 30.0
)

// VolatilityThrottle cuts risk when the volatility index is elevated:
// above 30 risk is halved, in (20, 30] it is cut to 75%.
type VolatilityThrottle struct {
	vix *feed.Series
}

// NewVolatilityThrottle creates a throttle over an injected VIX close series.
func NewVolatilityThrottle(vix *feed.Series) *VolatilityThrottle {
	return &VolatilityThrottle{vix: vix}
}

// Adjust returns baseRisk scaled by the most recent VIX close at or before date.
// With no observation available the base risk is returned unchanged.
func (t *VolatilityThrottle) Adjust(baseRisk float64, date time.Time) float64 {
	if t == nil {
		return baseRisk
	}
	level, ok := t.vix.AsOf(date)
	if !ok {
		return baseRisk
	}
	switch {
	case level > VIXHigh:
		return baseRisk * 0.5
	case level > VIXElevated:
		return baseRisk * 0.75
	default:
		return baseRisk
	}
}

// NoThrottle leaves the risk fraction unchanged
type NoThrottle struct{}

func (NoThrottle) Adjust(baseRisk float64, _ time.Time) float64 { return baseRisk }
