package backtest

import (
	"sort"
	"time"
)

// PositionManager manages open positions, at most one per symbol
type PositionManager struct {
	positions map[string]*Position // symbol -> position
}

// NewPositionManager creates a new position manager
func NewPositionManager() *PositionManager {
	return &PositionManager{
		positions: make(map[string]*Position),
	}
}

// OpenPosition opens a new position
func (pm *PositionManager) OpenPosition(symbol string, qty int, price float64, date time.Time) *Position {
	position := &Position{
		Symbol:     symbol,
		Qty:        qty,
		EntryPrice: price,
		EntryDate:  date,
	}
	pm.positions[symbol] = position
	return position
}

// ClosePosition removes and returns the position for symbol, or nil
func (pm *PositionManager) ClosePosition(symbol string) *Position {
	position, exists := pm.positions[symbol]
	if !exists {
		return nil
	}
	delete(pm.positions, symbol)
	return position
}

// GetPosition returns a position for a symbol
func (pm *PositionManager) GetPosition(symbol string) (*Position, bool) {
	position, exists := pm.positions[symbol]
	return position, exists
}

// HasPosition checks if we have a position in a symbol
func (pm *PositionManager) HasPosition(symbol string) bool {
	_, exists := pm.positions[symbol]
	return exists
}

// Symbols returns the symbols with open positions in sorted order
func (pm *PositionManager) Symbols() []string {
	out := make([]string, 0, len(pm.positions))
	for s := range pm.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
