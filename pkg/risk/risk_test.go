package risk

import (
	"math"
	"testing"
	"time"

	"github.com/atr-swing-bot/pkg/feed"
)

func TestPositionSize(t *testing.T) {
	tests := []struct {
		name    string
		equity  float64
		atr     float64
		riskPct float64
		want    int
	}{
		{"formula", 100000, 2, 0.01, 250},
		{"floors", 100000, 3, 0.01, 166},
		{"zero atr", 100000, 0, 0.01, 0},
		{"negative atr", 100000, -1, 0.01, 0},
		{"nan atr", 100000, math.NaN(), 0.01, 0},
		{"zero equity", 0, 2, 0.01, 0},
		{"negative equity", -5000, 2, 0.01, 0},
		{"vanishing atr", 1e6, 1e-300, 0.003, MaxShares},
		{"subnormal atr", 1e6, math.SmallestNonzeroFloat64, 0.003, MaxShares},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PositionSize(tt.equity, tt.atr, tt.riskPct); got != tt.want {
				t.Fatalf("PositionSize(%v, %v, %v) = %d, want %d", tt.equity, tt.atr, tt.riskPct, got, tt.want)
			}
		})
	}
}

func TestLeverageCappedSize(t *testing.T) {
	// risk size = floor(0.01*100000/(2*0.5)) = 1000, cap = 100000*0.25/100 = 250
	if got := LeverageCappedSize(100000, 0.5, 100, 0.01, 0.25); got != 250 {
		t.Fatalf("capped = %d, want 250", got)
	}
	// risk size 250 below cap 1000
	if got := LeverageCappedSize(100000, 2, 25, 0.01, 0.25); got != 250 {
		t.Fatalf("uncapped = %d, want 250", got)
	}
	// cap 100000*0.25/300 = 83.33 rounds to 83
	if got := LeverageCappedSize(100000, 0.5, 300, 0.01, 0.25); got != 83 {
		t.Fatalf("rounded cap = %d, want 83", got)
	}
	if got := LeverageCappedSize(100000, 2, 100, 0.01, 0); got != 0 {
		t.Fatalf("zero kelly should size 0, got %d", got)
	}
	// near-zero ATR: the cap 1e6*0.25/100 = 2500 binds instead of overflowing
	if got := LeverageCappedSize(1e6, 1e-300, 100, 0.003, 0.25); got != 2500 {
		t.Fatalf("tiny ATR capped = %d, want 2500", got)
	}
	if got := LeverageCappedSize(1e6, 1e-300, 0, 0.003, 0.25); got != MaxShares {
		t.Fatalf("tiny ATR uncapped = %d, want MaxShares", got)
	}
}

func TestKellyCapWithThrottle(t *testing.T) {
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	vix := &feed.Series{Dates: []time.Time{d}, Values: []float64{35}}
	th := NewVolatilityThrottle(vix)

	// Calm risk 0.01 gives 1000 shares, capped at 250 by Kelly. Halving risk to
	// 0.005 gives 500, still capped: the throttle has no effect while the cap binds.
	risk := th.Adjust(0.01, d)
	if got := LeverageCappedSize(100000, 0.5, 100, risk, 0.25); got != 250 {
		t.Fatalf("cap binding: got %d, want 250", got)
	}

	// With a looser cap (1000 shares) the throttle becomes visible: 500 shares.
	if got := LeverageCappedSize(100000, 0.5, 100, risk, 1.0); got != 500 {
		t.Fatalf("throttle binding: got %d, want 500", got)
	}

	// At the crossover both limits agree.
	if got := LeverageCappedSize(100000, 0.5, 100, risk, 0.5); got != 500 {
		t.Fatalf("crossover: got %d, want 500", got)
	}
}

func TestVolatilityThrottle(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	vix := &feed.Series{
		Dates:  []time.Time{day(2), day(3), day(4), day(5), day(8)},
		Values: []float64{15, 20, 20.01, 30, 30.5},
	}
	th := NewVolatilityThrottle(vix)

	tests := []struct {
		date time.Time
		want float64
	}{
		{day(1), 0.01},    // before any data
		{day(2), 0.01},    // calm
		{day(3), 0.01},    // exactly 20 is not elevated
		{day(4), 0.0075},  // just above 20
		{day(5), 0.0075},  // exactly 30 stays in the middle band
		{day(6), 0.0075},  // weekend uses last close
		{day(8), 0.005},   // above 30
		{day(20), 0.005},  // as-of after the series ends
	}
	for _, tt := range tests {
		if got := th.Adjust(0.01, tt.date); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Adjust(%s) = %v, want %v", tt.date.Format("2006-01-02"), got, tt.want)
		}
	}

	if got := NewVolatilityThrottle(nil).Adjust(0.01, day(8)); got != 0.01 {
		t.Fatalf("missing series should return base risk, got %v", got)
	}
	if got := (NoThrottle{}).Adjust(0.02, day(8)); got != 0.02 {
		t.Fatalf("NoThrottle changed risk: %v", got)
	}
}

func TestStopHelpers(t *testing.T) {
	if s := CalculateStopLoss(100, 2, 2, Long); s != 96 {
		t.Fatalf("long stop = %v", s)
	}
	if s := CalculateStopLoss(100, 2, 2, Short); s != 104 {
		t.Fatalf("short stop = %v", s)
	}
	if IsStopHit(96, 96, Long) || !IsStopHit(95.99, 96, Long) {
		t.Fatalf("long stop must trigger strictly below")
	}
	if IsStopHit(104, 104, Short) || !IsStopHit(104.01, 104, Short) {
		t.Fatalf("short stop must trigger strictly above")
	}
	if DirectionOf(-3) != Short || DirectionOf(3) != Long || Short.Sign() != -1 {
		t.Fatalf("direction helpers")
	}
}

func TestCashAccount(t *testing.T) {
	a := NewCashAccount(1000)
	if !a.CanAfford(10, 100) || a.CanAfford(11, 100) {
		t.Fatalf("long affordability wrong")
	}
	if !a.CanAfford(-1000, 100) {
		t.Fatalf("shorts are always affordable")
	}
	a.Open(-5, 100)
	if a.Cash() != 1500 {
		t.Fatalf("short entry should credit proceeds, cash = %v", a.Cash())
	}
	a.Close(-5, 80)
	if a.Cash() != 1100 {
		t.Fatalf("short cover cash = %v", a.Cash())
	}
}
