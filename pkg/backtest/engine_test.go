package backtest

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/atr-swing-bot/pkg/feed"
	"github.com/atr-swing-bot/pkg/risk"
	"github.com/atr-swing-bot/pkg/strategy"
)

func day(i int) time.Time {
	return time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

// history builds bars with high/low one point either side of each close.
func history(symbol string, closes ...float64) *feed.History {
	h := &feed.History{Symbol: symbol}
	for i, c := range closes {
		if math.IsNaN(c) {
			h.Bars = append(h.Bars, feed.MissingBar(day(i)))
			continue
		}
		h.Bars = append(h.Bars, feed.Bar{Date: day(i), Open: c, High: c + 1, Low: c - 1, Close: c})
	}
	return h
}

func signal(values ...int) strategy.Signal {
	s := strategy.Signal{Values: values}
	for i := range values {
		s.Dates = append(s.Dates, day(i))
	}
	return s
}

func testEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := Config{InitialCapital: 100000, RiskPct: 0.01, ATRWindow: 1, StopMult: 2}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestShortProfitsWhenPriceHalves(t *testing.T) {
	e := testEngine(t, nil)
	res, err := e.Run(
		map[string]*feed.History{"X": history("X", 100, 50)},
		map[string]strategy.Signal{"X": signal(-1, 0)},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	final := res.Curve[len(res.Curve)-1].Equity
	if final <= 110000 {
		t.Fatalf("short final equity = %v, want > 110000", final)
	}
	if final != 112500 {
		t.Fatalf("short final equity = %v, want 112500", final)
	}
	if len(res.Trades) != 1 || res.Trades[0].Direction != risk.Short || res.Trades[0].Shares != 250 {
		t.Fatalf("trades = %+v", res.Trades)
	}
	if res.Trades[0].Reason != ExitReasonEndOfRun {
		t.Fatalf("reason = %v", res.Trades[0].Reason)
	}
}

func TestLongLosesWhenPriceHalves(t *testing.T) {
	e := testEngine(t, nil)
	res, err := e.Run(
		map[string]*feed.History{"X": history("X", 100, 50)},
		map[string]strategy.Signal{"X": signal(1, 0)},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	final := res.Curve[len(res.Curve)-1].Equity
	if final >= 100000 {
		t.Fatalf("long final equity = %v, want a loss", final)
	}
	if final != 87500 {
		t.Fatalf("long final equity = %v, want 87500", final)
	}
}

func TestStopLossExit(t *testing.T) {
	e := testEngine(t, func(c *Config) { c.ATRWindow = 3 })
	res, err := e.Run(
		map[string]*feed.History{"X": history("X", 100, 100, 100, 80, 80)},
		map[string]strategy.Signal{"X": signal(1, 0, 0, 0, 0)},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %+v", res.Trades)
	}
	tr := res.Trades[0]
	if tr.Reason != ExitReasonStopLoss || !tr.ExitDate.Equal(day(3)) {
		t.Fatalf("expected stop exit on day 3, got %+v", tr)
	}
	if tr.EntryPrice != 100 || !tr.EntryDate.Equal(day(0)) {
		t.Fatalf("entry should use the previous day's close and date: %+v", tr)
	}
	if tr.PnL != -5000 {
		t.Fatalf("pnl = %v", tr.PnL)
	}
	if got := res.Curve[4].Equity; got != 95000 {
		t.Fatalf("final equity = %v", got)
	}
}

func TestRunInvariants(t *testing.T) {
	n := 120
	closesA := make([]float64, n)
	closesB := make([]float64, n)
	sigA := make([]int, n)
	sigB := make([]int, n)
	for i := 0; i < n; i++ {
		closesA[i] = 100 + 10*math.Sin(float64(i)/6)
		closesB[i] = 40 + 5*math.Cos(float64(i)/4) + float64(i)*0.05
		if i%9 < 3 {
			sigA[i] = 1
		} else if i%9 > 6 {
			sigA[i] = -1
		}
		if i%5 == 0 {
			sigB[i] = -1
		}
	}
	closesB[30] = math.NaN()

	e := testEngine(t, func(c *Config) { c.ATRWindow = 5; c.StopMult = 1 })
	res, err := e.Run(
		map[string]*feed.History{"A": history("A", closesA...), "B": history("B", closesB...)},
		map[string]strategy.Signal{"A": signal(sigA...), "B": signal(sigB...)},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Curve) != n {
		t.Fatalf("curve length %d, want %d", len(res.Curve), n)
	}
	if res.Curve[0].Equity != 100000 {
		t.Fatalf("equity[0] = %v", res.Curve[0].Equity)
	}
	if len(res.Trades) == 0 {
		t.Fatalf("expected some trades")
	}

	sum := 0.0
	for _, tr := range res.Trades {
		sum += tr.PnL
	}
	if math.Abs(res.FinalCash-(100000+sum)) > 1e-6 {
		t.Fatalf("cash %v != initial + pnl %v", res.FinalCash, 100000+sum)
	}
	if math.Abs(res.Curve[n-1].Equity-res.FinalCash) > 1e-6 {
		t.Fatalf("final equity %v != final cash %v", res.Curve[n-1].Equity, res.FinalCash)
	}

	// Replay the fills in execution order. Entries are dated the signal day but
	// execute the next day; exits execute on their own date.
	dates := res.Dates()
	indexOf := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		indexOf[d] = i
	}
	closes := map[string][]float64{"A": closesA, "B": closesB}
	open := make(map[string]int)
	last := map[string]float64{"A": closesA[0], "B": closesB[0]}
	cash := 100000.0
	next := 0
	for i := 1; i < n; i++ {
		for ; next < len(res.Fills); next++ {
			f := res.Fills[next]
			execDay := indexOf[f.Date]
			if f.Opening {
				execDay++
			}
			if execDay != i {
				break
			}
			if f.Opening {
				if open[f.Symbol] != 0 {
					t.Fatalf("day %d: %s opened twice without a close", i, f.Symbol)
				}
				open[f.Symbol] = f.Qty
			} else {
				if open[f.Symbol] == 0 || open[f.Symbol]+f.Qty != 0 {
					t.Fatalf("day %d: %s close of %d does not match open %d", i, f.Symbol, f.Qty, open[f.Symbol])
				}
				delete(open, f.Symbol)
			}
			cash -= float64(f.Qty) * f.Price
		}
		for symbol, c := range closes {
			if !math.IsNaN(c[i]) {
				last[symbol] = c[i]
			}
		}

		equity := cash
		for symbol, qty := range open {
			equity += float64(qty) * last[symbol]
		}
		if math.Abs(res.Curve[i].Cash-cash) > 1e-6 {
			t.Fatalf("day %d: cash %v, replayed %v", i, res.Curve[i].Cash, cash)
		}
		if math.Abs(res.Curve[i].Equity-equity) > 1e-6 {
			t.Fatalf("day %d: equity %v != cash + positions %v", i, res.Curve[i].Equity, equity)
		}
	}
	if next != len(res.Fills) {
		t.Fatalf("replayed %d of %d fills", next, len(res.Fills))
	}
	if len(open) != 0 {
		t.Fatalf("positions left open: %v", open)
	}

	paired, err := RoundTrips(res.Fills)
	if err != nil {
		t.Fatalf("RoundTrips: %v", err)
	}
	if len(paired) != len(res.Trades) {
		t.Fatalf("fills pair into %d trades, ledger has %d", len(paired), len(res.Trades))
	}
	opens := 0
	for _, f := range res.Fills {
		if f.Opening {
			opens++
		}
	}
	if opens != len(res.Trades) {
		t.Fatalf("%d opens but %d closed trades", opens, len(res.Trades))
	}
}

func TestMissingPreviousBarSkipsEntry(t *testing.T) {
	e := testEngine(t, nil)
	res, err := e.Run(
		map[string]*feed.History{
			"A": history("A", 100, 101, 102),
			"B": history("B", 50, math.NaN(), 52),
		},
		map[string]strategy.Signal{"B": signal(0, 1, 0)},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("entry off a missing bar should be skipped: %+v", res.Trades)
	}
	for _, p := range res.Curve {
		if p.Equity != 100000 {
			t.Fatalf("equity moved without trades: %+v", p)
		}
	}
}

func TestMissingPriceMarksAtLastClose(t *testing.T) {
	e := testEngine(t, nil)
	res, err := e.Run(
		map[string]*feed.History{"X": history("X", 100, 100, math.NaN(), 110)},
		map[string]strategy.Signal{"X": signal(1, 0, 0, 0)},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Curve[2].Equity != res.Curve[1].Equity {
		t.Fatalf("missing day should hold the last mark: %v vs %v", res.Curve[2].Equity, res.Curve[1].Equity)
	}
	if got := res.Curve[3].Equity; got != 100000+250*10 {
		t.Fatalf("final equity = %v", got)
	}
}

func TestThrottleScalesEntry(t *testing.T) {
	vix := &feed.Series{Dates: []time.Time{day(0)}, Values: []float64{35}}
	e := testEngine(t, func(c *Config) { c.Throttle = risk.NewVolatilityThrottle(vix) })
	res, err := e.Run(
		map[string]*feed.History{"X": history("X", 100, 50)},
		map[string]strategy.Signal{"X": signal(-1, 0)},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Trades[0].Shares != 125 {
		t.Fatalf("throttled shares = %d, want 125", res.Trades[0].Shares)
	}
}

func TestKellyCapLimitsEntry(t *testing.T) {
	e := testEngine(t, func(c *Config) { c.KellyFraction = 0.1 })
	res, err := e.Run(
		map[string]*feed.History{"X": history("X", 100, 100)},
		map[string]strategy.Signal{"X": signal(1, 0)},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Trades[0].Shares != 100 {
		t.Fatalf("capped shares = %d, want 100", res.Trades[0].Shares)
	}
}

func TestInsufficientCashSkipsLong(t *testing.T) {
	e := testEngine(t, func(c *Config) { c.InitialCapital = 1000 })
	h := &feed.History{Symbol: "X", Bars: []feed.Bar{
		{Date: day(0), High: 100.05, Low: 99.95, Close: 100},
		{Date: day(1), High: 100.05, Low: 99.95, Close: 100},
	}}
	res, err := e.Run(map[string]*feed.History{"X": h}, map[string]strategy.Signal{"X": signal(1, 0)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("unaffordable long should be skipped: %+v", res.Trades)
	}

	res, err = e.Run(map[string]*feed.History{"X": h}, map[string]strategy.Signal{"X": signal(-1, 0)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("shorts are funded by proceeds: %+v", res.Trades)
	}
}

func TestRunRejectsMisalignedHistories(t *testing.T) {
	e := testEngine(t, nil)
	_, err := e.Run(map[string]*feed.History{
		"A": history("A", 1, 2, 3),
		"B": history("B", 1, 2),
	}, nil)
	if !errors.Is(err, feed.ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned, got %v", err)
	}
	if _, err := e.Run(nil, nil); err == nil {
		t.Fatalf("empty input should fail")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.StopMult = 0
	if _, err := NewEngine(bad); err == nil {
		t.Fatalf("zero stop multiple should fail")
	}
}

func TestRoundTripsErrors(t *testing.T) {
	if _, err := RoundTrips([]Fill{{Symbol: "X", Qty: -5, Price: 10}}); err == nil {
		t.Fatalf("close without open should fail")
	}
	fills := []Fill{
		{Symbol: "X", Date: day(0), Qty: 5, Price: 10, Opening: true},
		{Symbol: "X", Date: day(1), Qty: -4, Price: 11},
	}
	if _, err := RoundTrips(fills); err == nil {
		t.Fatalf("mismatched quantity should fail")
	}
}

func TestTradesCSVRoundTrip(t *testing.T) {
	e := testEngine(t, nil)
	res, err := e.Run(
		map[string]*feed.History{"X": history("X", 100, 50)},
		map[string]strategy.Signal{"X": signal(-1, 0)},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out", "trades.csv")
	if err := ExportTradesCSV(path, res.Trades); err != nil {
		t.Fatalf("ExportTradesCSV: %v", err)
	}
	got, err := LoadTradesCSV(path)
	if err != nil {
		t.Fatalf("LoadTradesCSV: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "X" || got[0].PnL != 12500 || got[0].Direction != risk.Short {
		t.Fatalf("loaded = %+v", got)
	}
	equityPath := filepath.Join(t.TempDir(), "equity.csv")
	if err := ExportEquityCSV(equityPath, res.Curve); err != nil {
		t.Fatalf("ExportEquityCSV: %v", err)
	}
	curve, err := LoadEquityCSV(equityPath)
	if err != nil {
		t.Fatalf("LoadEquityCSV: %v", err)
	}
	if len(curve) != len(res.Curve) || !curve[0].Date.Equal(res.Curve[0].Date) {
		t.Fatalf("curve = %+v", curve)
	}
	last := res.Curve[len(res.Curve)-1]
	if math.Abs(curve[len(curve)-1].Equity-last.Equity) > 0.01 {
		t.Errorf("final equity = %v, want %v", curve[len(curve)-1].Equity, last.Equity)
	}
}
