package strategy

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/atr-swing-bot/pkg/feed"
)

func day(i int) time.Time {
	return time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
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

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeATR(t *testing.T) {
	h := history("AAA", 10, 12, 11, 15)
	atr, err := ComputeATR(h, 2)
	if err != nil {
		t.Fatalf("ComputeATR: %v", err)
	}
	// TR: 2, max(2, |13-10|, |11-10|)=3, max(2, |12-12|, |10-12|)=2, max(2, |16-11|, |14-11|)=5
	want := []float64{2.5, 2.5, 2.5, 3.5}
	for i := range want {
		if !almost(atr[i], want[i]) {
			t.Fatalf("atr[%d] = %v, want %v", i, atr[i], want[i])
		}
	}
}

func TestComputeATRWindowOne(t *testing.T) {
	atr, err := ComputeATR(history("AAA", 100, 50), 1)
	if err != nil {
		t.Fatalf("ComputeATR: %v", err)
	}
	if atr[0] != 2 || atr[1] != 51 {
		t.Fatalf("atr = %v", atr)
	}
}

func TestComputeATRMissingAndShort(t *testing.T) {
	h := history("AAA", 10, 11, math.NaN(), 12, 13, 14)
	atr, err := ComputeATR(h, 2)
	if err != nil {
		t.Fatalf("ComputeATR: %v", err)
	}
	if !math.IsNaN(atr[2]) {
		t.Fatalf("missing bar should have NaN ATR, got %v", atr[2])
	}
	for _, i := range []int{0, 1, 3, 4, 5} {
		if math.IsNaN(atr[i]) {
			t.Fatalf("atr[%d] should be defined", i)
		}
	}

	short, _ := ComputeATR(history("BBB", 10, 11), 5)
	if !math.IsNaN(short[0]) || !math.IsNaN(short[1]) {
		t.Fatalf("history shorter than window should be undefined: %v", short)
	}
	if _, err := ComputeATR(h, 0); err == nil {
		t.Fatalf("window 0 should fail")
	}
}

func TestRollingZScore(t *testing.T) {
	z := RollingZScore(history("AAA", 1, 2, 3, 10), 3)
	if !math.IsNaN(z[0]) || !math.IsNaN(z[1]) {
		t.Fatalf("warm-up should be NaN")
	}
	// window [1,2,3]: mean 2, sample std 1 -> z = 1
	if !almost(z[2], 1) {
		t.Fatalf("z[2] = %v", z[2])
	}
	flat := RollingZScore(history("FLAT", 5, 5, 5), 3)
	if !math.IsNaN(flat[2]) {
		t.Fatalf("zero stdev should be NaN, got %v", flat[2])
	}
}

func TestMeanReversionSignal(t *testing.T) {
	h := history("AAA", 10, 10, 10, 10, 10.5, 9.5, 8, 12, 13)
	sig := MeanReversion{Window: 4, EnterThresh: -1, ExitThresh: 0}.Generate(h)
	z := RollingZScore(h, 4)
	for i, v := range sig.Values {
		want := 0
		if z[i] < -1 {
			want = 1
		}
		if v != want {
			t.Fatalf("sig[%d] = %d, z = %v", i, v, z[i])
		}
		if v < 0 {
			t.Fatalf("long-only mean reversion produced a short")
		}
	}

	ls := MeanReversion{Window: 4, EnterThresh: -1, ExitThresh: 0.2, LongShort: true, ShortEnter: 1}.Generate(h)
	for i, v := range ls.Values {
		switch {
		case z[i] > 1 && v != -1:
			t.Fatalf("expected short at %d (z=%v)", i, z[i])
		case math.Abs(z[i]) < 0.2 && v != 0:
			t.Fatalf("expected flat at %d (z=%v)", i, z[i])
		}
	}
}

func TestMomentumSignal(t *testing.T) {
	h := history("AAA", 100, 100, 110, 99, 90)
	sig := Momentum{Window: 2, LongThresh: 0.05, ShortThresh: -0.05}.Generate(h)
	want := []int{0, 0, 1, 0, -1}
	for i := range want {
		if sig.Values[i] != want[i] {
			t.Fatalf("sig = %v, want %v", sig.Values, want)
		}
	}
}

func TestCumulativeReturnStartsAtWindowEnd(t *testing.T) {
	h := history("AAA", 100, 104, 110, 99)
	cum := CumulativeReturn(h, 3)
	if !math.IsNaN(cum[0]) || !math.IsNaN(cum[1]) {
		t.Fatalf("cum = %v, want NaN before index 2", cum)
	}
	// index 2 compounds the zero first-day return with two real ones: 110/100 - 1
	if math.Abs(cum[2]-0.1) > 1e-12 {
		t.Errorf("cum[2] = %v, want 0.1", cum[2])
	}
	if math.Abs(cum[3]-(99.0/100-1)) > 1e-12 {
		t.Errorf("cum[3] = %v, want %v", cum[3], 99.0/100-1)
	}
	if v := VolAdjustedMomentum(h, 3); math.IsNaN(v[2]) || math.IsNaN(v[3]) {
		t.Errorf("vol-adjusted = %v, want values from index 2", v)
	}
}

func TestGeneratorFromParams(t *testing.T) {
	g, err := GeneratorFromParams(FamilyMeanReversion, Params{"window": 20, "enter_thresh": -0.5, "exit_thresh": 0})
	if err != nil {
		t.Fatalf("GeneratorFromParams: %v", err)
	}
	if mr, ok := g.(MeanReversion); !ok || mr.Window != 20 || mr.EnterThresh != -0.5 {
		t.Fatalf("unexpected generator %#v", g)
	}
	if _, err := GeneratorFromParams(FamilyMomentum, Params{"window": 21, "long_thresh": 0.05}); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("missing key should fail with ErrMissingParam, got %v", err)
	}
	if _, err := GeneratorFromParams("breakout", Params{}); !errors.Is(err, ErrUnknownFamily) {
		t.Fatalf("unknown family should fail, got %v", err)
	}
	if _, err := GeneratorFromParams(FamilyMeanReversion, Params{"window": 1, "enter_thresh": -1, "exit_thresh": 0}); err == nil {
		t.Fatalf("window 1 z-score should fail validation")
	}
}

func TestParamsKey(t *testing.T) {
	a := Params{"window": 20, "enter_thresh": -0.5}
	b := Params{"enter_thresh": -0.5, "window": 20}
	if a.Key() != b.Key() || a.Key() != "enter_thresh=-0.5,window=20" {
		t.Fatalf("Key = %q / %q", a.Key(), b.Key())
	}
}

func TestEnsemble(t *testing.T) {
	a := Signal{Dates: []time.Time{day(0), day(1), day(2), day(3)}, Values: []int{1, 1, -1, -1}}
	b := Signal{Dates: a.Dates, Values: []int{1, 0, -1, 1}}
	got := Ensemble([]Signal{a, b})
	want := []int{1, 0, -1, 0}
	for i := range want {
		if got.Values[i] != want[i] {
			t.Fatalf("ensemble = %v, want %v", got.Values, want)
		}
	}
	if a.Values[1] != 1 {
		t.Fatalf("ensemble mutated its input")
	}
}

func TestSignalGet(t *testing.T) {
	s := Signal{Dates: []time.Time{day(0), day(2)}, Values: []int{1, -1}}
	if s.Get(day(2)) != -1 || s.Get(day(1)) != 0 || s.Get(day(9)) != 0 {
		t.Fatalf("Get lookup wrong")
	}
}

func TestRegimeFilterUnavailable(t *testing.T) {
	sig := Signal{Dates: []time.Time{day(0), day(1)}, Values: []int{1, -1}}
	got, status := ApplyRegimeFilter(sig, DefaultAllowedRegimes, nil, nil)
	if status != RegimeUnavailable {
		t.Fatalf("status = %v", status)
	}
	if got.Values[0] != 1 || got.Values[1] != -1 {
		t.Fatalf("unavailable filter must pass the signal through")
	}

	_, status = ApplyRegimeFilter(sig, []Regime{RegimeCalm, RegimeNormal, RegimeTurbulent}, nil, nil)
	if status != RegimeAllAllowed {
		t.Fatalf("all regimes allowed: status = %v", status)
	}
	_, status = ApplyRegimeFilter(Signal{}, DefaultAllowedRegimes, nil, nil)
	if status != RegimeEmptySignal {
		t.Fatalf("empty signal: status = %v", status)
	}
}

func TestRegimeFilterApplied(t *testing.T) {
	n := 60
	dates := make([]time.Time, n)
	vix := make([]float64, n)
	spy := make([]float64, n)
	price := 100.0
	for i := 0; i < n; i++ {
		dates[i] = day(i)
		// second half: higher VIX and wilder benchmark swings
		if i < n/2 {
			vix[i] = 12 + float64(i%3)*0.1
			price *= 1 + 0.001*float64(i%2*2-1)
		} else {
			vix[i] = 35 + float64(i%3)*0.1
			price *= 1 + 0.03*float64(i%2*2-1)
		}
		spy[i] = price
	}
	in := &RegimeInputs{
		VIX: &feed.Series{Dates: dates, Values: vix},
		SPY: &feed.Series{Dates: dates, Values: spy},
	}
	sig := NewSignal(dates)
	for i := range sig.Values {
		sig.Values[i] = 1
	}

	got, status := ApplyRegimeFilter(sig, DefaultAllowedRegimes, in, nil)
	if status != RegimeApplied {
		t.Fatalf("status = %v", status)
	}
	if got.Values[n-1] != 0 {
		t.Fatalf("turbulent tail should be filtered")
	}
	if got.Values[0] != 0 {
		t.Fatalf("dates before the first classified regime should be filtered")
	}
	kept := 0
	for _, v := range got.Values {
		kept += v
	}
	if kept == 0 {
		t.Fatalf("calm stretch should keep some entries")
	}
}

func TestPercentileRank(t *testing.T) {
	got := percentileRank([]float64{3, 1, 2, 2})
	want := []float64{1.0, 0.25, 0.625, 0.625}
	for i := range want {
		if !almost(got[i], want[i]) {
			t.Fatalf("percentileRank = %v, want %v", got, want)
		}
	}
}

func TestDenseRank(t *testing.T) {
	vals := []float64{0.1, 0.3, 0.3, -0.2}
	hi := denseRank(vals, true)
	if hi[1] != 1 || hi[2] != 1 || hi[0] != 2 || hi[3] != 3 {
		t.Fatalf("highest ranks = %v", hi)
	}
	lo := denseRank(vals, false)
	if lo[3] != 1 || lo[0] != 2 || lo[1] != 3 {
		t.Fatalf("lowest ranks = %v", lo)
	}
}

func TestCrossSectionalStrategy(t *testing.T) {
	histories := map[string]*feed.History{
		"UP":   history("UP", 100, 101, 103, 106, 110),
		"FLAT": history("FLAT", 100, 100, 100, 100, 100),
		"DOWN": history("DOWN", 100, 99, 97, 94, 90),
	}
	cfg, err := NewCrossSectionalStrategy(CrossSectionalParams{Family: FamilyMomentum, TopN: 1, Window: 2}, []Regime{RegimeCalm, RegimeNormal, RegimeTurbulent}, false)
	if err != nil {
		t.Fatalf("NewCrossSectionalStrategy: %v", err)
	}
	res, err := cfg.Generate(histories, nil, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Signals["UP"].Values[4] != 1 || res.Signals["DOWN"].Values[4] != 0 || res.Signals["FLAT"].Values[4] != 0 {
		t.Fatalf("top-1 momentum should select UP only")
	}
	// Warm-up rows tie at zero, so all three share rank 1.
	if res.Signals["DOWN"].Values[0] != 1 {
		t.Fatalf("tied warm-up rows share the top rank")
	}

	buffered, _ := NewCrossSectionalStrategy(CrossSectionalParams{Family: FamilyMomentum, TopN: 1, Window: 2, CashBuffer: true}, []Regime{RegimeCalm, RegimeNormal, RegimeTurbulent}, false)
	histories["DOWN"] = history("DOWN", 100, 90, 80, 70, 60)
	res, _ = buffered.Generate(histories, nil, nil)
	if res.Signals["UP"].Values[4] != 0 {
		t.Fatalf("cash buffer should stand aside when the universe mean is negative")
	}
}

func TestStrategyConfigValidation(t *testing.T) {
	if _, err := NewPerInstrumentStrategy(nil, nil, false); err == nil {
		t.Fatalf("empty signal list should fail")
	}
	if _, err := NewCrossSectionalStrategy(CrossSectionalParams{Family: FamilyMomentum, TopN: 0}, nil, false); err == nil {
		t.Fatalf("top_n 0 should fail")
	}
	if _, err := NewPerInstrumentStrategy([]Generator{DefaultMomentum()}, []Regime{"sideways"}, false); err == nil {
		t.Fatalf("unknown regime should fail")
	}
	cfg, err := NewPerInstrumentStrategy([]Generator{DefaultMomentum()}, nil, false)
	if err != nil {
		t.Fatalf("NewPerInstrumentStrategy: %v", err)
	}
	if len(cfg.AllowedRegimes) != 2 {
		t.Fatalf("default regimes = %v", cfg.AllowedRegimes)
	}
}

func TestGenerateLongOnlyClipsShorts(t *testing.T) {
	h := history("AAA", 100, 100, 80, 70)
	cfg, err := NewPerInstrumentStrategy([]Generator{Momentum{Window: 1, LongThresh: 0.05, ShortThresh: -0.05}}, nil, false)
	if err != nil {
		t.Fatalf("NewPerInstrumentStrategy: %v", err)
	}
	res, err := cfg.Generate(map[string]*feed.History{"AAA": h}, nil, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, v := range res.Signals["AAA"].Values {
		if v < 0 {
			t.Fatalf("long-only strategy emitted a short")
		}
	}
	if res.Regime["AAA"] != RegimeUnavailable {
		t.Fatalf("regime status = %v", res.Regime["AAA"])
	}
}
