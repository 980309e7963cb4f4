package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/atr-swing-bot/pkg/feed"
)

// Mode selects how signals are produced across the universe.
type Mode int

const (
	// PerInstrument runs each generator on every instrument independently.
	PerInstrument Mode = iota
	// CrossSectional ranks the universe each day and holds the top N.
	CrossSectional
)

func (m Mode) String() string {
	if m == CrossSectional {
		return "cross_sectional"
	}
	return "per_instrument"
}

// CrossSectionalParams configures the ranking strategy. Momentum ranks trailing
// returns highest-first, mean reversion lowest-first.
type CrossSectionalParams struct {
	Family     Family
	TopN       int
	Window     int // 0 picks 60 for momentum and 5 for mean reversion
	CashBuffer bool
}

// StrategyConfig is a validated description of which signals to trade.
// Build it with NewPerInstrumentStrategy or NewCrossSectionalStrategy.
type StrategyConfig struct {
	Mode           Mode
	Signals        []Generator
	CrossSectional CrossSectionalParams
	AllowedRegimes []Regime
	LongShort      bool
}

// NewPerInstrumentStrategy validates a per-instrument configuration. A nil
// allowed list means calm and normal markets.
func NewPerInstrumentStrategy(signals []Generator, allowed []Regime, longShort bool) (*StrategyConfig, error) {
	if len(signals) == 0 {
		return nil, errors.New("strategy needs at least one signal")
	}
	for _, g := range signals {
		if g == nil {
			return nil, errors.New("strategy signal is nil")
		}
		if err := g.Validate(); err != nil {
			return nil, err
		}
	}
	allowed, err := normalizeRegimes(allowed)
	if err != nil {
		return nil, err
	}
	return &StrategyConfig{Mode: PerInstrument, Signals: signals, AllowedRegimes: allowed, LongShort: longShort}, nil
}

// NewCrossSectionalStrategy validates a ranking configuration.
func NewCrossSectionalStrategy(cs CrossSectionalParams, allowed []Regime, longShort bool) (*StrategyConfig, error) {
	if cs.TopN <= 0 {
		return nil, fmt.Errorf("cross-sectional top_n must be positive, got %d", cs.TopN)
	}
	switch cs.Family {
	case FamilyMomentum:
		if cs.Window == 0 {
			cs.Window = 60
		}
	case FamilyMeanReversion:
		if cs.Window == 0 {
			cs.Window = 5
		}
	default:
		return nil, fmt.Errorf("cross-sectional: %w: %q", ErrUnknownFamily, cs.Family)
	}
	if cs.Window < 1 {
		return nil, fmt.Errorf("cross-sectional window must be >= 1, got %d", cs.Window)
	}
	allowed, err := normalizeRegimes(allowed)
	if err != nil {
		return nil, err
	}
	return &StrategyConfig{Mode: CrossSectional, CrossSectional: cs, AllowedRegimes: allowed, LongShort: longShort}, nil
}

func normalizeRegimes(allowed []Regime) ([]Regime, error) {
	if allowed == nil {
		return append([]Regime(nil), DefaultAllowedRegimes...), nil
	}
	for _, r := range allowed {
		switch r {
		case RegimeCalm, RegimeNormal, RegimeTurbulent:
		default:
			return nil, fmt.Errorf("unknown regime %q", r)
		}
	}
	return allowed, nil
}

// GenerateResult is the per-symbol signal map plus what the regime filter did.
type GenerateResult struct {
	Signals map[string]Signal
	Regime  map[string]RegimeStatus
}

// Generate produces one signal per history. regime may be nil, in which case the
// regime filter reports RegimeUnavailable unless every regime is allowed.
func (c *StrategyConfig) Generate(histories map[string]*feed.History, regime *RegimeInputs, logger *zap.Logger) (*GenerateResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	res := &GenerateResult{
		Signals: make(map[string]Signal, len(histories)),
		Regime:  make(map[string]RegimeStatus, len(histories)),
	}

	var raw map[string]Signal
	if c.Mode == CrossSectional {
		var err error
		if raw, err = c.crossSectional(histories); err != nil {
			return nil, err
		}
	} else {
		raw = make(map[string]Signal, len(histories))
		for symbol, h := range histories {
			parts := make([]Signal, len(c.Signals))
			for i, g := range c.Signals {
				parts[i] = g.Generate(h)
			}
			raw[symbol] = Ensemble(parts)
		}
	}

	symbols := make([]string, 0, len(raw))
	for s := range raw {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		sig, status := ApplyRegimeFilter(raw[symbol], c.AllowedRegimes, regime, logger.With(zap.String("symbol", symbol)))
		if !c.LongShort {
			sig = sig.LongOnly()
		}
		res.Signals[symbol] = sig
		res.Regime[symbol] = status
	}
	return res, nil
}

// crossSectional ranks trailing returns across the aligned universe. Undefined
// returns rank as zero. The cash buffer zeroes a day when the universe mean is not positive.
func (c *StrategyConfig) crossSectional(histories map[string]*feed.History) (map[string]Signal, error) {
	cs := c.CrossSectional
	dates, err := feed.CommonDates(histories)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(histories))
	for s := range histories {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	metric := make(map[string][]float64, len(symbols))
	for _, s := range symbols {
		r := CumulativeReturn(histories[s], cs.Window)
		for i, v := range r {
			if math.IsNaN(v) {
				r[i] = 0
			}
		}
		metric[s] = r
	}

	out := make(map[string]Signal, len(symbols))
	for _, s := range symbols {
		out[s] = NewSignal(dates)
	}

	row := make([]float64, len(symbols))
	for t := range dates {
		sum := 0.0
		for j, s := range symbols {
			row[j] = metric[s][t]
			sum += row[j]
		}
		ranks := denseRank(row, cs.Family == FamilyMomentum)
		universeOK := len(symbols) > 0 && sum/float64(len(symbols)) > 0
		for j, s := range symbols {
			if ranks[j] > cs.TopN {
				continue
			}
			if cs.CashBuffer && !universeOK {
				continue
			}
			out[s].Values[t] = 1
		}
	}
	return out, nil
}

// denseRank ranks vals 1..k with ties sharing a rank; highest=true ranks the largest first.
func denseRank(vals []float64, highest bool) []int {
	uniq := append([]float64(nil), vals...)
	sort.Float64s(uniq)
	distinct := uniq[:0]
	for i, v := range uniq {
		if i == 0 || v != uniq[i-1] {
			distinct = append(distinct, v)
		}
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		pos := sort.SearchFloat64s(distinct, v)
		if highest {
			out[i] = len(distinct) - pos
		} else {
			out[i] = pos + 1
		}
	}
	return out
}
