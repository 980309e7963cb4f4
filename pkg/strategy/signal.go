package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/atr-swing-bot/pkg/feed"
)

var (
	// ErrUnknownFamily is returned for a signal family outside the supported set.
	ErrUnknownFamily = errors.New("unknown signal family")
	// ErrMissingParam is returned when a parameter set lacks a required key.
	ErrMissingParam = errors.New("missing parameter")
)

// Signal is a per-date trading intent: +1 long, -1 short, 0 flat.
type Signal struct {
	Dates  []time.Time
	Values []int
}

// NewSignal returns a flat signal over dates.
func NewSignal(dates []time.Time) Signal {
	return Signal{Dates: dates, Values: make([]int, len(dates))}
}

// Get returns the signal on date, 0 when the date is absent.
func (s Signal) Get(date time.Time) int {
	i := sort.Search(len(s.Dates), func(i int) bool { return !s.Dates[i].Before(date) })
	if i < len(s.Dates) && s.Dates[i].Equal(date) {
		return s.Values[i]
	}
	return 0
}

// Clone returns an independent copy
func (s Signal) Clone() Signal {
	out := Signal{Dates: s.Dates, Values: make([]int, len(s.Values))}
	copy(out.Values, s.Values)
	return out
}

// LongOnly clips short entries to flat.
func (s Signal) LongOnly() Signal {
	out := s.Clone()
	for i, v := range out.Values {
		if v < 0 {
			out.Values[i] = 0
		}
	}
	return out
}

// Family names a signal generator.
type Family string

const (
	FamilyMeanReversion Family = "mean_reversion"
	FamilyMomentum      Family = "momentum"
)

// Params is one named parameter set, the unit the optimizer searches over.
type Params map[string]float64

// Key returns a canonical "k=v,k=v" string with keys in sorted order.
func (p Params) Key() string {
	keys := p.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(p[k], 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// Keys returns the parameter names in sorted order
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Params) require(family Family, key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("%s: %w %q", family, ErrMissingParam, key)
	}
	return v, nil
}

// Generator turns one instrument's history into a Signal.
type Generator interface {
	Family() Family
	Params() Params
	Validate() error
	Generate(h *feed.History) Signal
}

// MeanReversion enters long when the rolling z-score of close drops below
// EnterThresh. With LongShort it also enters short above ShortEnter, and goes
// flat when |z| is below ExitThresh.
type MeanReversion struct {
	Window      int
	EnterThresh float64
	ExitThresh  float64
	LongShort   bool
	ShortEnter  float64
}

func (m MeanReversion) Family() Family { return FamilyMeanReversion }

func (m MeanReversion) Params() Params {
	p := Params{
		"window":       float64(m.Window),
		"enter_thresh": m.EnterThresh,
		"exit_thresh":  m.ExitThresh,
	}
	if m.LongShort {
		p["short_enter"] = m.ShortEnter
	}
	return p
}

func (m MeanReversion) Validate() error {
	if m.Window < 2 {
		return fmt.Errorf("mean_reversion: window must be >= 2, got %d", m.Window)
	}
	if m.LongShort && m.ShortEnter <= m.EnterThresh {
		return fmt.Errorf("mean_reversion: short_enter (%v) must exceed enter_thresh (%v)", m.ShortEnter, m.EnterThresh)
	}
	return nil
}

func (m MeanReversion) Generate(h *feed.History) Signal {
	z := RollingZScore(h, m.Window)
	sig := NewSignal(h.Dates())
	for i, v := range z {
		// NaN compares false everywhere, so undefined points stay flat.
		if !m.LongShort {
			if v < m.EnterThresh {
				sig.Values[i] = 1
			}
			if v > m.ExitThresh {
				sig.Values[i] = 0
			}
			continue
		}
		switch {
		case v < m.EnterThresh:
			sig.Values[i] = 1
		case v > m.ShortEnter:
			sig.Values[i] = -1
		}
		if v > -m.ExitThresh && v < m.ExitThresh {
			sig.Values[i] = 0
		}
	}
	return sig
}

// Momentum goes long when trailing return exceeds LongThresh and short when it
// is below ShortThresh. VolAdjust divides the return by its rolling volatility.
type Momentum struct {
	Window      int
	LongThresh  float64
	ShortThresh float64
	VolAdjust   bool
}

func (m Momentum) Family() Family { return FamilyMomentum }

func (m Momentum) Params() Params {
	p := Params{
		"window":       float64(m.Window),
		"long_thresh":  m.LongThresh,
		"short_thresh": m.ShortThresh,
	}
	if m.VolAdjust {
		p["vol_adjust"] = 1
	}
	return p
}

func (m Momentum) Validate() error {
	if m.Window < 1 {
		return fmt.Errorf("momentum: window must be >= 1, got %d", m.Window)
	}
	if m.VolAdjust && m.Window < 2 {
		return fmt.Errorf("momentum: vol-adjusted window must be >= 2")
	}
	if m.ShortThresh > m.LongThresh {
		return fmt.Errorf("momentum: short_thresh (%v) above long_thresh (%v)", m.ShortThresh, m.LongThresh)
	}
	return nil
}

func (m Momentum) Generate(h *feed.History) Signal {
	var mom []float64
	if m.VolAdjust {
		mom = VolAdjustedMomentum(h, m.Window)
	} else {
		mom = CumulativeReturn(h, m.Window)
	}
	sig := NewSignal(h.Dates())
	for i, v := range mom {
		switch {
		case v > m.LongThresh:
			sig.Values[i] = 1
		case v < m.ShortThresh:
			sig.Values[i] = -1
		}
	}
	return sig
}

// DefaultMeanReversion returns the long-only z-score signal with its usual settings.
func DefaultMeanReversion() MeanReversion {
	return MeanReversion{Window: 20, EnterThresh: -1.0, ExitThresh: 0.0}
}

// DefaultMomentum returns the trailing-return signal with its usual settings.
func DefaultMomentum() Momentum {
	return Momentum{Window: 21, LongThresh: 0.01, ShortThresh: -0.01}
}

// GeneratorFromParams builds a validated generator for family from p.
// Every required key must be present.
func GeneratorFromParams(family Family, p Params) (Generator, error) {
	var g Generator
	switch family {
	case FamilyMeanReversion:
		window, err := p.require(family, "window")
		if err != nil {
			return nil, err
		}
		enter, err := p.require(family, "enter_thresh")
		if err != nil {
			return nil, err
		}
		exit, err := p.require(family, "exit_thresh")
		if err != nil {
			return nil, err
		}
		mr := MeanReversion{Window: int(window), EnterThresh: enter, ExitThresh: exit}
		if v, ok := p["short_enter"]; ok {
			mr.LongShort, mr.ShortEnter = true, v
		}
		g = mr
	case FamilyMomentum:
		window, err := p.require(family, "window")
		if err != nil {
			return nil, err
		}
		long, err := p.require(family, "long_thresh")
		if err != nil {
			return nil, err
		}
		short, err := p.require(family, "short_thresh")
		if err != nil {
			return nil, err
		}
		g = Momentum{Window: int(window), LongThresh: long, ShortThresh: short, VolAdjust: p["vol_adjust"] != 0}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Ensemble combines component signals; a long (short) survives only when every
// component is also long (short).
func Ensemble(components []Signal) Signal {
	if len(components) == 0 {
		return Signal{}
	}
	out := components[0].Clone()
	for _, s := range components[1:] {
		for i := range out.Values {
			v := 0
			if i < len(s.Values) {
				v = s.Values[i]
			}
			if out.Values[i] > 0 && v <= 0 {
				out.Values[i] = 0
			}
			if out.Values[i] < 0 && v >= 0 {
				out.Values[i] = 0
			}
		}
	}
	return out
}
