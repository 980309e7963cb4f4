package runner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atr-swing-bot/pkg/backtest"
	"github.com/atr-swing-bot/pkg/config"
	"github.com/atr-swing-bot/pkg/feed"
	"github.com/atr-swing-bot/pkg/optimize"
	"github.com/atr-swing-bot/pkg/risk"
	"github.com/atr-swing-bot/pkg/scanner"
	"github.com/atr-swing-bot/pkg/strategy"
)

// Env is the loaded configuration plus the shared services every command uses.
type Env struct {
	Cfg     *config.Config
	Logger  *zap.Logger
	Cache   *feed.CacheManager
	Scanner *scanner.Scanner
}

// Setup loads and validates configuration and builds the logger.
func Setup() (*Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return NewEnv(cfg, logger), nil
}

// NewEnv wires services around an existing configuration
func NewEnv(cfg *config.Config, logger *zap.Logger) *Env {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Env{
		Cfg:     cfg,
		Logger:  logger,
		Cache:   feed.NewCacheManager(cfg.CacheDir),
		Scanner: scanner.NewScanner(cfg, logger),
	}
}

// Range is an optional inclusive date filter; zero bounds are open.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) apply(h *feed.History) *feed.History {
	if r.Start.IsZero() && r.End.IsZero() {
		return h
	}
	end := r.End
	if end.IsZero() {
		end = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return h.Between(r.Start, end)
}

// LoadUniverse loads the tickers (the scanner's universe when empty), applies the
// universe filters and date range, and aligns everything onto one date index.
// Gaps stay missing rather than being filled.
func (e *Env) LoadUniverse(tickers []string, r Range) (map[string]*feed.History, error) {
	if len(tickers) == 0 {
		tickers = e.Scanner.GetTickers()
	}
	loaded, skipped, err := e.Cache.LoadUniverse(e.Cfg.DataDir, tickers, e.Logger)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		e.Logger.Warn("some tickers could not be loaded", zap.Strings("symbols", skipped))
	}

	ranged := make(map[string]*feed.History, len(loaded))
	for s, h := range loaded {
		if sub := r.apply(h); sub.Len() > 0 {
			ranged[s] = sub
		}
	}
	kept, _ := e.Scanner.Select(ranged)
	if len(kept) == 0 {
		return nil, feed.ErrNoData
	}
	aligned := feed.Align(kept, false)
	e.Logger.Info("universe loaded",
		zap.Int("instruments", len(aligned)),
		zap.Int("days", len(feed.UnionDates(aligned))))
	return aligned, nil
}

// VIX returns the configured VIX series, or nil when none is configured or readable.
func (e *Env) VIX() *feed.Series {
	if e.Cfg.VIXPath == "" {
		return nil
	}
	s, err := feed.LoadSeries("VIX", e.Cfg.VIXPath)
	if err != nil {
		e.Logger.Warn("VIX unavailable", zap.String("path", e.Cfg.VIXPath), zap.Error(err))
		return nil
	}
	return s
}

// Benchmark returns the benchmark close series from the data directory, or nil.
func (e *Env) Benchmark() *feed.Series {
	return e.Cache.LoadOptionalSeries(e.Cfg.DataDir, e.Cfg.BenchmarkTicker, e.Logger)
}

// SectorSeries returns whichever sector ETF closes are available.
func (e *Env) SectorSeries() []*feed.Series {
	var out []*feed.Series
	for _, etf := range scanner.SectorETFs {
		if s := e.Cache.LoadOptionalSeries(e.Cfg.DataDir, etf, e.Logger); s != nil {
			out = append(out, s)
		}
	}
	return out
}

// RegimeInputs pairs the VIX and benchmark series for the regime filter.
func (e *Env) RegimeInputs(vix, bench *feed.Series) *strategy.RegimeInputs {
	return &strategy.RegimeInputs{VIX: vix, SPY: bench}
}

// EngineConfig builds the simulation settings. A nil vix disables the throttle.
func (e *Env) EngineConfig(vix *feed.Series) backtest.Config {
	cfg := backtest.Config{
		InitialCapital: e.Cfg.InitialCapital,
		RiskPct:        e.Cfg.RiskPct,
		ATRWindow:      e.Cfg.ATRWindow,
		StopMult:       e.Cfg.StopMult,
		KellyFraction:  e.Cfg.KellyFraction,
		Throttle:       risk.NoThrottle{},
		Logger:         e.Logger,
	}
	if vix != nil {
		cfg.Throttle = risk.NewVolatilityThrottle(vix)
	}
	return cfg
}

// ParseTickers splits a comma list, upper-casing each ticker.
func ParseTickers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.ToUpper(strings.TrimSpace(part)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ParseDate parses a YYYY-MM-DD flag; empty gives the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(feed.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// ParseRegimes parses a comma list of regimes. Empty keeps the default (calm and
// normal); "all" allows every regime.
func ParseRegimes(s string) ([]strategy.Regime, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "":
		return nil, nil
	case "all":
		return []strategy.Regime{strategy.RegimeCalm, strategy.RegimeNormal, strategy.RegimeTurbulent}, nil
	}
	var out []strategy.Regime
	for _, part := range strings.Split(s, ",") {
		r := strategy.Regime(strings.TrimSpace(part))
		switch r {
		case strategy.RegimeCalm, strategy.RegimeNormal, strategy.RegimeTurbulent:
			out = append(out, r)
		default:
			return nil, fmt.Errorf("unknown regime %q", part)
		}
	}
	return out, nil
}

// StrategyOptions selects and configures a strategy from command-line input.
type StrategyOptions struct {
	// Name is mean_reversion, momentum, ensemble, cs_momentum or cs_mean_reversion.
	Name       string
	Saved      []optimize.ParamSet // overrides the default generator parameters
	LongShort  bool
	Allowed    []strategy.Regime
	TopN       int
	CashBuffer bool
}

// ErrUnknownStrategy is returned for a strategy name BuildStrategy does not know.
var ErrUnknownStrategy = errors.New("unknown strategy")

// BuildStrategy returns the validated strategy for opts.
func BuildStrategy(opts StrategyOptions) (*strategy.StrategyConfig, error) {
	switch opts.Name {
	case "cs_momentum", "cs_mean_reversion":
		family := strategy.FamilyMomentum
		if opts.Name == "cs_mean_reversion" {
			family = strategy.FamilyMeanReversion
		}
		cs := strategy.CrossSectionalParams{Family: family, TopN: opts.TopN, CashBuffer: opts.CashBuffer}
		return strategy.NewCrossSectionalStrategy(cs, opts.Allowed, opts.LongShort)
	}

	var gens []strategy.Generator
	if len(opts.Saved) > 0 {
		for _, set := range opts.Saved {
			if set.Family == "" {
				set.Family = strategy.Family(opts.Name)
			}
			g, err := set.Generator()
			if err != nil {
				return nil, err
			}
			gens = append(gens, g)
		}
	} else {
		switch opts.Name {
		case string(strategy.FamilyMeanReversion):
			gens = []strategy.Generator{strategy.DefaultMeanReversion()}
		case string(strategy.FamilyMomentum):
			gens = []strategy.Generator{strategy.DefaultMomentum()}
		case "ensemble":
			gens = []strategy.Generator{strategy.DefaultMeanReversion(), strategy.DefaultMomentum()}
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, opts.Name)
		}
	}
	return strategy.NewPerInstrumentStrategy(gens, opts.Allowed, opts.LongShort)
}
