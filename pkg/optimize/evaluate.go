package optimize

import (
	"errors"

	"go.uber.org/zap"

	"github.com/atr-swing-bot/pkg/backtest"
	"github.com/atr-swing-bot/pkg/feed"
	"github.com/atr-swing-bot/pkg/metrics"
	"github.com/atr-swing-bot/pkg/strategy"
)

// ErrEmptyWindow is returned when a history slice has no bars to simulate.
var ErrEmptyWindow = errors.New("empty evaluation window")

// Evaluator scores one parameter set on one instrument: signal, simulation and
// metrics. It holds no per-run state and is safe for concurrent use.
type Evaluator struct {
	engine   *backtest.Engine
	riskFree float64
	logger   *zap.Logger

	// Regime, when set, filters every signal to AllowedRegimes.
	Regime         *strategy.RegimeInputs
	AllowedRegimes []strategy.Regime
	LongOnly       bool
}

// NewEvaluator creates an evaluator backed by engine.
func NewEvaluator(engine *backtest.Engine, riskFree float64, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{engine: engine, riskFree: riskFree, logger: logger}
}

// Engine returns the backing engine
func (ev *Evaluator) Engine() *backtest.Engine {
	return ev.engine
}

// Evaluate generates the set's signal over h and returns the run's metrics.
func (ev *Evaluator) Evaluate(h *feed.History, set ParamSet) (metrics.Record, error) {
	if h.Len() == 0 {
		return metrics.Record{}, ErrEmptyWindow
	}
	g, err := set.Generator()
	if err != nil {
		return metrics.Record{}, err
	}
	sig := g.Generate(h)
	if ev.Regime != nil {
		allowed := ev.AllowedRegimes
		if allowed == nil {
			allowed = strategy.DefaultAllowedRegimes
		}
		sig, _ = strategy.ApplyRegimeFilter(sig, allowed, ev.Regime, ev.logger)
	}
	if ev.LongOnly {
		sig = sig.LongOnly()
	}

	res, err := ev.engine.Run(
		map[string]*feed.History{h.Symbol: h},
		map[string]strategy.Signal{h.Symbol: sig},
	)
	if err != nil {
		return metrics.Record{}, err
	}
	return metrics.Summarize(res, ev.riskFree), nil
}
