package backtest

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/atr-swing-bot/pkg/feed"
	"github.com/atr-swing-bot/pkg/risk"
	"github.com/atr-swing-bot/pkg/strategy"
)

// Config controls sizing and stops for a run.
type Config struct {
	InitialCapital float64
	RiskPct        float64 // fraction of equity risked per entry
	ATRWindow      int
	StopMult       float64 // stop distance in ATRs
	KellyFraction  float64 // leverage cap; 0 disables it
	Throttle       risk.Throttle
	Logger         *zap.Logger
}

// DefaultConfig returns the standard settings: $1M, 0.3% risk, 14-day ATR, 2×ATR stop.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 1000000,
		RiskPct:        0.003,
		ATRWindow:      strategy.DefaultATRWindow,
		StopMult:       2.0,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be > 0")
	}
	if c.RiskPct <= 0 {
		return fmt.Errorf("risk fraction must be > 0")
	}
	if c.ATRWindow < 1 {
		return fmt.Errorf("atr window must be >= 1")
	}
	if c.StopMult <= 0 {
		return fmt.Errorf("stop multiple must be > 0")
	}
	if c.KellyFraction < 0 {
		return fmt.Errorf("kelly fraction must be >= 0")
	}
	return nil
}

// Engine simulates ATR-sized entries with ATR stops over daily bars.
// An Engine holds no per-run state, so one value may serve concurrent runs.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// NewEngine creates a new engine
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Throttle == nil {
		cfg.Throttle = risk.NoThrottle{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// run is the mutable state of one simulation.
type run struct {
	cfg     Config
	logger  *zap.Logger
	dates   []time.Time
	symbols []string
	hist    map[string]*feed.History
	atr     map[string][]float64
	sig     map[string]strategy.Signal

	book      *PositionManager
	account   *risk.CashAccount
	lastPrice map[string]float64
	res       *Result
}

// Run simulates the histories against their signals. Every history must share one
// date index. A symbol without a signal is never traded.
//
// Each day runs three steps in order: stop exits at today's close, entries from
// yesterday's signal sized on yesterday's ATR and equity and filled at yesterday's
// close, then mark to market. Open positions are closed on the final date.
func (e *Engine) Run(histories map[string]*feed.History, signals map[string]strategy.Signal) (*Result, error) {
	if len(histories) == 0 {
		return nil, errors.New("no histories to simulate")
	}
	dates, err := feed.CommonDates(histories)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, errors.New("histories are empty")
	}

	r := &run{
		cfg:       e.cfg,
		logger:    e.logger,
		dates:     dates,
		hist:      histories,
		atr:       make(map[string][]float64, len(histories)),
		sig:       signals,
		book:      NewPositionManager(),
		account:   risk.NewCashAccount(e.cfg.InitialCapital),
		lastPrice: make(map[string]float64, len(histories)),
		res:       &Result{Curve: make([]EquityPoint, len(dates))},
	}
	for symbol, h := range histories {
		r.symbols = append(r.symbols, symbol)
		atr, err := strategy.ComputeATR(h, e.cfg.ATRWindow)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", symbol, err)
		}
		r.atr[symbol] = atr
	}
	sort.Strings(r.symbols)

	r.observePrices(0)
	r.res.Curve[0] = EquityPoint{Date: dates[0], Equity: e.cfg.InitialCapital, Cash: e.cfg.InitialCapital}

	last := len(dates) - 1
	for i := 1; i <= last; i++ {
		r.observePrices(i)
		r.checkStops(i)
		r.checkEntries(i)
		if i == last {
			r.closeAll(i)
		}
		r.mark(i)
	}
	r.res.FinalCash = r.account.Cash()
	e.logger.Debug("backtest complete",
		zap.Int("days", len(dates)),
		zap.Int("symbols", len(r.symbols)),
		zap.Int("trades", len(r.res.Trades)),
		zap.Float64("final_equity", r.res.Curve[last].Equity))
	return r.res, nil
}

// observePrices records the latest valid close for each symbol.
func (r *run) observePrices(i int) {
	for _, symbol := range r.symbols {
		bar := r.hist[symbol].Bars[i]
		if !bar.Missing() {
			r.lastPrice[symbol] = bar.Close
		}
	}
}

// checkStops exits positions whose close crossed entry ∓ StopMult×ATR(today).
func (r *run) checkStops(i int) {
	for _, symbol := range r.book.Symbols() {
		bar := r.hist[symbol].Bars[i]
		atr := r.atr[symbol][i]
		if bar.Missing() || math.IsNaN(atr) {
			continue
		}
		pos, _ := r.book.GetPosition(symbol)
		dir := pos.Direction()
		stop := risk.CalculateStopLoss(pos.EntryPrice, atr, r.cfg.StopMult, dir)
		if risk.IsStopHit(bar.Close, stop, dir) {
			r.exit(symbol, r.dates[i], bar.Close, ExitReasonStopLoss)
		}
	}
}

// checkEntries opens positions from the previous day's signal.
func (r *run) checkEntries(i int) {
	prevDate := r.dates[i-1]
	equity := r.res.Curve[i-1].Equity
	riskPct := r.cfg.Throttle.Adjust(r.cfg.RiskPct, prevDate)

	for _, symbol := range r.symbols {
		if r.book.HasPosition(symbol) {
			continue
		}
		sig, ok := r.sig[symbol]
		if !ok {
			continue
		}
		direction := sig.Get(prevDate)
		if direction == 0 {
			continue
		}
		prev := r.hist[symbol].Bars[i-1]
		atr := r.atr[symbol][i-1]
		if prev.Missing() || math.IsNaN(atr) {
			continue
		}

		size := risk.PositionSize(equity, atr, riskPct)
		if r.cfg.KellyFraction > 0 {
			size = risk.LeverageCappedSize(equity, atr, prev.Close, riskPct, r.cfg.KellyFraction)
		}
		qty := direction * size
		if qty == 0 {
			continue
		}
		if !r.account.CanAfford(qty, prev.Close) {
			r.logger.Debug("entry skipped, insufficient cash",
				zap.String("symbol", symbol),
				zap.Time("date", prevDate),
				zap.Int("qty", qty),
				zap.Float64("cash", r.account.Cash()))
			continue
		}

		r.account.Open(qty, prev.Close)
		r.book.OpenPosition(symbol, qty, prev.Close, prevDate)
		r.res.Fills = append(r.res.Fills, Fill{Symbol: symbol, Date: prevDate, Qty: qty, Price: prev.Close, Opening: true})
		r.logger.Debug("entry",
			zap.String("symbol", symbol),
			zap.Time("date", prevDate),
			zap.Int("qty", qty),
			zap.Float64("price", prev.Close),
			zap.Float64("atr", atr),
			zap.Float64("risk_pct", riskPct))
	}
}

// closeAll force-closes every open position at its latest valid price.
func (r *run) closeAll(i int) {
	for _, symbol := range r.book.Symbols() {
		price, ok := r.lastPrice[symbol]
		if !ok {
			pos, _ := r.book.GetPosition(symbol)
			price = pos.EntryPrice
		}
		r.logger.Info("closing open position at end of run",
			zap.String("symbol", symbol),
			zap.Time("date", r.dates[i]),
			zap.Float64("price", price))
		r.exit(symbol, r.dates[i], price, ExitReasonEndOfRun)
	}
}

func (r *run) exit(symbol string, date time.Time, price float64, reason ExitReason) {
	pos := r.book.ClosePosition(symbol)
	if pos == nil {
		return
	}
	r.account.Close(pos.Qty, price)
	r.res.Fills = append(r.res.Fills, Fill{Symbol: symbol, Date: date, Qty: -pos.Qty, Price: price, Reason: reason})

	shares := pos.Qty
	if shares < 0 {
		shares = -shares
	}
	trade := Trade{
		Symbol:     symbol,
		Direction:  pos.Direction(),
		Shares:     shares,
		EntryDate:  pos.EntryDate,
		EntryPrice: pos.EntryPrice,
		ExitDate:   date,
		ExitPrice:  price,
		PnL:        float64(pos.Qty) * (price - pos.EntryPrice),
		Reason:     reason,
	}
	trade.NetPnL = trade.PnL
	r.res.Trades = append(r.res.Trades, trade)
	r.logger.Debug("exit",
		zap.String("symbol", symbol),
		zap.Time("date", date),
		zap.String("reason", string(reason)),
		zap.Float64("pnl", trade.PnL))
}

// mark records cash plus open positions valued at their latest valid price.
func (r *run) mark(i int) {
	equity := r.account.Cash()
	exposure := 0.0
	for _, symbol := range r.book.Symbols() {
		pos, _ := r.book.GetPosition(symbol)
		price, ok := r.lastPrice[symbol]
		if !ok {
			price = pos.EntryPrice
		}
		value := float64(pos.Qty) * price
		equity += value
		exposure += math.Abs(value)
	}
	r.res.Curve[i] = EquityPoint{Date: r.dates[i], Equity: equity, Cash: r.account.Cash(), Exposure: exposure}
}
