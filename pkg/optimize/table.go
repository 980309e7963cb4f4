package optimize

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/atr-swing-bot/pkg/feed"
	"github.com/atr-swing-bot/pkg/metrics"
)

// columns accumulates named series for a result table.
type columns []series.Series

func (c *columns) str(name string, v []string) {
	*c = append(*c, series.New(v, series.String, name))
}

func (c *columns) num(name string, v []float64) {
	*c = append(*c, series.New(v, series.Float, name))
}

func (c *columns) ints(name string, v []int) {
	*c = append(*c, series.New(v, series.Int, name))
}

// params adds one column per parameter name across sets; absent keys are NaN.
func (c *columns) params(sets []ParamSet) {
	family := make([]string, len(sets))
	names := map[string]bool{}
	for i, s := range sets {
		family[i] = string(s.Family)
		for k := range s.Params {
			names[k] = true
		}
	}
	c.str("family", family)

	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vals := make([]float64, len(sets))
		for i, s := range sets {
			v, ok := s.Params[k]
			if !ok {
				v = math.NaN()
			}
			vals[i] = v
		}
		c.num(k, vals)
	}
}

func (c *columns) records(prefix string, recs []metrics.Record) {
	ret := make([]float64, len(recs))
	sharpe := make([]float64, len(recs))
	dd := make([]float64, len(recs))
	cagr := make([]float64, len(recs))
	win := make([]float64, len(recs))
	trades := make([]int, len(recs))
	for i, r := range recs {
		ret[i], sharpe[i], dd[i], cagr[i] = r.TotalReturn, r.Sharpe, r.MaxDrawdown, r.CAGR
		win[i], trades[i] = r.WinRate, r.Trades
	}
	c.num(prefix+"return", ret)
	c.num(prefix+"sharpe", sharpe)
	c.num(prefix+"max_dd", dd)
	c.num(prefix+"cagr", cagr)
	c.num(prefix+"win_rate", win)
	c.ints(prefix+"trades", trades)
}

func (c columns) frame() dataframe.DataFrame {
	return dataframe.New(c...)
}

// BatchFrame tabulates batch rows, one per (set, instrument).
func BatchFrame(rows []BatchRow) dataframe.DataFrame {
	var c columns
	symbols := make([]string, len(rows))
	sets := make([]ParamSet, len(rows))
	recs := make([]metrics.Record, len(rows))
	for i, r := range rows {
		symbols[i], sets[i], recs[i] = r.Symbol, r.Set, r.Record
	}
	c.str("symbol", symbols)
	c.params(sets)
	c.records("", recs)
	return c.frame()
}

// AggregateFrame tabulates ranked aggregate rows.
func AggregateFrame(rows []AggregateRow) dataframe.DataFrame {
	var c columns
	sets := make([]ParamSet, len(rows))
	n := make([]int, len(rows))
	sharpe := make([]float64, len(rows))
	ret := make([]float64, len(rows))
	dd := make([]float64, len(rows))
	cagr := make([]float64, len(rows))
	trades := make([]int, len(rows))
	for i, r := range rows {
		sets[i], n[i], trades[i] = r.Set, r.Instruments, r.TotalTrades
		sharpe[i], ret[i], dd[i], cagr[i] = r.MeanSharpe, r.MeanReturn, r.MeanMaxDD, r.MeanCAGR
	}
	c.params(sets)
	c.ints("instruments", n)
	c.num("mean_sharpe", sharpe)
	c.num("mean_return", ret)
	c.num("mean_max_dd", dd)
	c.num("mean_cagr", cagr)
	c.ints("trades", trades)
	return c.frame()
}

// FoldFrame tabulates walk-forward folds.
func FoldFrame(folds []Fold) dataframe.DataFrame {
	var c columns
	symbols := make([]string, len(folds))
	isStart := make([]string, len(folds))
	start := make([]string, len(folds))
	isSharpe := make([]float64, len(folds))
	sets := make([]ParamSet, len(folds))
	recs := make([]metrics.Record, len(folds))
	for i, f := range folds {
		symbols[i] = f.Symbol
		isStart[i] = f.ISStart.Format(feed.DateLayout)
		start[i] = f.FoldStart.Format(feed.DateLayout)
		isSharpe[i], sets[i], recs[i] = f.ISSharpe, f.Set, f.OOS
	}
	c.str("symbol", symbols)
	c.str("is_start", isStart)
	c.str("fold_start", start)
	c.params(sets)
	c.num("is_sharpe", isSharpe)
	c.records("oos_", recs)
	return c.frame()
}

// ISOOSFrame tabulates in-sample versus out-of-sample rows.
func ISOOSFrame(rows []ISOOSRow) dataframe.DataFrame {
	var c columns
	symbols := make([]string, len(rows))
	sets := make([]ParamSet, len(rows))
	is := make([]metrics.Record, len(rows))
	oos := make([]metrics.Record, len(rows))
	for i, r := range rows {
		symbols[i], sets[i], is[i], oos[i] = r.Symbol, r.Set, r.IS, r.OOS
	}
	c.str("symbol", symbols)
	c.params(sets)
	c.records("is_", is)
	c.records("oos_", oos)
	return c.frame()
}

// RiskFrame tabulates a risk grid sweep.
func RiskFrame(rows []RiskRow) dataframe.DataFrame {
	var c columns
	rp := make([]float64, len(rows))
	sm := make([]float64, len(rows))
	recs := make([]metrics.Record, len(rows))
	for i, r := range rows {
		rp[i], sm[i], recs[i] = r.RiskPct, r.StopMult, r.Record
	}
	c.num("risk_pct", rp)
	c.num("stop_mult", sm)
	c.records("", recs)
	return c.frame()
}

// WriteTableCSV writes df to path, creating parent directories.
func WriteTableCSV(path string, df dataframe.DataFrame) error {
	if df.Err != nil {
		return fmt.Errorf("failed to build table: %w", df.Err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()
	return df.WriteCSV(file)
}
