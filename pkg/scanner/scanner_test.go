package scanner

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/atr-swing-bot/pkg/config"
	"github.com/atr-swing-bot/pkg/feed"
)

func history(symbol string, closes []float64, volume int64) *feed.History {
	h := &feed.History{Symbol: symbol}
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		h.Bars = append(h.Bars, feed.Bar{Date: d.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: volume})
	}
	return h
}

func testConfig() *config.Config {
	return &config.Config{
		BacktestTickers: []string{"aapl", "MSFT", "AAPL", "TSLA"},
		Blacklist:       []string{"TSLA"},
		MinPrice:        5,
		MinAvgVolume:    100000,
	}
}

func TestGetTickers(t *testing.T) {
	s := NewScanner(testConfig(), nil)
	if got := s.GetTickers(); !reflect.DeepEqual(got, []string{"AAPL", "MSFT"}) {
		t.Errorf("GetTickers = %v", got)
	}

	def := NewScanner(&config.Config{}, nil)
	if got := def.GetTickers(); !reflect.DeepEqual(got, DefaultUniverse) {
		t.Errorf("default tickers = %v", got)
	}
}

func TestFilterTicker(t *testing.T) {
	s := NewScanner(testConfig(), nil)
	tests := []struct {
		name   string
		ticker string
		price  float64
		volume int64
		want   bool
	}{
		{"passes", "AAPL", 150, 1000000, true},
		{"blacklisted", "tsla", 150, 1000000, false},
		{"cheap", "AAPL", 4.99, 1000000, false},
		{"thin", "AAPL", 150, 50000, false},
		{"unknown volume", "AAPL", 150, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.FilterTicker(tt.ticker, tt.price, tt.volume); got != tt.want {
				t.Errorf("FilterTicker = %v, want %v", got, tt.want)
			}
		})
	}

	s.SetMaxPrice(100)
	if s.FilterTicker("AAPL", 150, 1000000) {
		t.Error("price above the ceiling should fail")
	}
}

func TestSelect(t *testing.T) {
	s := NewScanner(testConfig(), nil)

	penny := history("PENNY", []float64{10, 8, 3}, 500000)
	liquid := history("AAPL", []float64{100, 101, 102}, 500000)
	thin := history("THIN", []float64{50, 50, 50}, 1000)
	gappy := history("GAP", []float64{20, 21, math.NaN()}, 500000)
	empty := &feed.History{Symbol: "NONE"}

	kept, rejected := s.Select(map[string]*feed.History{
		"PENNY": penny, "AAPL": liquid, "THIN": thin, "GAP": gappy, "NONE": empty,
	})
	if len(kept) != 2 || kept["AAPL"] == nil || kept["GAP"] == nil {
		t.Errorf("kept = %v", kept)
	}
	if !reflect.DeepEqual(rejected, []string{"NONE", "PENNY", "THIN"}) {
		t.Errorf("rejected = %v", rejected)
	}
}

func TestSectors(t *testing.T) {
	if GetSector("jpm") != "Finance" || GetSector("ZZZZ") != "Other" {
		t.Error("unexpected sector lookup")
	}
	groups := GroupBySector([]string{"MSFT", "JPM", "AAPL", "ZZZZ"})
	if !reflect.DeepEqual(groups["Technology"], []string{"AAPL", "MSFT"}) || len(groups["Other"]) != 1 {
		t.Errorf("groups = %v", groups)
	}

	sector, share := Concentration([]string{"MSFT", "JPM", "AAPL", "NVDA"})
	if sector != "Technology" || share != 0.75 {
		t.Errorf("Concentration = %s %v", sector, share)
	}
	if _, share := Concentration(nil); share != 0 {
		t.Error("empty concentration should be 0")
	}
}
