package scanner

import (
	"sort"
	"strings"
)

// SectorMap maps tickers to their sectors
var SectorMap = map[string]string{
	// Technology
	"AAPL": "Technology", "MSFT": "Technology", "GOOGL": "Technology", "GOOG": "Technology",
	"AMZN": "Technology", "NVDA": "Technology", "META": "Technology", "AMD": "Technology",
	"INTC": "Technology", "NFLX": "Technology", "TSLA": "Technology", "AVGO": "Technology",

	// Finance
	"JPM": "Finance", "BAC": "Finance", "WFC": "Finance", "GS": "Finance", "MS": "Finance",
	"BRK-B": "Finance", "V": "Finance", "MA": "Finance",

	// Healthcare
	"JNJ": "Healthcare", "PFE": "Healthcare", "UNH": "Healthcare", "ABBV": "Healthcare",
	"LLY": "Healthcare", "MRK": "Healthcare",

	// Consumer
	"WMT": "Consumer", "HD": "Consumer", "MCD": "Consumer", "NKE": "Consumer", "DIS": "Consumer",
	"PG": "Consumer", "KO": "Consumer", "PEP": "Consumer", "COST": "Consumer",

	// Energy
	"XOM": "Energy", "CVX": "Energy", "COP": "Energy",

	// ETFs
	"SPY": "ETF", "QQQ": "ETF", "IWM": "ETF", "DIA": "ETF",
}

// SectorETFs are the SPDR sector funds averaged into the equal-weight benchmark.
var SectorETFs = []string{"XLB", "XLC", "XLE", "XLF", "XLI", "XLK", "XLV", "XLU", "XLY", "XLRE"}

// GetSector returns the sector for a ticker
func GetSector(ticker string) string {
	if sector, exists := SectorMap[strings.ToUpper(ticker)]; exists {
		return sector
	}
	return "Other"
}

// GroupBySector buckets tickers by sector; each bucket is sorted.
func GroupBySector(tickers []string) map[string][]string {
	out := make(map[string][]string)
	for _, t := range tickers {
		sector := GetSector(t)
		out[sector] = append(out[sector], t)
	}
	for _, list := range out {
		sort.Strings(list)
	}
	return out
}

// Concentration returns the largest share of tickers held by one sector.
func Concentration(tickers []string) (string, float64) {
	if len(tickers) == 0 {
		return "", 0
	}
	groups := GroupBySector(tickers)
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	top, n := "", 0
	for _, name := range names {
		if len(groups[name]) > n {
			top, n = name, len(groups[name])
		}
	}
	return top, float64(n) / float64(len(tickers))
}
