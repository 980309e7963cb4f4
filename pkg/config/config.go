package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration values
type Config struct {
	// Account and sizing
	InitialCapital float64
	RiskPct        float64 // fraction of equity risked per trade
	ATRWindow      int
	StopMult       float64
	KellyFraction  float64 // 0 disables the leverage cap

	// Cost model (applied to trade records after the run)
	FeesPct      float64
	CommPerShare float64

	// Daily risk-free rate subtracted before Sharpe
	RiskFreeRate float64

	// Universe and inputs
	BacktestTickers []string
	Blacklist       []string
	DataDir         string
	CacheDir        string
	VIXPath         string
	BenchmarkTicker string
	MinPrice        float64 // universe filter on the last close
	MinAvgVolume    int64   // universe filter on trailing average volume

	// Optimizer
	ParamsPath string
	ResultsDir string
	ISDays     int
	OOSDays    int
	TopN       int
	Workers    int

	// Monte Carlo
	MCPaths int
	MCLevel float64
	MCSeed  uint64

	// Logging
	LogLevel string
	LogJSON  bool

	// Optional result store; empty disables persistence
	DatabaseURL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	if cfg.InitialCapital, err = getFloat("INITIAL_CAPITAL", 1000000); err != nil {
		return nil, err
	}
	if cfg.RiskPct, err = getFloat("RISK_PCT", 0.003); err != nil {
		return nil, err
	}
	if cfg.ATRWindow, err = getInt("ATR_WINDOW", 14); err != nil {
		return nil, err
	}
	if cfg.StopMult, err = getFloat("STOP_MULT", 2.0); err != nil {
		return nil, err
	}
	if cfg.KellyFraction, err = getFloat("KELLY_FRACTION", 0); err != nil {
		return nil, err
	}
	if cfg.FeesPct, err = getFloat("FEES_PCT", 0.0005); err != nil {
		return nil, err
	}
	if cfg.CommPerShare, err = getFloat("COMM_PER_SHARE", 0.005); err != nil {
		return nil, err
	}
	if cfg.RiskFreeRate, err = getFloat("RISK_FREE_RATE", 0); err != nil {
		return nil, err
	}

	if s := getEnv("BACKTEST_TICKERS", ""); s != "" {
		cfg.BacktestTickers = parseCommaList(s)
	}
	if s := getEnv("BLACKLIST", ""); s != "" {
		cfg.Blacklist = parseCommaList(s)
	}
	cfg.DataDir = getEnv("DATA_DIR", "data/prices")
	cfg.CacheDir = getEnv("CACHE_DIR", "data/cache")
	cfg.VIXPath = getEnv("VIX_PATH", "")
	cfg.BenchmarkTicker = getEnv("BENCHMARK_TICKER", "SPY")
	if cfg.MinPrice, err = getFloat("MIN_PRICE", 5.0); err != nil {
		return nil, err
	}
	minVol, err := getInt("MIN_AVG_VOLUME", 100000)
	if err != nil {
		return nil, err
	}
	cfg.MinAvgVolume = int64(minVol)

	cfg.ParamsPath = getEnv("PARAMS_PATH", "config/best_params.yaml")
	cfg.ResultsDir = getEnv("RESULTS_DIR", "results")
	if cfg.ISDays, err = getInt("IS_DAYS", 504); err != nil {
		return nil, err
	}
	if cfg.OOSDays, err = getInt("OOS_DAYS", 63); err != nil {
		return nil, err
	}
	if cfg.TopN, err = getInt("TOP_N", 5); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getInt("WORKERS", runtime.NumCPU()); err != nil {
		return nil, err
	}

	if cfg.MCPaths, err = getInt("MC_PATHS", 1000); err != nil {
		return nil, err
	}
	if cfg.MCLevel, err = getFloat("MC_LEVEL", 0.05); err != nil {
		return nil, err
	}
	seedStr := getEnv("MC_SEED", "42")
	if cfg.MCSeed, err = strconv.ParseUint(seedStr, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid MC_SEED: %w", err)
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	logJSON := getEnv("LOG_JSON", "false")
	cfg.LogJSON = logJSON == "true" || logJSON == "1"

	cfg.DatabaseURL = getEnv("DATABASE_URL", "")

	return cfg, nil
}

// Validate checks that the configuration describes a runnable backtest
func (c *Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("INITIAL_CAPITAL must be > 0")
	}
	if c.RiskPct <= 0 || c.RiskPct > 1 {
		return fmt.Errorf("RISK_PCT must be in (0, 1]")
	}
	if c.ATRWindow < 1 {
		return fmt.Errorf("ATR_WINDOW must be >= 1")
	}
	if c.StopMult <= 0 {
		return fmt.Errorf("STOP_MULT must be > 0")
	}
	if c.KellyFraction < 0 {
		return fmt.Errorf("KELLY_FRACTION must be >= 0")
	}
	if c.FeesPct < 0 || c.CommPerShare < 0 {
		return fmt.Errorf("FEES_PCT and COMM_PER_SHARE must be >= 0")
	}
	if c.ISDays <= 0 || c.OOSDays <= 0 {
		return fmt.Errorf("IS_DAYS and OOS_DAYS must be > 0")
	}
	if c.TopN <= 0 {
		return fmt.Errorf("TOP_N must be > 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be > 0")
	}
	if c.MCPaths <= 0 {
		return fmt.Errorf("MC_PATHS must be > 0")
	}
	if c.MCLevel <= 0 || c.MCLevel >= 1 {
		return fmt.Errorf("MC_LEVEL must be in (0, 1)")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getFloat(key string, defaultValue float64) (float64, error) {
	s := getEnv(key, "")
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getInt(key string, defaultValue int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// parseCommaList parses a comma-separated list and trims whitespace
func parseCommaList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, strings.ToUpper(trimmed))
		}
	}
	return result
}
