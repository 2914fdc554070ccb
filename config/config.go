package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"backtestCore/internal/adapters/logger" // Import the logger package for LogLevel
	"backtestCore/internal/app"
	"backtestCore/internal/broker"
	"backtestCore/internal/ports"
	"backtestCore/internal/risk"
	"backtestCore/internal/strategy/analytics"
	"backtestCore/internal/strategy/backtesting"
	"backtestCore/internal/strategy/optimization"
	"backtestCore/internal/strategy/strategies"
)

// Config holds the process-level settings read from the environment.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // "text" or "json"

	// DataDir is where fetched bars are cached as CSV.
	DataDir string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	cfg.DBPath = getEnv("DB_PATH", "./data/backtests.db")
	cfg.DataDir = getEnv("DATA_DIR", "./data")

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat))
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, ports.NewConfigError("environment", "%s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// RequireCredentials reports whether the private exchange endpoints can be used.
func (c *Config) RequireCredentials() error {
	var errs []string
	if c.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if c.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}
	if len(errs) > 0 {
		return ports.NewConfigError("environment", "%s", strings.Join(errs, "; "))
	}
	return nil
}

// Job is one entry of a batch run.
type Job struct {
	Name       string             `yaml:"name" validate:"required"`
	Symbol     string             `yaml:"symbol" validate:"required"`
	Interval   string             `yaml:"interval" validate:"required"`
	Data       string             `yaml:"data"`
	Strategy   string             `yaml:"strategy" validate:"required"`
	Parameters map[string]float64 `yaml:"parameters"`
}

// RunFile describes a backtest, sweep, batch or live session in YAML.
type RunFile struct {
	Symbol     string                     `yaml:"symbol" validate:"required"`
	Interval   string                     `yaml:"interval" validate:"required"`
	Data       string                     `yaml:"data"` // CSV path; empty fetches from the exchange
	Start      string                     `yaml:"start"`
	End        string                     `yaml:"end"`
	Strategy   string                     `yaml:"strategy" validate:"required"`
	Parameters map[string]float64         `yaml:"parameters"`
	Backtest   backtesting.BacktestConfig `yaml:"backtest"`

	Sweep       []optimization.ParameterRange `yaml:"sweep" validate:"dive"`
	Concurrency int                           `yaml:"concurrency" validate:"gte=0"`
	Jobs        []Job                         `yaml:"jobs" validate:"dive"`

	Live app.LiveConfig `yaml:"live"`
}

// DefaultRunFile returns the settings a run file overrides.
func DefaultRunFile() RunFile {
	return RunFile{
		Symbol:   "ETHUSDT",
		Interval: "1h",
		Strategy: strategies.SelectorName,
		Backtest: backtesting.BacktestConfig{
			Risk:   risk.DefaultConfig(),
			Broker: broker.Config{InitialCash: 1_000_000, FeeBps: 10, MaxCarryBars: 1},
		},
		Live: app.DefaultLiveConfig(),
	}
}

// ReadRunFile parses a YAML run file over the defaults without completing it.
// An empty path returns the defaults.
func ReadRunFile(path string) (RunFile, error) {
	rf := DefaultRunFile()
	if path == "" {
		return rf, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return rf, fmt.Errorf("read run file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return rf, ports.NewConfigError("run file", "parse %s: %w", path, err)
	}
	return rf, nil
}

// LoadRunFile reads and completes a run file. The bars-per-year figure
// follows the interval unless set.
func LoadRunFile(path string) (*RunFile, error) {
	rf, err := ReadRunFile(path)
	if err != nil {
		return nil, err
	}
	if err := rf.Complete(); err != nil {
		return nil, err
	}
	return &rf, nil
}

// Complete fills derived settings and validates the run file.
func (rf *RunFile) Complete() error {
	if rf.Backtest.Metrics.BarsPerYear == 0 {
		bpy, err := analytics.BarsPerYear(rf.Interval)
		if err != nil {
			return err
		}
		rf.Backtest.Metrics.BarsPerYear = bpy
	}
	if rf.Live.Symbol == "" {
		rf.Live.Symbol = rf.Symbol
	}
	if rf.Live.Interval == "" {
		rf.Live.Interval = rf.Interval
	}
	return ports.ValidateConfig("run file", rf)
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
