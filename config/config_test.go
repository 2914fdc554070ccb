package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtestCore/internal/adapters/logger"
	"backtestCore/internal/ports"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"BINANCE_API_KEY", "BINANCE_API_SECRET", "IS_TESTNET", "DB_PATH", "DATA_DIR", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsTestnet)
	assert.Equal(t, "./data/backtests.db", cfg.DBPath)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, errors.Is(cfg.RequireCredentials(), ports.ErrConfigurationError))
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_API_SECRET", "secret")
	t.Setenv("IS_TESTNET", "false")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.IsTestnet)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.NoError(t, cfg.RequireCredentials())
}

func TestLoadConfigRejectsLogFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")
	_, err := LoadConfig()
	assert.True(t, errors.Is(err, ports.ErrConfigurationError))
}

func writeRunFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRunFile(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		check   func(t *testing.T, rf *RunFile)
		wantErr bool
	}{
		{
			name: "defaults",
			body: "",
			check: func(t *testing.T, rf *RunFile) {
				assert.Equal(t, "ETHUSDT", rf.Symbol)
				assert.Equal(t, 8760.0, rf.Backtest.Metrics.BarsPerYear)
				assert.Equal(t, "ETHUSDT", rf.Live.Symbol)
				assert.True(t, rf.Live.Risk.RequireStopLoss)
			},
		},
		{
			name: "overrides",
			body: `
symbol: BTCUSDT
interval: 15m
strategy: momentum
backtest:
  broker:
    initial_cash: 500000
    fee_bps: 4
  risk:
    max_daily_loss: 20000
    circuit_breaker_losses: 3
sweep:
  - {name: rsi_entry, min: 20, max: 40, step: 10}
jobs:
  - {name: btc, symbol: BTCUSDT, interval: 4h, strategy: meanrev}
`,
			check: func(t *testing.T, rf *RunFile) {
				assert.Equal(t, "BTCUSDT", rf.Symbol)
				assert.Equal(t, 35040.0, rf.Backtest.Metrics.BarsPerYear)
				assert.EqualValues(t, 500000, rf.Backtest.Broker.InitialCash)
				assert.EqualValues(t, 4, rf.Backtest.Broker.FeeBps)
				assert.EqualValues(t, 20000, rf.Backtest.Risk.MaxDailyLoss)
				assert.Equal(t, 3, rf.Backtest.Risk.CircuitBreakerLosses)
				// Unset risk fields keep their defaults.
				assert.Equal(t, 1, rf.Backtest.Risk.MaxConcurrentPositions)
				require.Len(t, rf.Sweep, 1)
				assert.Equal(t, "rsi_entry", rf.Sweep[0].Name)
				require.Len(t, rf.Jobs, 1)
				assert.Equal(t, "meanrev", rf.Jobs[0].Strategy)
			},
		},
		{name: "unknown interval", body: "interval: 7m\n", wantErr: true},
		{name: "invalid sweep range", body: "sweep:\n  - {name: rsi_entry, min: 40, max: 20, step: 5}\n", wantErr: true},
		{name: "job without strategy", body: "jobs:\n  - {name: x, symbol: BTCUSDT, interval: 1h}\n", wantErr: true},
		{name: "malformed yaml", body: "symbol: [\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rf, err := LoadRunFile(writeRunFile(t, tt.body))
			if tt.wantErr {
				assert.True(t, errors.Is(err, ports.ErrConfigurationError), "got %v", err)
				return
			}
			require.NoError(t, err)
			tt.check(t, rf)
		})
	}
}

func TestLoadRunFileMissing(t *testing.T) {
	_, err := LoadRunFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
