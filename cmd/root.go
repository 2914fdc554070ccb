package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"backtestCore/config"
	"backtestCore/internal/adapters/binanceclient"
	"backtestCore/internal/adapters/logger"
	"backtestCore/internal/adapters/sqlite"
	"backtestCore/internal/app"
	"backtestCore/internal/ports"
)

var rootCmd = &cobra.Command{
	Use:   "backtestcore",
	Short: "Replay trading strategies over historical bars under a risk engine",
	Long: `backtestcore replays historical OHLCV bars through a strategy, a risk engine
and a simulated broker, and reports the resulting performance.

It provides tools for:
  - Single backtests from CSV files or exchange history
  - Parameter sweeps and batch runs executed in parallel
  - Stored run comparison and ledger export
  - Live execution through the same risk engine

Settings come from the environment (.env) and an optional YAML run file.`,
	SilenceUsage: true,
}

// Flags shared by every command.
var (
	runFilePath string
	noStore     bool
	symbolFlag  string
	intervalFlg string
	dataFlag    string
	strategyFlg string
	paramFlags  map[string]string
)

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&runFilePath, "file", "f", "", "YAML run file (defaults apply when empty)")
	flags.BoolVar(&noStore, "no-store", false, "do not persist results to SQLite")
	flags.StringVar(&symbolFlag, "symbol", "", "override the run file symbol")
	flags.StringVarP(&intervalFlg, "interval", "i", "", "override the run file interval (1m, 5m, 15m, 1h, 4h, 1d)")
	flags.StringVarP(&dataFlag, "data", "d", "", "CSV bar file; empty fetches from the exchange")
	flags.StringVarP(&strategyFlg, "strategy", "s", "", "override the run file strategy (momentum, meanrev, selector)")
	flags.StringToStringVarP(&paramFlags, "param", "p", nil, "strategy parameter override, e.g. -p rsi_entry=30")
}

// environment holds what a command needs, built from env and the run file.
type environment struct {
	cfg      *config.Config
	run      *config.RunFile
	logger   ports.Logger
	repo     *sqlite.Repository
	exchange *binanceclient.Client
	service  *app.BacktestService
}

type needs struct {
	exchange bool
	repo     bool
	// history reports whether the run file needs bars from the exchange.
	history func(*config.RunFile) bool
}

func seriesFromExchange(rf *config.RunFile) bool { return rf.Data == "" }

// setup loads configuration and builds the adapters the command needs. The
// returned cleanup closes them.
func setup(ctx context.Context, n needs) (*environment, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel.String())
	if err != nil {
		return nil, nil, err
	}
	env := &environment{cfg: cfg, logger: appLogger}
	cleanup := func() {
		if env.repo != nil {
			if err := env.repo.Close(); err != nil {
				appLogger.Error(ctx, err, "Error closing database repository")
			}
		}
		if z, ok := appLogger.(*logger.ZapLogger); ok {
			_ = z.Sync()
		}
	}

	if env.run, err = loadRunFile(); err != nil {
		cleanup()
		return nil, nil, err
	}

	if n.repo && !noStore {
		env.repo, err = sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("initialize database repository: %w", err)
		}
		appLogger.Debug(ctx, "Database repository initialized", map[string]interface{}{"path": cfg.DBPath})
	}
	if n.exchange || (n.history != nil && n.history(env.run)) {
		env.exchange, err = binanceclient.New(binanceclient.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     appLogger,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("initialize Binance client: %w", err)
		}
	}

	// Typed nils must not leak into the service's interface fields.
	var exchange ports.ExchangeClient
	if env.exchange != nil {
		exchange = env.exchange
	}
	var repo ports.ResultRepository
	if env.repo != nil {
		repo = env.repo
	}
	env.service, err = app.NewBacktestService(appLogger, exchange, repo)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return env, cleanup, nil
}

// loadRunFile reads the run file, applies command-line overrides and
// completes it.
func loadRunFile() (*config.RunFile, error) {
	rf, err := config.ReadRunFile(runFilePath)
	if err != nil {
		return nil, err
	}
	if symbolFlag != "" {
		rf.Symbol = symbolFlag
	}
	if intervalFlg != "" && intervalFlg != rf.Interval {
		rf.Interval = intervalFlg
		rf.Backtest.Metrics.BarsPerYear = 0
	}
	if dataFlag != "" {
		rf.Data = dataFlag
	}
	if strategyFlg != "" {
		rf.Strategy = strategyFlg
	}
	for k, v := range paramFlags {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, ports.NewConfigError("flags", "parameter %s: %w", k, err)
		}
		if rf.Parameters == nil {
			rf.Parameters = make(map[string]float64)
		}
		rf.Parameters[k] = f
	}
	if err := rf.Complete(); err != nil {
		return nil, err
	}
	return &rf, nil
}

const dateLayout = "2006-01-02"

// window resolves the run file's fetch window. End defaults to now and start
// to three months before end.
func window(rf *config.RunFile, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC()
	if rf.End != "" {
		t, err := parseDate(rf.End)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t
	}
	start := end.AddDate(0, -3, 0)
	if rf.Start != "" {
		t, err := parseDate(rf.Start)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, ports.NewConfigError("run file", "end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, ports.NewConfigError("run file", "date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

// dataRequest describes the bars of the run file: its CSV file when set,
// otherwise the exchange window.
func dataRequest(rf *config.RunFile, symbol, interval, path string) (app.DataRequest, error) {
	req := app.DataRequest{Symbol: symbol, Interval: interval, Path: path}
	if path != "" {
		return req, nil
	}
	start, end, err := window(rf, time.Now())
	if err != nil {
		return req, err
	}
	req.Start, req.End = start, end
	return req, nil
}

func createFile(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}
