package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"backtestCore/internal/adapters/csvfeed"
	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
	"backtestCore/internal/strategy/backtesting"
	"backtestCore/internal/strategy/optimization"
	"backtestCore/internal/strategy/strategies"
)

// BacktestService orchestrates data loading, runs and persistence for the CLI.
// The exchange and the repository are optional.
type BacktestService struct {
	logger   ports.Logger
	exchange ports.ExchangeClient
	repo     ports.ResultRepository
}

// NewBacktestService creates a new application service instance.
func NewBacktestService(logger ports.Logger, exchange ports.ExchangeClient, repo ports.ResultRepository) (*BacktestService, error) {
	if logger == nil {
		return nil, ports.NewConfigError("backtest service", "logger is required")
	}
	return &BacktestService{logger: logger, exchange: exchange, repo: repo}, nil
}

// DataRequest names the bars to load: a CSV file when Path is set, otherwise
// the exchange between Start and End.
type DataRequest struct {
	Symbol   string
	Interval string
	Path     string
	Start    time.Time
	End      time.Time
}

// LoadSeries produces a validated series for req.
func (s *BacktestService) LoadSeries(ctx context.Context, req DataRequest) (domain.Series, error) {
	if req.Path != "" {
		series, err := csvfeed.LoadSeries(req.Path, req.Symbol, req.Interval)
		if err != nil {
			return domain.Series{}, err
		}
		s.logger.Info(ctx, "Loaded bars from file", map[string]interface{}{"path": req.Path, "bars": series.Len()})
		return series, nil
	}
	return s.fetch(ctx, req)
}

func (s *BacktestService) fetch(ctx context.Context, req DataRequest) (domain.Series, error) {
	if s.exchange == nil {
		return domain.Series{}, ports.NewConfigError("backtest service", "no data file given and no exchange client configured")
	}
	if !req.End.After(req.Start) {
		return domain.Series{}, ports.NewConfigError("backtest service", "fetch window end %s is not after start %s", req.End, req.Start)
	}

	bars, err := s.exchange.GetBars(ctx, req.Symbol, req.Interval, req.Start, req.End)
	if err != nil {
		return domain.Series{}, fmt.Errorf("fetch %s %s bars: %w", req.Symbol, req.Interval, err)
	}
	series, err := csvfeed.BuildSeries(req.Symbol, req.Interval, bars)
	if err != nil {
		return domain.Series{}, err
	}
	if err := series.Validate(); err != nil {
		return domain.Series{}, &ports.DataError{Op: fmt.Sprintf("validate fetched %s %s series", req.Symbol, req.Interval), Err: err}
	}
	s.logger.Info(ctx, "Fetched bars from exchange", map[string]interface{}{
		"symbol":   req.Symbol,
		"interval": req.Interval,
		"bars":     series.Len(),
	})
	return series, nil
}

// Fetch downloads bars from the exchange and stores them as CSV at out.
func (s *BacktestService) Fetch(ctx context.Context, req DataRequest, out string) (domain.Series, error) {
	series, err := s.fetch(ctx, req)
	if err != nil {
		return domain.Series{}, err
	}
	if err := csvfeed.SaveSeries(out, series); err != nil {
		return domain.Series{}, err
	}
	s.logger.Info(ctx, "Saved bars", map[string]interface{}{"path": out, "bars": series.Len()})
	return series, nil
}

// RunRequest is one strategy configuration to replay.
type RunRequest struct {
	Strategy   string
	Parameters map[string]float64
	Config     backtesting.BacktestConfig
}

// Run replays series through a fresh strategy instance and stores the result.
func (s *BacktestService) Run(ctx context.Context, req RunRequest, series domain.Series) (*domain.BacktestResult, error) {
	strategy, err := strategies.New(req.Strategy, req.Parameters, s.logger)
	if err != nil {
		return nil, err
	}
	config := req.Config
	config.Parameters = strategies.FormatParams(req.Parameters)

	result, err := backtesting.Backtest(ctx, strategy, series, config, s.logger)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, result, config.Parameters); err != nil {
		return nil, err
	}
	return result, nil
}

// Sweep runs a parameter sweep, the full grid or one parameter at a time, and
// stores every successful run.
func (s *BacktestService) Sweep(ctx context.Context, config optimization.OptimizerConfig, series domain.Series, oneAtATime bool) ([]optimization.OptimizationResult, error) {
	optimizer, err := optimization.NewOptimizer(config, s.logger)
	if err != nil {
		return nil, err
	}
	var results []optimization.OptimizationResult
	if oneAtATime {
		results, err = optimizer.SweepOneAtATime(ctx, series)
	} else {
		results, err = optimizer.Optimize(ctx, series)
	}
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if err := s.save(ctx, r.Result, strategies.FormatParams(r.Parameters)); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Batch runs independent jobs in parallel and stores every successful run.
func (s *BacktestService) Batch(ctx context.Context, jobs []optimization.BatchJob, concurrency int) ([]optimization.BatchResult, error) {
	results := optimization.RunBatch(ctx, jobs, concurrency, s.logger)
	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("batch interrupted: %w", ports.ErrContextCanceled)
	}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if err := s.save(ctx, r.Result, strategies.FormatParams(r.Job.Parameters)); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// save stores result when a repository is configured. Run IDs are
// deterministic, so a rerun of stored inputs is already on file.
func (s *BacktestService) save(ctx context.Context, result *domain.BacktestResult, parameters string) error {
	if s.repo == nil {
		return nil
	}
	err := s.repo.SaveResult(ctx, result, parameters)
	if errors.Is(err, ports.ErrDuplicateEntry) {
		s.logger.Info(ctx, "Run already stored", map[string]interface{}{"runId": result.RunID})
		return nil
	}
	if err != nil {
		return fmt.Errorf("save run %s: %w", result.RunID, err)
	}
	return nil
}

// Runs lists stored run headers, most recent first.
func (s *BacktestService) Runs(ctx context.Context, limit int) ([]*ports.RunSummary, error) {
	if s.repo == nil {
		return nil, ports.NewConfigError("backtest service", "no result repository configured")
	}
	return s.repo.ListRuns(ctx, limit)
}

// ExportRun writes the stored ledger and equity curve of runID as CSV.
func (s *BacktestService) ExportRun(ctx context.Context, runID string, trades, equity io.Writer) error {
	if s.repo == nil {
		return ports.NewConfigError("backtest service", "no result repository configured")
	}
	run, err := s.repo.FindRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s: %w", runID, ports.ErrNotFound)
	}

	ledger, err := s.repo.FindTrades(ctx, runID)
	if err != nil {
		return err
	}
	if err := csvfeed.WriteTrades(trades, ledger); err != nil {
		return err
	}
	curve, err := s.repo.FindEquityCurve(ctx, runID)
	if err != nil {
		return err
	}
	return csvfeed.WriteEquityCurve(equity, curve)
}
