package optimization

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
	"backtestCore/internal/strategy/backtesting"
	"backtestCore/internal/strategy/strategies"
)

// ParameterRange defines a range for a parameter to optimize
type ParameterRange struct {
	Name  string  `yaml:"name" validate:"required"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max" validate:"gtefield=Min"`
	Step  float64 `yaml:"step" validate:"gt=0"`
	IsInt bool    `yaml:"is_int"`
}

// OptimizationResult holds the outcome of one parameter combination
type OptimizationResult struct {
	Parameters map[string]float64
	Result     *domain.BacktestResult
	Score      float64
	Err        error // Set when the combination could not be built or run
}

// OptimizerConfig holds configuration for the optimizer
type OptimizerConfig struct {
	Strategy        string             `validate:"required"`
	BaseParameters  map[string]float64 // Fixed parameters applied under every combination
	ParameterRanges []ParameterRange   `validate:"required,dive"`
	Backtest        backtesting.BacktestConfig
	Concurrency     int `validate:"gte=0"` // 0 uses GOMAXPROCS
	ScoreFunction   func(domain.Metrics) float64
}

// Optimizer runs a strategy over many parameter sets in parallel.
type Optimizer struct {
	config OptimizerConfig
	logger ports.Logger
}

// NewOptimizer creates a new optimizer instance
func NewOptimizer(config OptimizerConfig, logger ports.Logger) (*Optimizer, error) {
	if logger == nil {
		return nil, ports.NewConfigError("optimizer", "logger is required")
	}
	if err := ports.ValidateConfig("optimizer", config); err != nil {
		return nil, err
	}
	if _, err := strategies.New(config.Strategy, config.BaseParameters, logger); err != nil {
		return nil, err
	}
	if config.ScoreFunction == nil {
		config.ScoreFunction = DefaultScoreFunction
	}
	return &Optimizer{config: config, logger: logger}, nil
}

// Optimize runs every combination of the parameter ranges.
func (o *Optimizer) Optimize(ctx context.Context, series domain.Series) ([]OptimizationResult, error) {
	return o.runAll(ctx, series, o.generateParameterCombinations())
}

// SweepOneAtATime varies each range on its own while the other parameters
// keep their base values.
func (o *Optimizer) SweepOneAtATime(ctx context.Context, series domain.Series) ([]OptimizationResult, error) {
	var combinations []map[string]float64
	for _, param := range o.config.ParameterRanges {
		for _, value := range param.values() {
			combinations = append(combinations, o.withBase(map[string]float64{param.Name: value}))
		}
	}
	return o.runAll(ctx, series, combinations)
}

func (r ParameterRange) values() []float64 {
	var out []float64
	for k := 0; ; k++ {
		value := r.Min + float64(k)*r.Step
		if value > r.Max+r.Step/2 {
			break
		}
		if r.IsInt {
			value = math.Round(value)
		}
		out = append(out, value)
	}
	return out
}

func (o *Optimizer) withBase(params map[string]float64) map[string]float64 {
	combination := make(map[string]float64, len(o.config.BaseParameters)+len(params))
	for k, v := range o.config.BaseParameters {
		combination[k] = v
	}
	for k, v := range params {
		combination[k] = v
	}
	return combination
}

// generateParameterCombinations generates all possible parameter combinations
func (o *Optimizer) generateParameterCombinations() []map[string]float64 {
	var combinations []map[string]float64
	current := make(map[string]float64)

	var generate func(int)
	generate = func(paramIndex int) {
		if paramIndex == len(o.config.ParameterRanges) {
			combinations = append(combinations, o.withBase(current))
			return
		}
		param := o.config.ParameterRanges[paramIndex]
		for _, value := range param.values() {
			current[param.Name] = value
			generate(paramIndex + 1)
		}
	}

	generate(0)
	return combinations
}

func (o *Optimizer) runAll(ctx context.Context, series domain.Series, combinations []map[string]float64) ([]OptimizationResult, error) {
	o.logger.Info(ctx, "Starting parameter optimization", map[string]interface{}{
		"strategy":     o.config.Strategy,
		"combinations": len(combinations),
		"symbol":       series.Symbol,
	})

	jobs := make([]BatchJob, len(combinations))
	for i, params := range combinations {
		jobs[i] = BatchJob{
			Name:       strategies.FormatParams(params),
			Strategy:   o.config.Strategy,
			Parameters: params,
			Series:     series,
			Config:     o.config.Backtest,
		}
	}
	batch := RunBatch(ctx, jobs, o.config.Concurrency, o.logger)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("optimization interrupted: %w", ports.ErrContextCanceled)
	}

	results := make([]OptimizationResult, len(batch))
	failed := 0
	for i, b := range batch {
		results[i] = OptimizationResult{Parameters: b.Job.Parameters, Result: b.Result, Err: b.Err}
		if b.Err != nil {
			failed++
			continue
		}
		results[i].Score = o.config.ScoreFunction(b.Result.Metrics)
	}
	sortResultsByScore(results)

	if failed > 0 {
		o.logger.Warn(ctx, "Some parameter combinations failed", map[string]interface{}{
			"failed": failed,
			"total":  len(results),
		})
	}
	return results, nil
}

// sortResultsByScore orders results by score, best first. Failed runs go last
// and ties are broken by the canonical parameter string.
func sortResultsByScore(results []OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return strategies.FormatParams(a.Parameters) < strategies.FormatParams(b.Parameters)
	})
}

// DefaultScoreFunction provides a default scoring function for optimization
func DefaultScoreFunction(metrics domain.Metrics) float64 {
	// An infinite profit factor would swamp every other term.
	profitFactor := math.Min(metrics.ProfitFactor, 10)
	riskReward := 0.0
	if metrics.AverageLoss != 0 {
		riskReward = float64(metrics.AverageWin) / -float64(metrics.AverageLoss)
	}

	score := 0.0
	score += metrics.WinRate * 0.3
	score += profitFactor * 0.2
	score += (1 - metrics.MaxDrawdownFraction) * 0.2
	score += metrics.TotalReturn * 0.2
	score += riskReward * 0.1
	return score
}

// BatchJob is one independent backtest run.
type BatchJob struct {
	Name       string
	Strategy   string
	Parameters map[string]float64
	Series     domain.Series
	Config     backtesting.BacktestConfig
}

// BatchResult pairs a job with its outcome.
type BatchResult struct {
	Job    BatchJob
	Result *domain.BacktestResult
	Err    error
}

// RunBatch runs independent jobs in parallel, each with its own strategy
// instance and engine, and returns the outcomes in job order.
func RunBatch(ctx context.Context, jobs []BatchJob, concurrency int, logger ports.Logger) []BatchResult {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	results := make([]BatchResult, len(jobs))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job BatchJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = BatchResult{Job: job}
			if err := ctx.Err(); err != nil {
				results[i].Err = fmt.Errorf("job %s skipped: %w", job.Name, ports.ErrContextCanceled)
				return
			}
			strategy, err := strategies.New(job.Strategy, job.Parameters, logger)
			if err != nil {
				results[i].Err = err
				return
			}
			config := job.Config
			config.Parameters = strategies.FormatParams(job.Parameters)
			results[i].Result, results[i].Err = backtesting.Backtest(ctx, strategy, job.Series, config, logger)
			if results[i].Err != nil {
				logger.Warn(ctx, "Backtest job failed", map[string]interface{}{
					"job":   job.Name,
					"error": results[i].Err.Error(),
				})
			}
		}(i, job)
	}

	wg.Wait()
	return results
}
