package cmd

import (
	"github.com/spf13/cobra"

	"backtestCore/config"
	"backtestCore/internal/app"
	"backtestCore/internal/ports"
	"backtestCore/internal/strategy/analytics"
	"backtestCore/internal/strategy/optimization"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run independent backtests across symbols and strategies in parallel",
	Long: `Batch runs every entry of the run file's "jobs" section with the shared
backtest settings. Jobs without a data file fetch their bars from the exchange
over the run file's start/end window.

Example run file section:
  jobs:
    - {name: eth-momentum, symbol: ETHUSDT, interval: 1h, strategy: momentum, data: data/eth_1h.csv}
    - {name: btc-selector, symbol: BTCUSDT, interval: 4h, strategy: selector}`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
}

func jobsFromExchange(rf *config.RunFile) bool {
	for _, job := range rf.Jobs {
		if job.Data == "" {
			return true
		}
	}
	return false
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, cleanup, err := setup(ctx, needs{repo: true, history: jobsFromExchange})
	if err != nil {
		return err
	}
	defer cleanup()
	rf := env.run

	if len(rf.Jobs) == 0 {
		return ports.NewConfigError("batch", "the run file has no jobs")
	}
	jobs := make([]optimization.BatchJob, 0, len(rf.Jobs))
	for _, job := range rf.Jobs {
		req, err := dataRequest(rf, job.Symbol, job.Interval, job.Data)
		if err != nil {
			return err
		}
		series, err := env.service.LoadSeries(ctx, req)
		if err != nil {
			return err
		}
		backtest := rf.Backtest
		if job.Interval != rf.Interval {
			if backtest.Metrics.BarsPerYear, err = analytics.BarsPerYear(job.Interval); err != nil {
				return err
			}
		}
		env.logger.Info(ctx, "Batch job ready", map[string]interface{}{
			"job":      job.Name,
			"strategy": job.Strategy,
			"series":   seriesLabel(series),
		})
		jobs = append(jobs, optimization.BatchJob{
			Name:       job.Name,
			Strategy:   job.Strategy,
			Parameters: job.Parameters,
			Series:     series,
			Config:     backtest,
		})
	}

	results, err := env.service.Batch(ctx, jobs, rf.Concurrency)
	if err != nil {
		return err
	}
	app.WriteBatch(cmd.OutOrStdout(), results)
	return nil
}
