package cmd

import (
	"github.com/spf13/cobra"

	"backtestCore/internal/app"
	"backtestCore/internal/ports"
	"backtestCore/internal/strategy/optimization"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a parameter sweep and rank the results",
	Long: `Sweep runs the run file's strategy over every combination of the ranges in
its "sweep" section, in parallel, and prints the results best first.

With --one-at-a-time each range is varied alone while the other parameters keep
their base values.

Example run file section:
  sweep:
    - {name: rsi_entry, min: 20, max: 40, step: 5}
    - {name: atr_stop_multiplier, min: 1, max: 3, step: 0.5}`,
	RunE: runSweep,
}

var (
	sweepOneAtATime bool
	sweepTop        int
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().BoolVar(&sweepOneAtATime, "one-at-a-time", false, "vary one parameter at a time instead of the full grid")
	sweepCmd.Flags().IntVar(&sweepTop, "top", 20, "number of ranked results to print, 0 for all")
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, cleanup, err := setup(ctx, needs{repo: true, history: seriesFromExchange})
	if err != nil {
		return err
	}
	defer cleanup()
	rf := env.run

	if len(rf.Sweep) == 0 {
		return ports.NewConfigError("sweep", "the run file has no sweep ranges")
	}
	req, err := dataRequest(rf, rf.Symbol, rf.Interval, rf.Data)
	if err != nil {
		return err
	}
	series, err := env.service.LoadSeries(ctx, req)
	if err != nil {
		return err
	}

	results, err := env.service.Sweep(ctx, optimization.OptimizerConfig{
		Strategy:        rf.Strategy,
		BaseParameters:  rf.Parameters,
		ParameterRanges: rf.Sweep,
		Backtest:        rf.Backtest,
		Concurrency:     rf.Concurrency,
	}, series, sweepOneAtATime)
	if err != nil {
		return err
	}
	app.WriteSweep(cmd.OutOrStdout(), results, sweepTop)
	return nil
}
