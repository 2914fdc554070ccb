package cmd

import (
	"github.com/spf13/cobra"

	"backtestCore/internal/app"
	"backtestCore/internal/strategy/strategies"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Trade the run file's strategy on the exchange",
	Long: `Live runs the strategy once per completed bar against Binance futures
(testnet unless IS_TESTNET=false). Every order is evaluated by the risk engine
configured in the run file's "live.risk" section, and new positions get exchange
side stop-loss and take-profit orders.

Requires BINANCE_API_KEY and BINANCE_API_SECRET.`,
	RunE: runLive,
}

var liveOnce bool

func init() {
	rootCmd.AddCommand(liveCmd)
	liveCmd.Flags().BoolVar(&liveOnce, "once", false, "run a single decision cycle and exit")
}

func runLive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, cleanup, err := setup(ctx, needs{exchange: true})
	if err != nil {
		return err
	}
	defer cleanup()
	rf := env.run

	if err := env.cfg.RequireCredentials(); err != nil {
		return err
	}
	if err := env.exchange.Ping(ctx); err != nil {
		return err
	}
	env.logger.Info(ctx, "Binance client initialized", map[string]interface{}{"testnet": env.cfg.IsTestnet})

	strategy, err := strategies.New(rf.Strategy, rf.Parameters, env.logger)
	if err != nil {
		return err
	}
	executor, err := app.NewLiveExecutor(rf.Live, env.exchange, env.logger)
	if err != nil {
		return err
	}

	if liveOnce {
		return executor.Cycle(ctx, strategy)
	}
	return executor.Run(ctx, strategy)
}
