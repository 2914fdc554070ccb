package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"backtestCore/internal/adapters/csvfeed"
	"backtestCore/internal/app"
	"backtestCore/internal/domain"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run one backtest and print its metrics",
	Long: `Backtest replays the run file's series through one strategy configuration.

Examples:
  backtestcore backtest -d data/ETHUSDT_1h.csv -s meanrev -p rsi_entry=30
  backtestcore backtest -f runs/eth.yaml --trades trades.csv --equity equity.csv`,
	RunE: runBacktest,
}

var (
	btTradesOut string
	btEquityOut string
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.Flags().StringVar(&btTradesOut, "trades", "", "write the trade ledger as CSV to this path")
	backtestCmd.Flags().StringVar(&btEquityOut, "equity", "", "write the equity curve as CSV to this path")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, cleanup, err := setup(ctx, needs{repo: true, history: seriesFromExchange})
	if err != nil {
		return err
	}
	defer cleanup()
	rf := env.run

	req, err := dataRequest(rf, rf.Symbol, rf.Interval, rf.Data)
	if err != nil {
		return err
	}
	series, err := env.service.LoadSeries(ctx, req)
	if err != nil {
		return err
	}

	result, err := env.service.Run(ctx, app.RunRequest{
		Strategy:   rf.Strategy,
		Parameters: rf.Parameters,
		Config:     rf.Backtest,
	}, series)
	if err != nil {
		return err
	}
	app.WriteResult(cmd.OutOrStdout(), result)

	if btTradesOut != "" {
		if err := writeCSV(btTradesOut, func(f *os.File) error { return csvfeed.WriteTrades(f, result.Trades) }); err != nil {
			return err
		}
	}
	if btEquityOut != "" {
		if err := writeCSV(btEquityOut, func(f *os.File) error { return csvfeed.WriteEquityCurve(f, result.EquityCurve) }); err != nil {
			return err
		}
	}
	if result.Metrics.TotalTrades == 0 {
		env.logger.Warn(ctx, "Backtest produced no trades", map[string]interface{}{"runId": result.RunID, "bars": series.Len()})
	}
	return nil
}

func writeCSV(path string, write func(*os.File) error) (err error) {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// seriesLabel names a series in job listings.
func seriesLabel(s domain.Series) string {
	return fmt.Sprintf("%s %s (%d bars)", s.Symbol, s.Interval, s.Len())
}
