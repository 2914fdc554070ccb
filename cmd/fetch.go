package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"backtestCore/internal/app"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download exchange bars into a CSV file",
	Long: `Fetch downloads completed bars for the run file's symbol and interval
between start and end (default: the last three months) and stores them as CSV.

Example:
  backtestcore fetch --symbol ETHUSDT -i 1h -o data/eth_1h.csv`,
	RunE: runFetch,
}

var fetchOut string

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "output CSV path (default DATA_DIR/SYMBOL_INTERVAL_START_to_END.csv)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, cleanup, err := setup(ctx, needs{exchange: true})
	if err != nil {
		return err
	}
	defer cleanup()
	rf := env.run

	start, end, err := window(rf, time.Now())
	if err != nil {
		return err
	}
	out := fetchOut
	if out == "" {
		name := fmt.Sprintf("%s_%s_%s_to_%s.csv", rf.Symbol, rf.Interval, start.Format("20060102"), end.Format("20060102"))
		out = filepath.Join(env.cfg.DataDir, name)
	}

	series, err := env.service.Fetch(ctx, app.DataRequest{Symbol: rf.Symbol, Interval: rf.Interval, Start: start, End: end}, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", seriesLabel(series), out)
	return nil
}
