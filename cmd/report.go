package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"backtestCore/internal/app"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "List stored runs for comparison",
	Long: `Report prints the most recent stored runs with their headline metrics.

Subcommands:
  export - Write the ledger and equity curve of one stored run as CSV

Examples:
  backtestcore report --limit 10
  backtestcore report export 6f1c... --trades trades.csv --equity equity.csv`,
	RunE: runReport,
}

var reportExportCmd = &cobra.Command{
	Use:   "export RUN_ID",
	Short: "Export the ledger and equity curve of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportExport,
}

var (
	reportLimit    int
	exportTradesTo string
	exportEquityTo string
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportExportCmd)

	reportCmd.Flags().IntVarP(&reportLimit, "limit", "n", 20, "number of runs to list")
	reportExportCmd.Flags().StringVar(&exportTradesTo, "trades", "trades.csv", "trade ledger CSV path")
	reportExportCmd.Flags().StringVar(&exportEquityTo, "equity", "equity.csv", "equity curve CSV path")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, cleanup, err := setup(ctx, needs{repo: true})
	if err != nil {
		return err
	}
	defer cleanup()

	runs, err := env.service.Runs(ctx, reportLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored runs. Run a backtest first.")
		return nil
	}
	app.WriteRuns(cmd.OutOrStdout(), runs)
	return nil
}

func runReportExport(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	env, cleanup, err := setup(ctx, needs{repo: true})
	if err != nil {
		return err
	}
	defer cleanup()

	trades, err := createFile(exportTradesTo)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := trades.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	equity, err := createFile(exportEquityTo)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := equity.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if err := env.service.ExportRun(ctx, args[0], trades, equity); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported run %s to %s and %s\n", args[0], exportTradesTo, exportEquityTo)
	return nil
}
