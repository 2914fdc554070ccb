package app

import (
	"fmt"
	"io"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
	"backtestCore/internal/strategy/analytics"
	"backtestCore/internal/strategy/optimization"
	"backtestCore/internal/strategy/strategies"

	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	return table
}

func percent(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}

// WriteResult renders the metrics and the monthly returns of one run.
func WriteResult(w io.Writer, result *domain.BacktestResult) {
	m := result.Metrics
	fmt.Fprintf(w, "Run %s: %s on %s %s\n", result.RunID, result.Strategy, result.Symbol, result.Interval)

	table := newTable(w, "Metric", "Value")
	table.AppendBulk([][]string{
		{"Starting cash", result.StartingCash.String()},
		{"Final equity", m.FinalEquity.String()},
		{"Net profit", m.NetProfit.String()},
		{"Total return", percent(m.TotalReturn)},
		{"Annualized return", percent(m.AnnualizedReturn)},
		{"Max drawdown", fmt.Sprintf("%s (%s)", m.MaxDrawdown, percent(m.MaxDrawdownFraction))},
		{"Sharpe ratio", fmt.Sprintf("%.2f", m.SharpeRatio)},
		{"Trades", fmt.Sprintf("%d (%d won, %d lost)", m.TotalTrades, m.WinningTrades, m.LosingTrades)},
		{"Win rate", percent(m.WinRate)},
		{"Profit factor", analytics.FormatProfitFactor(m)},
		{"Average win", m.AverageWin.String()},
		{"Average loss", m.AverageLoss.String()},
		{"Expectancy", m.Expectancy.String()},
		{"Streaks (win/loss)", fmt.Sprintf("%d/%d", m.MaxConsecutiveWins, m.MaxConsecutiveLosses)},
		{"Average bars held", fmt.Sprintf("%.1f", m.AverageBarsHeld)},
		{"Fees", m.TotalFees.String()},
		{"Decisions", fmt.Sprintf("%d", len(result.Decisions))},
	})
	table.Render()

	months := analytics.MonthlyReturns(result.Trades)
	if len(months) == 0 {
		return
	}
	monthly := newTable(w, "Month", "Trades", "P&L")
	for _, r := range months {
		monthly.Append([]string{r.Label(), fmt.Sprintf("%d", r.Trades), r.PnL.String()})
	}
	monthly.Render()
}

// WriteSweep renders the top sweep results in ranking order; top <= 0 shows all.
func WriteSweep(w io.Writer, results []optimization.OptimizationResult, top int) {
	table := newTable(w, "#", "Parameters", "Score", "Return", "Max DD", "Sharpe", "Trades", "Win rate", "PF")
	for i, r := range results {
		if top > 0 && i >= top {
			break
		}
		params := strategies.FormatParams(r.Parameters)
		if r.Err != nil {
			table.Append([]string{fmt.Sprintf("%d", i+1), params, "error: " + r.Err.Error(), "", "", "", "", "", ""})
			continue
		}
		m := r.Result.Metrics
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			params,
			fmt.Sprintf("%.4f", r.Score),
			percent(m.TotalReturn),
			percent(m.MaxDrawdownFraction),
			fmt.Sprintf("%.2f", m.SharpeRatio),
			fmt.Sprintf("%d", m.TotalTrades),
			percent(m.WinRate),
			analytics.FormatProfitFactor(m),
		})
	}
	table.Render()
}

// WriteBatch renders one row per batch job in job order.
func WriteBatch(w io.Writer, results []optimization.BatchResult) {
	table := newTable(w, "Job", "Strategy", "Symbol", "Return", "Max DD", "Sharpe", "Trades", "Final equity")
	for _, r := range results {
		if r.Err != nil {
			table.Append([]string{r.Job.Name, r.Job.Strategy, r.Job.Series.Symbol, "error: " + r.Err.Error(), "", "", "", ""})
			continue
		}
		m := r.Result.Metrics
		table.Append([]string{
			r.Job.Name,
			r.Result.Strategy,
			r.Result.Symbol,
			percent(m.TotalReturn),
			percent(m.MaxDrawdownFraction),
			fmt.Sprintf("%.2f", m.SharpeRatio),
			fmt.Sprintf("%d", m.TotalTrades),
			m.FinalEquity.String(),
		})
	}
	table.Render()
}

// WriteRuns renders stored run headers for comparison.
func WriteRuns(w io.Writer, runs []*ports.RunSummary) {
	table := newTable(w, "Run", "Created", "Strategy", "Symbol", "Interval", "Parameters", "Return", "Max DD", "Sharpe", "Trades")
	for _, r := range runs {
		table.Append([]string{
			r.RunID,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.Strategy,
			r.Symbol,
			r.Interval,
			r.Parameters,
			percent(r.Metrics.TotalReturn),
			percent(r.Metrics.MaxDrawdownFraction),
			fmt.Sprintf("%.2f", r.Metrics.SharpeRatio),
			fmt.Sprintf("%d", r.Trades),
		})
	}
	table.Render()
}
