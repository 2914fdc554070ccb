package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"

	"github.com/montanaflynn/stats"
)

// Config holds the annualization inputs for the ratio metrics.
type Config struct {
	BarsPerYear  float64 `yaml:"bars_per_year" validate:"gt=0"`   // Annualization factor for per-bar returns
	RiskFreeRate float64 `yaml:"risk_free_rate" validate:"gte=0"` // Annual rate, e.g. 0.04
}

var barsPerYear = map[string]float64{
	"1m":  525_600,
	"5m":  105_120,
	"15m": 35_040,
	"30m": 17_520,
	"1h":  8_760,
	"4h":  2_190,
	"1d":  365,
}

// BarsPerYear returns the annualization factor for a bar interval such as "1h".
// Crypto markets trade around the clock, so a year is 365 full days.
func BarsPerYear(interval string) (float64, error) {
	n, ok := barsPerYear[interval]
	if !ok {
		return 0, ports.NewConfigError("metrics", "no annualization factor for interval %q", interval)
	}
	return n, nil
}

// Calculator derives performance metrics from a finished run.
type Calculator struct {
	config Config
}

// NewCalculator validates config and returns a calculator.
func NewCalculator(config Config) (*Calculator, error) {
	if err := ports.ValidateConfig("metrics", config); err != nil {
		return nil, err
	}
	return &Calculator{config: config}, nil
}

// Calculate computes the metrics of a run from its closed-trade ledger and
// equity curve. startingCash is the equity before the first curve point.
func (c *Calculator) Calculate(trades []domain.ClosedTrade, equity []domain.AccountState, startingCash domain.Cents) domain.Metrics {
	m := domain.Metrics{FinalEquity: startingCash}
	if len(equity) > 0 {
		m.FinalEquity = equity[len(equity)-1].Equity
	}

	tradeStats(&m, trades)
	m.MaxDrawdown, m.MaxDrawdownFraction = maxDrawdown(equity, startingCash)
	m.SharpeRatio = c.sharpe(equity, startingCash)

	if startingCash > 0 {
		m.TotalReturn = float64(m.FinalEquity-startingCash) / float64(startingCash)
		years := float64(len(equity)) / c.config.BarsPerYear
		if years > 0 && 1+m.TotalReturn > 0 {
			m.AnnualizedReturn = math.Pow(1+m.TotalReturn, 1/years) - 1
		}
	}
	return m
}

func tradeStats(m *domain.Metrics, trades []domain.ClosedTrade) {
	m.ProfitFactor = domain.InfiniteProfitFactor
	if len(trades) == 0 {
		return
	}

	var consecutiveWins, consecutiveLosses, barsHeld int
	for _, trade := range trades {
		m.TotalTrades++
		m.NetProfit += trade.PnL
		m.TotalFees += trade.Fees
		barsHeld += trade.BarsHeld

		if trade.IsWin() {
			m.WinningTrades++
			m.GrossProfit += trade.PnL
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			consecutiveLosses++
			consecutiveWins = 0
			if trade.PnL < 0 {
				m.LosingTrades++
				m.GrossLoss -= trade.PnL
			}
		}
		m.MaxConsecutiveWins = max(m.MaxConsecutiveWins, consecutiveWins)
		m.MaxConsecutiveLosses = max(m.MaxConsecutiveLosses, consecutiveLosses)
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	if m.GrossLoss > 0 {
		m.ProfitFactor = float64(m.GrossProfit) / float64(m.GrossLoss)
	}
	if m.WinningTrades > 0 {
		m.AverageWin = m.GrossProfit / domain.Cents(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = -m.GrossLoss / domain.Cents(m.LosingTrades)
	}
	m.Expectancy = m.NetProfit / domain.Cents(m.TotalTrades)
	m.AverageBarsHeld = float64(barsHeld) / float64(m.TotalTrades)
}

// maxDrawdown returns the largest peak-to-trough decline of the curve and that
// decline as a fraction of the peak it fell from.
func maxDrawdown(equity []domain.AccountState, startingCash domain.Cents) (domain.Cents, float64) {
	peak := startingCash
	var worst domain.Cents
	var fraction float64
	for _, point := range equity {
		if point.Equity > peak {
			peak = point.Equity
			continue
		}
		if dd := peak - point.Equity; dd > worst {
			worst = dd
			if peak > 0 {
				fraction = float64(dd) / float64(peak)
			}
		}
	}
	return worst, fraction
}

// sharpe annualizes the mean excess per-bar return over its sample deviation.
func (c *Calculator) sharpe(equity []domain.AccountState, startingCash domain.Cents) float64 {
	returns := Returns(equity, startingCash)
	if len(returns) < 2 {
		return 0
	}
	perBarFree := c.config.RiskFreeRate / c.config.BarsPerYear
	excess := make(stats.Float64Data, len(returns))
	for i, r := range returns {
		excess[i] = r - perBarFree
	}

	mean, err := excess.Mean()
	if err != nil {
		return 0
	}
	sd, err := excess.StandardDeviationSample()
	if err != nil || sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return mean / sd * math.Sqrt(c.config.BarsPerYear)
}

// Returns converts an equity curve into simple per-bar returns, the first one
// measured against startingCash.
func Returns(equity []domain.AccountState, startingCash domain.Cents) []float64 {
	out := make([]float64, 0, len(equity))
	prev := startingCash
	for _, point := range equity {
		if prev > 0 {
			out = append(out, float64(point.Equity-prev)/float64(prev))
		}
		prev = point.Equity
	}
	return out
}

// MonthlyReturn is the realized P&L of the trades that closed in one month.
type MonthlyReturn struct {
	Month  time.Time
	PnL    domain.Cents
	Trades int
}

// Label renders the month as "2006-01".
func (r MonthlyReturn) Label() string {
	return r.Month.Format("2006-01")
}

// MonthlyReturns buckets realized P&L by exit month, oldest first.
func MonthlyReturns(trades []domain.ClosedTrade) []MonthlyReturn {
	byMonth := make(map[time.Time]*MonthlyReturn)
	for _, trade := range trades {
		exit := trade.ExitTime.UTC()
		month := time.Date(exit.Year(), exit.Month(), 1, 0, 0, 0, 0, time.UTC)
		r, ok := byMonth[month]
		if !ok {
			r = &MonthlyReturn{Month: month}
			byMonth[month] = r
		}
		r.PnL += trade.PnL
		r.Trades++
	}

	returns := make([]MonthlyReturn, 0, len(byMonth))
	for _, r := range byMonth {
		returns = append(returns, *r)
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// FormatProfitFactor renders the profit factor, spelling out the sentinel.
func FormatProfitFactor(m domain.Metrics) string {
	if m.HasInfiniteProfitFactor() {
		return "inf"
	}
	return fmt.Sprintf("%.2f", m.ProfitFactor)
}
