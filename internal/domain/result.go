package domain

import "math"

// InfiniteProfitFactor is reported when a run has no losing trades.
const InfiniteProfitFactor = math.MaxFloat64

// Metrics holds the performance figures derived from a finished run.
type Metrics struct {
	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	WinRate              float64
	ProfitFactor         float64 // InfiniteProfitFactor when there are no losses
	GrossProfit          Cents
	GrossLoss            Cents // Absolute sum of losing trades
	NetProfit            Cents
	MaxDrawdown          Cents
	MaxDrawdownFraction  float64 // Drawdown as a fraction of the peak it fell from
	SharpeRatio          float64
	TotalReturn          float64
	AnnualizedReturn     float64
	AverageWin           Cents
	AverageLoss          Cents
	Expectancy           Cents // Average net P&L per trade
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageBarsHeld      float64
	TotalFees            Cents
	FinalEquity          Cents
}

// HasInfiniteProfitFactor reports whether the profit factor is the sentinel.
func (m Metrics) HasInfiniteProfitFactor() bool {
	return m.ProfitFactor == InfiniteProfitFactor
}

// BacktestResult is produced once at the end of a run and is read-only thereafter.
type BacktestResult struct {
	RunID        string
	Strategy     string
	Symbol       string
	Interval     string
	StartingCash Cents
	Trades       []ClosedTrade
	EquityCurve  []AccountState
	Decisions    []DecisionRecord
	Fills        []Fill
	Dropped      []DroppedOrder
	Metrics      Metrics
}

// FinalState returns the last equity-curve point.
func (r *BacktestResult) FinalState() AccountState {
	if len(r.EquityCurve) == 0 {
		return AccountState{Cash: r.StartingCash, Equity: r.StartingCash, HighWaterMark: r.StartingCash}
	}
	return r.EquityCurve[len(r.EquityCurve)-1]
}
