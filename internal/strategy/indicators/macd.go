package indicators

import (
	"context"
	"fmt"

	"backtestCore/internal/domain"
)

// MACDConfig holds the fast, slow and signal EMA periods.
type MACDConfig struct {
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// MACDValue is one point of the MACD indicator.
type MACDValue struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD implements the Moving Average Convergence Divergence indicator
type MACD struct {
	config MACDConfig
}

// NewMACD creates a new MACD indicator instance
func NewMACD(config MACDConfig) *MACD {
	return &MACD{config: config}
}

// Name returns the name of the indicator
func (m *MACD) Name() string {
	return "MACD"
}

// RequiredDataPoints returns the bars needed for the first signal value
func (m *MACD) RequiredDataPoints() int {
	return m.config.SlowPeriod + m.config.SignalPeriod - 1
}

// Calculate returns the histogram at the last bar
func (m *MACD) Calculate(ctx context.Context, bars []domain.Bar) (float64, error) {
	series, err := m.Series(bars)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1].Histogram, nil
}

// Series returns the MACD values from the first bar with a signal line on.
func (m *MACD) Series(bars []domain.Bar) ([]MACDValue, error) {
	c := m.config
	if c.FastPeriod <= 0 || c.SlowPeriod <= c.FastPeriod || c.SignalPeriod <= 0 {
		return nil, fmt.Errorf("invalid MACD periods %d/%d/%d", c.FastPeriod, c.SlowPeriod, c.SignalPeriod)
	}
	if len(bars) < m.RequiredDataPoints() {
		return nil, fmt.Errorf("not enough data (%d) to calculate MACD, need %d", len(bars), m.RequiredDataPoints())
	}

	closes := Closes(bars)
	fast, err := EMASeries(closes, c.FastPeriod)
	if err != nil {
		return nil, err
	}
	slow, err := EMASeries(closes, c.SlowPeriod)
	if err != nil {
		return nil, err
	}

	// Align the fast series with the slow one, which starts later.
	offset := c.SlowPeriod - c.FastPeriod
	line := make([]float64, len(slow))
	for i := range slow {
		line[i] = fast[i+offset] - slow[i]
	}

	signal, err := EMASeries(line, c.SignalPeriod)
	if err != nil {
		return nil, err
	}

	out := make([]MACDValue, len(signal))
	start := c.SignalPeriod - 1
	for i, s := range signal {
		l := line[i+start]
		out[i] = MACDValue{MACD: l, Signal: s, Histogram: l - s}
	}
	return out, nil
}
