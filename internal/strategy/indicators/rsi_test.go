package indicators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtestCore/internal/domain"
)

func scaled(factor domain.Price, closes ...domain.Price) []domain.Bar {
	out := make([]domain.Price, len(closes))
	for i, c := range closes {
		out[i] = c * factor
	}
	return closeBars(out...)
}

func TestRSICalculate(t *testing.T) {
	tests := []struct {
		name    string
		period  int
		bars    []domain.Bar
		want    float64
		wantErr bool
	}{
		// Changes +2 -1 +2 -1 +2: seed 4/3 vs 1/3, then two Wilder steps give 34/27 vs 10/27.
		{name: "alternating", period: 3, bars: closeBars(100, 102, 101, 103, 102, 104), want: 77.272727},
		{name: "same ratio at ETH scale", period: 3, bars: scaled(200_000, 100, 102, 101, 103, 102, 104), want: 77.272727},
		{name: "only gains", period: 3, bars: closeBars(100, 102, 104, 106), want: 100},
		{name: "only losses", period: 3, bars: closeBars(106, 104, 102, 100), want: 0},
		{name: "flat", period: 3, bars: closeBars(100, 100, 100, 100, 100), want: 50},
		{name: "one bar short", period: 5, bars: closeBars(100, 101, 102, 103, 104), wantErr: true},
		{name: "zero period", period: 0, bars: closeBars(100, 101), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: tt.period}, Overbought: 70, Oversold: 30})
			got, err := rsi.Calculate(context.Background(), tt.bars)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-4)
		})
	}
}

func TestRSIRequiredDataPoints(t *testing.T) {
	rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 14}})
	assert.Equal(t, 15, rsi.RequiredDataPoints())
	assert.Equal(t, "RSI", rsi.Name())

	bars := linearBars(rsi.RequiredDataPoints(), 20_000_000, 1_000)
	_, err := rsi.Calculate(context.Background(), bars)
	assert.NoError(t, err)
	_, err = rsi.Calculate(context.Background(), bars[1:])
	assert.Error(t, err)
}

func TestRSIThresholds(t *testing.T) {
	rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 14}, Overbought: 65, Oversold: 35})

	tests := []struct {
		value      float64
		overbought bool
		oversold   bool
	}{
		{value: 80, overbought: true},
		{value: 65, overbought: true},
		{value: 50},
		{value: 35, oversold: true},
		{value: 10, oversold: true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.overbought, rsi.IsOverbought(tt.value), "overbought(%v)", tt.value)
		assert.Equal(t, tt.oversold, rsi.IsOversold(tt.value), "oversold(%v)", tt.value)
	}
}
