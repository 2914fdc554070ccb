package strategies

import (
	"context"

	"backtestCore/internal/domain"
	"backtestCore/internal/strategy/indicators"
)

// Regime classifies recent market behaviour.
type Regime string

const (
	RegimeTrending Regime = "trending"
	RegimeRanging  Regime = "ranging"
	RegimeVolatile Regime = "volatile"
)

// RegimeConfig holds the ADX and bandwidth thresholds for regime detection.
type RegimeConfig struct {
	ADXPeriod         int     `validate:"gte=2"`
	BBPeriod          int     `validate:"gte=2"`
	ADXTrending       float64 `validate:"gt=0,lte=100"`
	ADXRanging        float64 `validate:"gt=0,ltefield=ADXTrending"`
	BandwidthHigh     float64 `validate:"gte=0,lte=100"` // Percentile above which bands are expanding
	BandwidthLow      float64 `validate:"gte=0,ltefield=BandwidthHigh"`
	BandwidthLookback int     `validate:"gte=2"` // Bars of bandwidth history for the percentile
}

// DefaultRegimeConfig returns ADX 25/20 and bandwidth percentile 60/40.
func DefaultRegimeConfig() RegimeConfig {
	return RegimeConfig{
		ADXPeriod:         14,
		BBPeriod:          20,
		ADXTrending:       25,
		ADXRanging:        20,
		BandwidthHigh:     60,
		BandwidthLow:      40,
		BandwidthLookback: 100,
	}
}

// RegimeDetector classifies a bar window as trending, ranging or volatile.
type RegimeDetector struct {
	config RegimeConfig
	adx    *indicators.ADX
	bands  *indicators.Bollinger
}

// NewRegimeDetector creates a detector. The config is assumed valid.
func NewRegimeDetector(config RegimeConfig) *RegimeDetector {
	return &RegimeDetector{
		config: config,
		adx:    indicators.NewADX(indicators.ADXConfig{IndicatorConfig: indicators.IndicatorConfig{Period: config.ADXPeriod}}),
		bands:  indicators.NewBollinger(indicators.BollingerConfig{IndicatorConfig: indicators.IndicatorConfig{Period: config.BBPeriod}, StdDev: 2}),
	}
}

// RequiredDataPoints returns the bars needed for both ADX and the bands.
func (d *RegimeDetector) RequiredDataPoints() int {
	return max(d.adx.RequiredDataPoints(), d.bands.RequiredDataPoints())
}

// Detect classifies the window. Too little data is reported as volatile.
func (d *RegimeDetector) Detect(ctx context.Context, bars []domain.Bar) Regime {
	if len(bars) < d.RequiredDataPoints() {
		return RegimeVolatile
	}
	adx, err := d.adx.Calculate(ctx, bars)
	if err != nil {
		return RegimeVolatile
	}
	history, err := d.bands.BandwidthHistory(bars, d.config.BandwidthLookback)
	if err != nil || len(history) == 0 {
		return RegimeVolatile
	}
	pct := PercentileRank(history, history[len(history)-1])

	switch {
	case adx > d.config.ADXTrending && pct > d.config.BandwidthHigh:
		return RegimeTrending
	case adx < d.config.ADXRanging && pct < d.config.BandwidthLow:
		return RegimeRanging
	default:
		return RegimeVolatile
	}
}

// PercentileRank returns the rank of v among values as a percentage in
// (0, 100], with ties sharing their average rank.
func PercentileRank(values []float64, v float64) float64 {
	if len(values) == 0 {
		return 0
	}
	less, equal := 0, 0
	for _, x := range values {
		switch {
		case x < v:
			less++
		case x == v:
			equal++
		}
	}
	rank := float64(less) + float64(equal+1)/2
	return 100 * rank / float64(len(values))
}
