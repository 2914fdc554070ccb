package indicators

import (
	"context"
	"fmt"

	"backtestCore/internal/domain"

	"github.com/montanaflynn/stats"
)

// BollingerConfig holds the band period and width in standard deviations.
type BollingerConfig struct {
	IndicatorConfig
	StdDev float64
}

// Bands is one point of the Bollinger indicator.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bandwidth is the band width relative to the middle band.
func (b Bands) Bandwidth() float64 {
	if b.Middle == 0 {
		return 0
	}
	return (b.Upper - b.Lower) / b.Middle
}

// Bollinger implements Bollinger Bands over closes
type Bollinger struct {
	BaseIndicator
	config BollingerConfig
}

// NewBollinger creates a new Bollinger Bands indicator instance
func NewBollinger(config BollingerConfig) *Bollinger {
	return &Bollinger{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (b *Bollinger) Name() string {
	return "BB"
}

// Calculate returns the middle band at the last bar
func (b *Bollinger) Calculate(ctx context.Context, bars []domain.Bar) (float64, error) {
	bands, err := b.Bands(bars)
	if err != nil {
		return 0, err
	}
	return bands.Middle, nil
}

// Bands computes the bands over the last Period closes using the population
// standard deviation.
func (b *Bollinger) Bands(bars []domain.Bar) (Bands, error) {
	period := b.Config.Period
	if period <= 1 || len(bars) < period {
		return Bands{}, fmt.Errorf("not enough data (%d) to calculate Bollinger bands for period %d", len(bars), period)
	}

	window := stats.Float64Data(Closes(bars[len(bars)-period:]))
	mean, err := window.Mean()
	if err != nil {
		return Bands{}, fmt.Errorf("bollinger mean: %w", err)
	}
	sd, err := window.StandardDeviationPopulation()
	if err != nil {
		return Bands{}, fmt.Errorf("bollinger deviation: %w", err)
	}

	return Bands{
		Upper:  mean + b.config.StdDev*sd,
		Middle: mean,
		Lower:  mean - b.config.StdDev*sd,
	}, nil
}

// BandwidthHistory returns the bandwidth at each of the last n bars that have
// a full period behind them, oldest first.
func (b *Bollinger) BandwidthHistory(bars []domain.Bar, n int) ([]float64, error) {
	period := b.Config.Period
	first := max(period, len(bars)-n+1)
	if len(bars) < period {
		return nil, fmt.Errorf("not enough data (%d) for bandwidth history", len(bars))
	}

	out := make([]float64, 0, len(bars)-first+1)
	for end := first; end <= len(bars); end++ {
		bands, err := b.Bands(bars[:end])
		if err != nil {
			return nil, err
		}
		out = append(out, bands.Bandwidth())
	}
	return out, nil
}
