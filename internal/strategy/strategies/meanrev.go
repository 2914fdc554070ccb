package strategies

import (
	"context"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
	"backtestCore/internal/strategy/indicators"

	"github.com/moznion/go-optional"
)

// MeanReversionConfig holds configuration for the Bollinger band mean reversion strategy
type MeanReversionConfig struct {
	BBPeriod          int     `validate:"gte=2"`
	BBStdDev          float64 `validate:"gt=0"`
	RSIPeriod         int     `validate:"gte=2"`
	RSIEntry          float64 `validate:"gt=0,lt=100"`                  // Enter below the lower band only while RSI is under this
	RSIExit           float64 `validate:"gt=0,lt=100,gtfield=RSIEntry"` // Exit above the upper band once RSI is over this
	ATRPeriod         int     `validate:"gte=1"`
	ATRStopMultiplier float64 `validate:"gt=0"`
}

// DefaultMeanReversionConfig returns 20-bar 2-sigma bands with RSI 35/65.
func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		BBPeriod:          20,
		BBStdDev:          2,
		RSIPeriod:         14,
		RSIEntry:          35,
		RSIExit:           65,
		ATRPeriod:         14,
		ATRStopMultiplier: 1.5,
	}
}

func (c *MeanReversionConfig) bind(params map[string]float64) error {
	return bindParams(MeanReversionName, params,
		map[string]*int{
			"bb_period":  &c.BBPeriod,
			"rsi_period": &c.RSIPeriod,
			"atr_period": &c.ATRPeriod,
		},
		map[string]*float64{
			"bb_stddev":           &c.BBStdDev,
			"rsi_entry":           &c.RSIEntry,
			"rsi_exit":            &c.RSIExit,
			"atr_stop_multiplier": &c.ATRStopMultiplier,
		})
}

// MeanReversion buys closes below the lower band with RSI oversold and sells
// when price returns to the middle band or overextends above the upper band.
// Suited to ranging markets.
type MeanReversion struct {
	*BaseStrategy
	config MeanReversionConfig
	bands  *indicators.Bollinger
	rsi    *indicators.RSI
	atr    *indicators.ATR
}

// NewMeanReversion creates a new mean reversion strategy instance
func NewMeanReversion(config MeanReversionConfig, logger ports.Logger) (*MeanReversion, error) {
	if err := requireLogger(MeanReversionName, logger); err != nil {
		return nil, err
	}
	if err := ports.ValidateConfig(MeanReversionName, config); err != nil {
		return nil, err
	}

	m := &MeanReversion{
		config: config,
		bands:  indicators.NewBollinger(indicators.BollingerConfig{IndicatorConfig: indicators.IndicatorConfig{Period: config.BBPeriod}, StdDev: config.BBStdDev}),
		rsi:    indicators.NewRSI(indicators.RSIConfig{IndicatorConfig: indicators.IndicatorConfig{Period: config.RSIPeriod}, Overbought: config.RSIExit, Oversold: config.RSIEntry}),
		atr:    indicators.NewATR(indicators.ATRConfig{IndicatorConfig: indicators.IndicatorConfig{Period: config.ATRPeriod}}),
	}
	warmUp := max(m.bands.RequiredDataPoints()+1, m.rsi.RequiredDataPoints(), m.atr.RequiredDataPoints())
	m.BaseStrategy = NewBaseStrategy(logger, warmUp)
	return m, nil
}

// Name returns the name of the strategy
func (m *MeanReversion) Name() string {
	return MeanReversionName
}

// OnBar evaluates the band rules on the completed bars.
func (m *MeanReversion) OnBar(ctx context.Context, window []domain.Bar, state domain.StrategyState) optional.Option[domain.Order] {
	if len(window) < m.WarmUp() {
		return optional.None[domain.Order]()
	}
	bars := m.tail(window)
	last := bars[len(bars)-1]
	prev := bars[len(bars)-2]
	closeNow := float64(last.Close)

	bands, err := m.bands.Bands(bars)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to calculate Bollinger bands")
		return optional.None[domain.Order]()
	}
	rsi, err := m.rsi.Calculate(ctx, bars)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to calculate RSI")
		return optional.None[domain.Order]()
	}

	if pos, ok := openLong(state); ok {
		backToMean := float64(prev.Close) < bands.Middle && closeNow >= bands.Middle
		overextended := closeNow > bands.Upper && rsi > m.config.RSIExit
		if !backToMean && !overextended {
			return optional.None[domain.Order]()
		}
		note := "price crossed above the middle band"
		if overextended {
			note = "price above the upper band with RSI elevated"
		}
		m.logger.Debug(ctx, "Mean reversion exit conditions met", map[string]interface{}{
			"close":  last.Close.String(),
			"middle": bands.Middle,
			"upper":  bands.Upper,
			"rsi":    rsi,
		})
		return optional.Some(domain.Order{
			Symbol: pos.Symbol,
			Side:   domain.Sell,
			Kind:   domain.Market,
			Size:   pos.Size,
			Price:  last.Close,
			Time:   last.Time,
			Note:   note,
		})
	}
	if state.Position.IsSome() {
		return optional.None[domain.Order]()
	}

	if closeNow >= bands.Lower || rsi >= m.config.RSIEntry {
		return optional.None[domain.Order]()
	}

	atr, err := m.atr.Calculate(ctx, bars)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to calculate ATR")
		return optional.None[domain.Order]()
	}
	stop := stopBelow(last.Close, m.config.ATRStopMultiplier*atr)

	m.logger.Info(ctx, "Mean reversion entry conditions met", map[string]interface{}{
		"close":    last.Close.String(),
		"lower":    bands.Lower,
		"rsi":      rsi,
		"atr":      atr,
		"stopLoss": stop.String(),
	})
	return optional.Some(domain.Order{
		Side:     domain.Buy,
		Kind:     domain.Market,
		Price:    last.Close,
		StopLoss: optional.Some(stop),
		Time:     last.Time,
		Note:     "price below the lower band with RSI oversold",
	})
}
