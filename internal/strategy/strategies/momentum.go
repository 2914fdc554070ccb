package strategies

import (
	"context"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
	"backtestCore/internal/strategy/indicators"

	"github.com/moznion/go-optional"
)

// MomentumConfig holds configuration for the RSI + MACD momentum strategy
type MomentumConfig struct {
	RSIPeriod         int     `validate:"gte=2"`
	RSIEntry          float64 `validate:"gt=0,lt=100"`                  // RSI level crossed upward to enter (e.g., 30)
	RSIExit           float64 `validate:"gt=0,lt=100,gtfield=RSIEntry"` // RSI level above which the position is closed (e.g., 70)
	MACDFast          int     `validate:"gte=1"`
	MACDSlow          int     `validate:"gtfield=MACDFast"`
	MACDSignal        int     `validate:"gte=1"`
	ATRPeriod         int     `validate:"gte=1"`
	ATRStopMultiplier float64 `validate:"gt=0"` // Stop distance below entry in ATRs (e.g., 2.0)
}

// DefaultMomentumConfig returns the classic 14 / 12-26-9 settings.
func DefaultMomentumConfig() MomentumConfig {
	return MomentumConfig{
		RSIPeriod:         14,
		RSIEntry:          30,
		RSIExit:           70,
		MACDFast:          12,
		MACDSlow:          26,
		MACDSignal:        9,
		ATRPeriod:         14,
		ATRStopMultiplier: 2.0,
	}
}

func (c *MomentumConfig) bind(params map[string]float64) error {
	return bindParams(MomentumName, params,
		map[string]*int{
			"rsi_period":  &c.RSIPeriod,
			"macd_fast":   &c.MACDFast,
			"macd_slow":   &c.MACDSlow,
			"macd_signal": &c.MACDSignal,
			"atr_period":  &c.ATRPeriod,
		},
		map[string]*float64{
			"rsi_entry":           &c.RSIEntry,
			"rsi_exit":            &c.RSIExit,
			"atr_stop_multiplier": &c.ATRStopMultiplier,
		})
}

// Momentum buys when RSI recovers through RSIEntry while the MACD histogram
// turns positive, and exits on RSI above RSIExit or a histogram turning negative.
// Suited to trending markets.
type Momentum struct {
	*BaseStrategy
	config MomentumConfig
	rsi    *indicators.RSI
	macd   *indicators.MACD
	atr    *indicators.ATR
}

// NewMomentum creates a new momentum strategy instance
func NewMomentum(config MomentumConfig, logger ports.Logger) (*Momentum, error) {
	if err := requireLogger(MomentumName, logger); err != nil {
		return nil, err
	}
	if err := ports.ValidateConfig(MomentumName, config); err != nil {
		return nil, err
	}

	m := &Momentum{
		config: config,
		rsi:    indicators.NewRSI(indicators.RSIConfig{IndicatorConfig: indicators.IndicatorConfig{Period: config.RSIPeriod}, Overbought: config.RSIExit, Oversold: config.RSIEntry}),
		macd:   indicators.NewMACD(indicators.MACDConfig{FastPeriod: config.MACDFast, SlowPeriod: config.MACDSlow, SignalPeriod: config.MACDSignal}),
		atr:    indicators.NewATR(indicators.ATRConfig{IndicatorConfig: indicators.IndicatorConfig{Period: config.ATRPeriod}}),
	}
	// One extra bar so both the current and the previous value exist.
	warmUp := max(m.rsi.RequiredDataPoints(), m.macd.RequiredDataPoints(), m.atr.RequiredDataPoints()) + 1
	m.BaseStrategy = NewBaseStrategy(logger, warmUp)
	return m, nil
}

// Name returns the name of the strategy
func (m *Momentum) Name() string {
	return MomentumName
}

// OnBar evaluates the entry and exit rules on the completed bars.
func (m *Momentum) OnBar(ctx context.Context, window []domain.Bar, state domain.StrategyState) optional.Option[domain.Order] {
	if len(window) < m.WarmUp() {
		return optional.None[domain.Order]()
	}
	bars := m.tail(window)
	last := bars[len(bars)-1]

	rsiNow, err := m.rsi.Calculate(ctx, bars)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to calculate RSI")
		return optional.None[domain.Order]()
	}
	rsiPrev, err := m.rsi.Calculate(ctx, bars[:len(bars)-1])
	if err != nil {
		m.logger.Error(ctx, err, "Failed to calculate previous RSI")
		return optional.None[domain.Order]()
	}
	macd, err := m.macd.Series(bars)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to calculate MACD")
		return optional.None[domain.Order]()
	}
	histNow := macd[len(macd)-1].Histogram
	histPrev := macd[len(macd)-2].Histogram

	if pos, ok := openLong(state); ok {
		overbought := rsiNow > m.config.RSIExit
		turnedDown := histNow < 0 && histPrev >= 0
		if !overbought && !turnedDown {
			return optional.None[domain.Order]()
		}
		note := "MACD histogram turned negative"
		if overbought {
			note = "RSI overbought"
		}
		m.logger.Debug(ctx, "Momentum exit conditions met", map[string]interface{}{
			"rsi":      rsiNow,
			"histNow":  histNow,
			"histPrev": histPrev,
			"size":     pos.Size,
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

	crossedUp := rsiPrev < m.config.RSIEntry && rsiNow >= m.config.RSIEntry
	turnedUp := histNow > 0 && histPrev <= 0
	if !crossedUp || !turnedUp {
		return optional.None[domain.Order]()
	}

	atr, err := m.atr.Calculate(ctx, bars)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to calculate ATR")
		return optional.None[domain.Order]()
	}
	stop := stopBelow(last.Close, m.config.ATRStopMultiplier*atr)

	m.logger.Info(ctx, "Momentum entry conditions met", map[string]interface{}{
		"close":    last.Close.String(),
		"rsi":      rsiNow,
		"rsiPrev":  rsiPrev,
		"histNow":  histNow,
		"atr":      atr,
		"stopLoss": stop.String(),
	})
	return optional.Some(domain.Order{
		Side:     domain.Buy,
		Kind:     domain.Market,
		Price:    last.Close,
		StopLoss: optional.Some(stop),
		Time:     last.Time,
		Note:     "RSI crossed up with MACD histogram turning positive",
	})
}
