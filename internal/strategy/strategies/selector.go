package strategies

import (
	"context"
	"strings"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"

	"github.com/moznion/go-optional"
)

// SelectorConfig holds how often the selector re-detects the regime.
type SelectorConfig struct {
	SwitchEvery int `validate:"gte=1"`
	Regime      RegimeConfig
	Momentum    MomentumConfig
	MeanRev     MeanReversionConfig
}

// DefaultSelectorConfig re-detects every 20 bars with the default children.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		SwitchEvery: 20,
		Regime:      DefaultRegimeConfig(),
		Momentum:    DefaultMomentumConfig(),
		MeanRev:     DefaultMeanReversionConfig(),
	}
}

func (c *SelectorConfig) bind(params map[string]float64) error {
	own := map[string]float64{}
	momentum := map[string]float64{}
	meanrev := map[string]float64{}
	for k, v := range params {
		switch {
		case strings.HasPrefix(k, MomentumName+"."):
			momentum[strings.TrimPrefix(k, MomentumName+".")] = v
		case strings.HasPrefix(k, MeanReversionName+"."):
			meanrev[strings.TrimPrefix(k, MeanReversionName+".")] = v
		default:
			own[k] = v
		}
	}
	if err := c.Momentum.bind(momentum); err != nil {
		return err
	}
	if err := c.MeanRev.bind(meanrev); err != nil {
		return err
	}
	return bindParams(SelectorName, own,
		map[string]*int{
			"switch_every":       &c.SwitchEvery,
			"adx_period":         &c.Regime.ADXPeriod,
			"bandwidth_lookback": &c.Regime.BandwidthLookback,
		},
		map[string]*float64{
			"adx_trending":   &c.Regime.ADXTrending,
			"adx_ranging":    &c.Regime.ADXRanging,
			"bandwidth_high": &c.Regime.BandwidthHigh,
			"bandwidth_low":  &c.Regime.BandwidthLow,
		})
}

// Selector routes each bar to momentum in trending regimes and to mean
// reversion otherwise. The child that opened a position keeps managing it
// until it is closed.
type Selector struct {
	*BaseStrategy
	config   SelectorConfig
	detector *RegimeDetector
	momentum *Momentum
	meanrev  *MeanReversion

	active     Strategy
	regime     Regime
	sinceCheck int
	switches   int
}

// NewSelector creates a new regime-switching strategy instance
func NewSelector(config SelectorConfig, logger ports.Logger) (*Selector, error) {
	if err := requireLogger(SelectorName, logger); err != nil {
		return nil, err
	}
	if err := ports.ValidateConfig(SelectorName, config); err != nil {
		return nil, err
	}
	momentum, err := NewMomentum(config.Momentum, logger)
	if err != nil {
		return nil, err
	}
	meanrev, err := NewMeanReversion(config.MeanRev, logger)
	if err != nil {
		return nil, err
	}

	s := &Selector{
		config:   config,
		detector: NewRegimeDetector(config.Regime),
		momentum: momentum,
		meanrev:  meanrev,
		active:   meanrev,
		regime:   RegimeVolatile,
	}
	warmUp := max(momentum.WarmUp(), meanrev.WarmUp(), s.detector.RequiredDataPoints())
	s.BaseStrategy = NewBaseStrategy(logger, warmUp)
	return s, nil
}

// Name returns the name of the strategy
func (s *Selector) Name() string {
	return SelectorName
}

// Regime returns the last detected regime.
func (s *Selector) Regime() Regime {
	return s.regime
}

// Active returns the child currently receiving bars.
func (s *Selector) Active() Strategy {
	return s.active
}

// OnBar re-detects the regime every SwitchEvery bars while flat, then
// delegates to the active child.
func (s *Selector) OnBar(ctx context.Context, window []domain.Bar, state domain.StrategyState) optional.Option[domain.Order] {
	if len(window) < s.WarmUp() {
		return optional.None[domain.Order]()
	}

	due := s.sinceCheck%s.config.SwitchEvery == 0
	s.sinceCheck++
	if due && state.Position.IsNone() {
		s.regime = s.detector.Detect(ctx, s.tail(window))
		next := Strategy(s.meanrev)
		if s.regime == RegimeTrending {
			next = s.momentum
		}
		if next != s.active {
			s.switches++
			s.logger.Info(ctx, "Strategy switched", map[string]interface{}{
				"from":   s.active.Name(),
				"to":     next.Name(),
				"regime": string(s.regime),
				"bar":    state.BarIndex,
			})
			s.active = next
		}
	} else if due {
		// Retry on the next bar once the position is closed.
		s.sinceCheck = 0
	}

	return s.active.OnBar(ctx, window, state)
}
