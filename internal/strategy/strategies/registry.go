package strategies

import (
	"sort"

	"backtestCore/internal/ports"
)

// Registered strategy names.
const (
	MomentumName      = "momentum"
	MeanReversionName = "meanrev"
	SelectorName      = "selector"
)

type factory func(params map[string]float64, logger ports.Logger) (Strategy, error)

var registry = map[string]factory{
	MomentumName: func(params map[string]float64, logger ports.Logger) (Strategy, error) {
		cfg := DefaultMomentumConfig()
		if err := cfg.bind(params); err != nil {
			return nil, err
		}
		return NewMomentum(cfg, logger)
	},
	MeanReversionName: func(params map[string]float64, logger ports.Logger) (Strategy, error) {
		cfg := DefaultMeanReversionConfig()
		if err := cfg.bind(params); err != nil {
			return nil, err
		}
		return NewMeanReversion(cfg, logger)
	},
	SelectorName: func(params map[string]float64, logger ports.Logger) (Strategy, error) {
		cfg := DefaultSelectorConfig()
		if err := cfg.bind(params); err != nil {
			return nil, err
		}
		return NewSelector(cfg, logger)
	},
}

// New builds a fresh instance of the named strategy with params applied over
// its defaults. Every run must use its own instance.
func New(name string, params map[string]float64, logger ports.Logger) (Strategy, error) {
	f, ok := registry[name]
	if !ok {
		return nil, ports.NewConfigError("strategy", "unknown strategy %q (known: %v)", name, Names())
	}
	return f(params, logger)
}

// Names lists the registered strategies in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
