package strategies

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
)

// Strategy is the capability every registered strategy provides.
type Strategy = ports.Strategy

// BaseStrategy provides common functionality for strategies
type BaseStrategy struct {
	logger ports.Logger
	warmUp int
}

// NewBaseStrategy creates a new base strategy instance
func NewBaseStrategy(logger ports.Logger, warmUp int) *BaseStrategy {
	return &BaseStrategy{
		logger: logger,
		warmUp: warmUp,
	}
}

// WarmUp returns the number of completed bars needed before the first decision.
func (b *BaseStrategy) WarmUp() int {
	return b.warmUp
}

// tail bounds the indicator input so each call costs the same regardless of
// how far into the series the run is. Recursive indicators converge well
// within this many bars.
func (b *BaseStrategy) tail(window []domain.Bar) []domain.Bar {
	n := max(b.warmUp*5, 250)
	if len(window) <= n {
		return window
	}
	return window[len(window)-n:]
}

func stopBelow(close domain.Price, distance float64) domain.Price {
	return max(close-domain.PriceOf(distance), 1)
}

func openLong(state domain.StrategyState) (domain.Position, bool) {
	if state.Position.IsNone() {
		return domain.Position{}, false
	}
	pos := state.Position.Unwrap()
	return pos, pos.Size > 0
}

// bindParams copies recognized parameters into the config fields they name.
// Unknown names and fractional values for integer fields are rejected.
func bindParams(component string, params map[string]float64, ints map[string]*int, floats map[string]*float64) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := params[k]
		if p, ok := ints[k]; ok {
			if v != math.Trunc(v) {
				return ports.NewConfigError(component, "parameter %s must be a whole number, got %v", k, v)
			}
			*p = int(v)
			continue
		}
		if p, ok := floats[k]; ok {
			*p = v
			continue
		}
		return ports.NewConfigError(component, "unknown parameter %q", k)
	}
	return nil
}

func requireLogger(component string, logger ports.Logger) error {
	if logger == nil {
		return ports.NewConfigError(component, "logger is required for strategy")
	}
	return nil
}

// FormatParams renders parameters as a canonical "k=v,k=v" string.
func FormatParams(params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, params[k])
	}
	return strings.Join(parts, ",")
}
