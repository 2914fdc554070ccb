package ports

import (
	"context"

	"backtestCore/internal/domain"

	"github.com/moznion/go-optional"
)

// Strategy is the capability every trading strategy exposes to the walk-forward engine.
type Strategy interface {
	// Name returns the registered name of the strategy.
	Name() string

	// WarmUp returns the number of completed bars the strategy needs before its first decision.
	WarmUp() int

	// OnBar receives the completed bars so far plus the engine-owned state and
	// returns at most one order.
	OnBar(ctx context.Context, window []domain.Bar, state domain.StrategyState) optional.Option[domain.Order]
}
