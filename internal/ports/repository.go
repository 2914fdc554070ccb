package ports

import (
	"context"
	"time"

	"backtestCore/internal/domain"
)

//go:generate mockgen -destination=./mocks/mock_repository.go -package=mocks backtestCore/internal/ports ResultRepository

// RunSummary is the persisted header of one backtest run.
type RunSummary struct {
	RunID      string
	Strategy   string
	Symbol     string
	Interval   string
	Parameters string // Canonical "k=v,k=v" form of the strategy parameters
	Trades     int
	Metrics    domain.Metrics
	CreatedAt  time.Time
}

// ResultRepository stores finished backtest results outside the core.
type ResultRepository interface {
	// SaveResult persists the run header, its ledger and its equity curve.
	// Saving a run ID that already exists returns ErrDuplicateEntry.
	SaveResult(ctx context.Context, result *domain.BacktestResult, parameters string) error
	// FindRun retrieves a run header by ID. Returns nil, nil if not found.
	FindRun(ctx context.Context, runID string) (*RunSummary, error)
	// ListRuns retrieves run headers, most recent first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]*RunSummary, error)
	// FindTrades retrieves the closed-trade ledger of a run in exit order.
	FindTrades(ctx context.Context, runID string) ([]domain.ClosedTrade, error)
	// FindEquityCurve retrieves the equity curve of a run in time order.
	FindEquityCurve(ctx context.Context, runID string) ([]domain.AccountState, error)
}
