package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"

	"github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.ResultRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
	now    func() time.Time
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
	Clock  func() time.Time // Stamps CreatedAt; defaults to time.Now
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/backtests.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	repo := &Repository{db: db, logger: cfg.Logger, now: clock}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist. Money is stored in
// integer cents and prices in integer price units; times in Unix seconds.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		strategy TEXT NOT NULL,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		parameters TEXT NOT NULL,
		starting_cash INTEGER NOT NULL,
		total_trades INTEGER NOT NULL,
		winning_trades INTEGER NOT NULL,
		losing_trades INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		profit_factor REAL NOT NULL,
		gross_profit INTEGER NOT NULL,
		gross_loss INTEGER NOT NULL,
		net_profit INTEGER NOT NULL,
		max_drawdown INTEGER NOT NULL,
		max_drawdown_fraction REAL NOT NULL,
		sharpe_ratio REAL NOT NULL,
		total_return REAL NOT NULL,
		annualized_return REAL NOT NULL,
		average_win INTEGER NOT NULL,
		average_loss INTEGER NOT NULL,
		expectancy INTEGER NOT NULL,
		max_consecutive_wins INTEGER NOT NULL,
		max_consecutive_losses INTEGER NOT NULL,
		average_bars_held REAL NOT NULL,
		total_fees INTEGER NOT NULL,
		final_equity INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_trades (
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		trade_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_time INTEGER NOT NULL,
		exit_time INTEGER NOT NULL,
		entry_price INTEGER NOT NULL,
		exit_price INTEGER NOT NULL,
		size INTEGER NOT NULL,
		pnl INTEGER NOT NULL,
		fees INTEGER NOT NULL,
		reason TEXT NOT NULL,
		bars_held INTEGER NOT NULL,
		decision_id INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS run_equity (
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		time INTEGER NOT NULL,
		cash INTEGER NOT NULL,
		unrealized INTEGER NOT NULL,
		equity INTEGER NOT NULL,
		high_water_mark INTEGER NOT NULL,
		open_positions INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// SaveResult stores the run header, its trade ledger and its equity curve in
// one transaction.
func (r *Repository) SaveResult(ctx context.Context, result *domain.BacktestResult, parameters string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for run %s: %w", result.RunID, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	m := result.Metrics
	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (run_id, strategy, symbol, interval, parameters, starting_cash,
	                  total_trades, winning_trades, losing_trades, win_rate, profit_factor,
	                  gross_profit, gross_loss, net_profit, max_drawdown, max_drawdown_fraction,
	                  sharpe_ratio, total_return, annualized_return, average_win, average_loss,
	                  expectancy, max_consecutive_wins, max_consecutive_losses, average_bars_held,
	                  total_fees, final_equity, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, result.Strategy, result.Symbol, result.Interval, parameters, int64(result.StartingCash),
		m.TotalTrades, m.WinningTrades, m.LosingTrades, m.WinRate, m.ProfitFactor,
		int64(m.GrossProfit), int64(m.GrossLoss), int64(m.NetProfit), int64(m.MaxDrawdown), m.MaxDrawdownFraction,
		m.SharpeRatio, m.TotalReturn, m.AnnualizedReturn, int64(m.AverageWin), int64(m.AverageLoss),
		int64(m.Expectancy), m.MaxConsecutiveWins, m.MaxConsecutiveLosses, m.AverageBarsHeld,
		int64(m.TotalFees), int64(m.FinalEquity), r.now().UTC().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run %s: %w", result.RunID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert run %s: %w", result.RunID, err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO run_trades (run_id, seq, trade_id, symbol, side, entry_time, exit_time, entry_price,
	                        exit_price, size, pnl, fees, reason, bars_held, decision_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trade insert: %w", err)
	}
	defer tradeStmt.Close()
	for i, t := range result.Trades {
		if _, err = tradeStmt.ExecContext(ctx, result.RunID, i, t.ID, t.Symbol, string(t.Side),
			t.EntryTime.Unix(), t.ExitTime.Unix(), int64(t.EntryPrice), int64(t.ExitPrice), int64(t.Size),
			int64(t.PnL), int64(t.Fees), string(t.Reason), t.BarsHeld, t.DecisionID); err != nil {
			return fmt.Errorf("failed to insert trade %d of run %s: %w", i, result.RunID, err)
		}
	}

	equityStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO run_equity (run_id, seq, time, cash, unrealized, equity, high_water_mark, open_positions)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare equity insert: %w", err)
	}
	defer equityStmt.Close()
	for i, p := range result.EquityCurve {
		if _, err = equityStmt.ExecContext(ctx, result.RunID, i, p.Time.Unix(), int64(p.Cash),
			int64(p.Unrealized), int64(p.Equity), int64(p.HighWaterMark), p.OpenPositions); err != nil {
			return fmt.Errorf("failed to insert equity point %d of run %s: %w", i, result.RunID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", result.RunID, err)
	}
	r.logger.Debug(ctx, "Backtest result saved", map[string]interface{}{
		"runId":  result.RunID,
		"trades": len(result.Trades),
		"points": len(result.EquityCurve),
	})
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

const runColumns = `run_id, strategy, symbol, interval, parameters,
	total_trades, winning_trades, losing_trades, win_rate, profit_factor,
	gross_profit, gross_loss, net_profit, max_drawdown, max_drawdown_fraction,
	sharpe_ratio, total_return, annualized_return, average_win, average_loss,
	expectancy, max_consecutive_wins, max_consecutive_losses, average_bars_held,
	total_fees, final_equity, created_at`

// FindRun retrieves a run header by ID. Returns nil, nil if not found.
func (r *Repository) FindRun(ctx context.Context, runID string) (*ports.RunSummary, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Run not found by ID", map[string]interface{}{"runId": runID})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns retrieves run headers, most recent first, up to limit.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]*ports.RunSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*ports.RunSummary, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run during ListRuns: %w", err)
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// FindTrades retrieves the closed-trade ledger of a run in exit order.
func (r *Repository) FindTrades(ctx context.Context, runID string) ([]domain.ClosedTrade, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT trade_id, symbol, side, entry_time, exit_time, entry_price, exit_price,
	       size, pnl, fees, reason, bars_held, decision_id
	FROM run_trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades of run %s: %w", runID, err)
	}
	defer rows.Close()

	trades := make([]domain.ClosedTrade, 0)
	for rows.Next() {
		var t domain.ClosedTrade
		var side, reason string
		var entry, exit int64
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &entry, &exit, &t.EntryPrice, &t.ExitPrice,
			&t.Size, &t.PnL, &t.Fees, &reason, &t.BarsHeld, &t.DecisionID); err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindTrades: %w", err)
		}
		t.Side = domain.OrderSide(side)
		t.Reason = domain.ExitReason(reason)
		t.EntryTime = time.Unix(entry, 0).UTC()
		t.ExitTime = time.Unix(exit, 0).UTC()
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// FindEquityCurve retrieves the equity curve of a run in time order.
func (r *Repository) FindEquityCurve(ctx context.Context, runID string) ([]domain.AccountState, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT time, cash, unrealized, equity, high_water_mark, open_positions
	FROM run_equity WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity curve of run %s: %w", runID, err)
	}
	defer rows.Close()

	curve := make([]domain.AccountState, 0)
	for rows.Next() {
		var p domain.AccountState
		var at int64
		if err := rows.Scan(&at, &p.Cash, &p.Unrealized, &p.Equity, &p.HighWaterMark, &p.OpenPositions); err != nil {
			return nil, fmt.Errorf("failed to scan equity point during FindEquityCurve: %w", err)
		}
		p.Time = time.Unix(at, 0).UTC()
		curve = append(curve, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity rows: %w", err)
	}
	return curve, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRun scans a row into a ports.RunSummary struct.
func scanRun(s scanner) (*ports.RunSummary, error) {
	run := &ports.RunSummary{}
	m := &run.Metrics
	var createdAt int64
	err := s.Scan(
		&run.RunID, &run.Strategy, &run.Symbol, &run.Interval, &run.Parameters,
		&m.TotalTrades, &m.WinningTrades, &m.LosingTrades, &m.WinRate, &m.ProfitFactor,
		&m.GrossProfit, &m.GrossLoss, &m.NetProfit, &m.MaxDrawdown, &m.MaxDrawdownFraction,
		&m.SharpeRatio, &m.TotalReturn, &m.AnnualizedReturn, &m.AverageWin, &m.AverageLoss,
		&m.Expectancy, &m.MaxConsecutiveWins, &m.MaxConsecutiveLosses, &m.AverageBarsHeld,
		&m.TotalFees, &m.FinalEquity, &createdAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	run.Trades = m.TotalTrades
	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	return run, nil
}
