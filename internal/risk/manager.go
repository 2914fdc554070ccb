package risk

import (
	"sync"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"

	"github.com/moznion/go-optional"
)

// Config holds the risk limits. They are fixed at construction; only the
// kill-switch and the daily/circuit-breaker state change afterwards.
type Config struct {
	// MaxPositionSize caps the absolute size held per symbol, 0 = no cap.
	MaxPositionSize domain.Units `yaml:"max_position_size" validate:"gte=0"`
	// SymbolLimits overrides MaxPositionSize for individual symbols.
	SymbolLimits           map[string]domain.Units `yaml:"symbol_limits" validate:"dive,gt=0"`
	MaxConcurrentPositions int                     `yaml:"max_concurrent_positions" validate:"gte=1"`
	// MaxDailyLoss is the realized loss allowed per UTC day, 0 = no limit.
	MaxDailyLoss domain.Cents `yaml:"max_daily_loss" validate:"gte=0"`
	// MaxOrderEquityBps caps the new exposure of one order as a fraction of equity.
	MaxOrderEquityBps int64        `yaml:"max_order_equity_bps" validate:"gt=0,lte=10000"`
	MinOrderSize      domain.Units `yaml:"min_order_size" validate:"gte=1"`
	// FeeReserveBps is the fee headroom kept when checking cash.
	FeeReserveBps int64 `yaml:"fee_reserve_bps" validate:"gte=0,lte=1000"`
	AllowShort    bool  `yaml:"allow_short"`

	RequireStopLoss bool `yaml:"require_stop_loss"`
	// CircuitBreakerLosses consecutive losing trades pause trading, 0 = off.
	CircuitBreakerLosses int           `yaml:"circuit_breaker_losses" validate:"gte=0"`
	CircuitBreakerPause  time.Duration `yaml:"circuit_breaker_pause" validate:"gte=0"`

	RiskPerTradeBps int64 `yaml:"risk_per_trade_bps" validate:"gte=0,lte=10000"`
	FallbackStopBps int64 `yaml:"fallback_stop_bps" validate:"gte=0,lt=10000"`
	StopLossBps     int64 `yaml:"stop_loss_bps" validate:"gte=0,lt=10000"` // 0 = leave unset
	TakeProfitBps   int64 `yaml:"take_profit_bps" validate:"gte=0"`        // 0 = leave unset
}

// DefaultConfig returns conservative limits for a single-symbol run.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPositions: 1,
		MaxOrderEquityBps:      10_000,
		MinOrderSize:           1,
		FeeReserveBps:          50,
		CircuitBreakerPause:    time.Hour,
		RiskPerTradeBps:        100,
		FallbackStopBps:        500,
	}
}

// Stats holds the mutable risk state.
type Stats struct {
	Day               time.Time    // UTC midnight of the current trading day
	DailyPnL          domain.Cents // Realized P&L of the current day
	DailyTrades       int
	ConsecutiveLosses int
	PausedUntil       time.Time // Circuit breaker pause end
	Evaluations       int
	Rejections        int
	Halted            bool
	HaltReason        string
}

// Engine is the single authority that turns orders into decisions.
// It is safe for concurrent use.
type Engine struct {
	config Config

	mu     sync.Mutex
	stats  Stats
	nextID int64
}

// NewEngine validates the configuration and creates a risk engine.
func NewEngine(config Config) (*Engine, error) {
	if err := ports.ValidateConfig("risk", config); err != nil {
		return nil, err
	}
	return &Engine{config: config}, nil
}

// Config returns the limits the engine was built with.
func (e *Engine) Config() Config {
	return e.config
}

// Evaluate applies the checks in a fixed order:
//  1. kill-switch (trading_halted)
//  2. daily realized loss (daily_loss_limit)
//  3. circuit breaker pause (circuit_breaker)
//  4. mandatory stop on new exposure (missing_stop_loss)
//  5. concurrent position count for a new symbol (position_limit)
//  6. size caps on new exposure, resizing or rejecting (size_below_minimum)
//  7. approval
//
// Malformed orders are rejected with invalid_order after the account-wide
// checks 1-3 and before any order-level check.
func (e *Engine) Evaluate(order domain.Order, account domain.AccountState, positions []domain.Position) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.stats.Evaluations++
	e.rollDay(account.Time)

	d := Decision{id: e.nextID, order: order, requested: order.Size}
	reject := func(code domain.ReasonCode) Decision {
		e.stats.Rejections++
		d.outcome = domain.Rejected
		d.reason = code
		d.order.Size = 0
		return d
	}

	if e.stats.Halted {
		return reject(domain.ReasonTradingHalted)
	}
	if e.config.MaxDailyLoss > 0 && -e.stats.DailyPnL > e.config.MaxDailyLoss {
		return reject(domain.ReasonDailyLossLimit)
	}
	if !e.stats.PausedUntil.IsZero() && account.Time.Before(e.stats.PausedUntil) {
		return reject(domain.ReasonCircuitBreaker)
	}
	if order.Size <= 0 || order.Price <= 0 || (order.Side != domain.Buy && order.Side != domain.Sell) {
		return reject(domain.ReasonInvalidOrder)
	}

	var current domain.Units
	open := 0
	var committed domain.Cents
	for i := range positions {
		p := positions[i]
		if !p.IsOpen() {
			continue
		}
		open++
		if p.Symbol == order.Symbol {
			current = p.Size
		}
		committed += domain.Notional(p.Size, p.EntryPrice)
	}

	reduce, increase := split(current, order.Side, order.Size)
	if e.config.RequireStopLoss && increase > 0 && order.StopLoss.IsNone() {
		return reject(domain.ReasonMissingStopLoss)
	}
	if current == 0 && open >= e.config.MaxConcurrentPositions {
		return reject(domain.ReasonPositionLimit)
	}

	allowed := e.capIncrease(order, current, increase, account, committed)
	if allowed < e.config.MinOrderSize {
		allowed = 0
	}
	size := reduce + allowed
	if size == 0 {
		return reject(domain.ReasonSizeBelowMinimum)
	}

	d.order.Size = size
	if size < order.Size {
		d.outcome = domain.Resized
		d.reason = domain.ReasonSizeCapped
		return d
	}
	d.outcome = domain.Approved
	d.reason = domain.ReasonApproved
	return d
}

// split divides an order into the part that reduces the current position and
// the part that adds exposure in the order's direction.
func split(current domain.Units, side domain.OrderSide, size domain.Units) (reduce, increase domain.Units) {
	if current == 0 || (current > 0) == (side == domain.Buy) {
		return 0, size
	}
	reduce = min(size, current.Abs())
	return reduce, size - reduce
}

// capIncrease applies the per-symbol, equity-fraction, cash and shorting caps.
func (e *Engine) capIncrease(order domain.Order, current, increase domain.Units, account domain.AccountState, committed domain.Cents) domain.Units {
	if increase == 0 {
		return 0
	}
	if order.Side == domain.Sell && !e.config.AllowShort {
		return 0
	}

	allowed := increase

	sameDirection := domain.Units(0)
	if current != 0 && (current > 0) == (order.Side == domain.Buy) {
		sameDirection = current.Abs()
	}
	limit := e.config.MaxPositionSize
	if l, ok := e.config.SymbolLimits[order.Symbol]; ok {
		limit = l
	}
	if limit > 0 {
		allowed = min(allowed, max(limit-sameDirection, 0))
	}

	equity := max(account.Equity, 0)
	byEquity := domain.UnitsAffordable(domain.ApplyBps(equity, e.config.MaxOrderEquityBps), order.Price)
	allowed = min(allowed, byEquity)

	// Cash not already backing open positions pays for the new notional and its fee.
	available := account.Cash - committed
	budget := domain.Cents(int64(max(available, 0)) * domain.BasisPoints / (domain.BasisPoints + e.config.FeeReserveBps))
	allowed = min(allowed, domain.UnitsAffordable(budget, order.Price))

	return max(allowed, 0)
}

// RecordTrade feeds a realized trade into the daily loss and circuit breaker state.
func (e *Engine) RecordTrade(trade domain.ClosedTrade) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rollDay(trade.ExitTime)
	e.stats.DailyPnL += trade.PnL
	e.stats.DailyTrades++

	if trade.IsWin() {
		e.stats.ConsecutiveLosses = 0
		return
	}
	e.stats.ConsecutiveLosses++
	if e.config.CircuitBreakerLosses > 0 && e.stats.ConsecutiveLosses >= e.config.CircuitBreakerLosses {
		e.stats.PausedUntil = trade.ExitTime.Add(e.config.CircuitBreakerPause)
		e.stats.ConsecutiveLosses = 0
	}
}

// rollDay resets the daily figures when t falls on a later UTC day.
func (e *Engine) rollDay(t time.Time) {
	if t.IsZero() {
		return
	}
	day := t.UTC().Truncate(24 * time.Hour)
	if e.stats.Day.IsZero() {
		e.stats.Day = day
		return
	}
	if day.After(e.stats.Day) {
		e.stats.Day = day
		e.stats.DailyPnL = 0
		e.stats.DailyTrades = 0
	}
}

// Halt activates the kill-switch; every later evaluation is rejected.
func (e *Engine) Halt(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Halted = true
	e.stats.HaltReason = reason
}

// Resume clears the kill-switch.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Halted = false
	e.stats.HaltReason = ""
}

// Halted reports whether the kill-switch is active.
func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.Halted
}

// ResetDailyStats clears the daily P&L, trade count and circuit breaker.
func (e *Engine) ResetDailyStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.DailyPnL = 0
	e.stats.DailyTrades = 0
	e.stats.ConsecutiveLosses = 0
	e.stats.PausedUntil = time.Time{}
}

// GetStats returns a copy of the current risk state.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// GetPositionSize sizes an order so that a stop-out loses RiskPerTradeBps of equity.
// Without a usable stop the FallbackStopBps distance is assumed.
func (e *Engine) GetPositionSize(equity domain.Cents, entry domain.Price, stop optional.Option[domain.Price]) domain.Units {
	budget := domain.ApplyBps(max(equity, 0), e.config.RiskPerTradeBps)

	var distance domain.Price
	if stop.IsSome() {
		distance = entry - stop.Unwrap()
		if distance < 0 {
			distance = -distance
		}
	}
	if distance <= 0 {
		distance = domain.Price(int64(entry) * e.config.FallbackStopBps / domain.BasisPoints)
	}
	if distance <= 0 {
		distance = max(entry/20, 1)
	}

	size := domain.Units(int64(budget) * domain.PriceUnitsPerCent / int64(distance))
	return max(size, e.config.MinOrderSize)
}

// GetStopLoss returns the default stop for an entry, if one is configured.
func (e *Engine) GetStopLoss(entry domain.Price, side domain.OrderSide) optional.Option[domain.Price] {
	if e.config.StopLossBps == 0 {
		return optional.None[domain.Price]()
	}
	offset := domain.Price(int64(entry) * e.config.StopLossBps / domain.BasisPoints)
	if side == domain.Buy {
		return optional.Some(entry - offset)
	}
	return optional.Some(entry + offset)
}

// GetTakeProfit returns the default profit target for an entry, if one is configured.
func (e *Engine) GetTakeProfit(entry domain.Price, side domain.OrderSide) optional.Option[domain.Price] {
	if e.config.TakeProfitBps == 0 {
		return optional.None[domain.Price]()
	}
	offset := domain.Price(int64(entry) * e.config.TakeProfitBps / domain.BasisPoints)
	if side == domain.Buy {
		return optional.Some(entry + offset)
	}
	return optional.Some(max(entry-offset, 1))
}
