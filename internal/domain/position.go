package domain

import (
	"time"

	"github.com/moznion/go-optional"
)

// Position represents an open position held by an account.
type Position struct {
	Symbol      string
	Size        Units                  // Signed size (positive = long, negative = short)
	EntryPrice  Price                  // Average entry price
	MarkPrice   Price                  // Last mark used for unrealized P&L
	EntryTime   time.Time              // Time the position was opened
	EntryIndex  int                    // Bar index at open
	PeakSize    Units                  // Largest absolute size reached
	RealizedPnL Cents                  // P&L booked by partial reductions
	Fees        Cents                  // Fees paid on all fills of this position
	StopLoss    optional.Option[Price] // Protective stop level
	TakeProfit  optional.Option[Price] // Profit target level
	DecisionID  int64                  // Decision that opened the position
}

// IsOpen reports whether the position holds a non-zero size.
func (p *Position) IsOpen() bool {
	return p.Size != 0
}

// Side returns Buy for long positions and Sell for short positions.
func (p *Position) Side() OrderSide {
	if p.Size < 0 {
		return Sell
	}
	return Buy
}

// UnrealizedPnL is derived from the mark price; it is never stored.
func (p *Position) UnrealizedPnL() Cents {
	return PnL(p.Size, p.EntryPrice, p.MarkPrice)
}

// AccountState is the account snapshot taken at a bar boundary.
type AccountState struct {
	Time          time.Time
	Cash          Cents
	Unrealized    Cents
	Equity        Cents // Cash + Unrealized
	HighWaterMark Cents
	OpenPositions int
}

// StrategyState is the engine-owned context handed to a strategy with each window.
type StrategyState struct {
	Position optional.Option[Position]
	Equity   Cents
	Cash     Cents
	BarIndex int
}
