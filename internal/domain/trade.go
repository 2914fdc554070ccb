package domain

import "time"

// ClosedTrade represents a fully realized round trip.
type ClosedTrade struct {
	ID         string     // Deterministic identifier (ULID of the exit time)
	Symbol     string     // Trading symbol (e.g., "ETHUSDT")
	Side       OrderSide  // Buy for a long round trip, Sell for a short one
	EntryTime  time.Time  // Timestamp when the position was entered
	ExitTime   time.Time  // Timestamp when the position was exited
	EntryPrice Price      // Average entry price
	ExitPrice  Price      // Price of the closing fill
	Size       Units      // Largest absolute size held
	PnL        Cents      // Realized P&L net of fees
	Fees       Cents      // Fees paid on entry and exit fills
	Reason     ExitReason // Why the position was closed
	BarsHeld   int        // Bars between entry and exit
	DecisionID int64      // Decision that opened the position
}

// IsWin reports whether the trade realized a positive P&L.
func (t ClosedTrade) IsWin() bool {
	return t.PnL > 0
}
