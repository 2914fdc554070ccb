package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() Units {
	if s == Sell {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == Sell {
		return Buy
	}
	return Sell
}

// OrderKind is how an order is filled.
type OrderKind string

const (
	Market OrderKind = "market"
	Limit  OrderKind = "limit"
	Stop   OrderKind = "stop"
)

// ExitReason indicates why a position was closed.
type ExitReason string

const (
	ExitSignal           ExitReason = "signal"
	ExitStopLoss         ExitReason = "stop-loss"
	ExitTakeProfit       ExitReason = "take-profit"
	ExitForcedCloseAtEnd ExitReason = "forced-close-at-end"
)

// DecisionOutcome is the result of a risk evaluation.
type DecisionOutcome string

const (
	Approved DecisionOutcome = "approved"
	Rejected DecisionOutcome = "rejected"
	Resized  DecisionOutcome = "resized"
)

// ReasonCode explains a decision or a dropped order.
type ReasonCode string

const (
	ReasonApproved         ReasonCode = "approved"
	ReasonSizeCapped       ReasonCode = "size_capped"
	ReasonTradingHalted    ReasonCode = "trading_halted"
	ReasonDailyLossLimit   ReasonCode = "daily_loss_limit"
	ReasonCircuitBreaker   ReasonCode = "circuit_breaker"
	ReasonMissingStopLoss  ReasonCode = "missing_stop_loss"
	ReasonPositionLimit    ReasonCode = "position_limit"
	ReasonSizeBelowMinimum ReasonCode = "size_below_minimum"
	ReasonInvalidOrder     ReasonCode = "invalid_order"
	ReasonOrderExpired     ReasonCode = "order_expired"
	ReasonOrderReplaced    ReasonCode = "order_replaced"
	ReasonPositionClosed   ReasonCode = "position_closed"
)
