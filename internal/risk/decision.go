package risk

import "backtestCore/internal/domain"

// Decision is the outcome of one risk evaluation. Its fields are unexported so
// only this package can produce an approving decision; execution entry points
// accept a Decision rather than a raw Order.
type Decision struct {
	id        int64
	outcome   domain.DecisionOutcome
	reason    domain.ReasonCode
	order     domain.Order
	requested domain.Units
}

// ID returns the sequence number of the decision within its engine.
func (d Decision) ID() int64 { return d.id }

// Outcome returns approved, rejected or resized. The zero Decision reports rejected.
func (d Decision) Outcome() domain.DecisionOutcome {
	if d.outcome == "" {
		return domain.Rejected
	}
	return d.outcome
}

// Reason returns the reason code of the decision.
func (d Decision) Reason() domain.ReasonCode { return d.reason }

// Order returns the resulting order, possibly with a reduced size.
func (d Decision) Order() domain.Order { return d.order }

// RequestedSize returns the size the strategy asked for.
func (d Decision) RequestedSize() domain.Units { return d.requested }

// Allows reports whether the decision lets the order reach a broker.
func (d Decision) Allows() bool {
	return d.id > 0 && (d.outcome == domain.Approved || d.outcome == domain.Resized)
}

// Record returns the loggable form of the decision.
func (d Decision) Record() domain.DecisionRecord {
	approved := domain.Units(0)
	if d.Allows() {
		approved = d.order.Size
	}
	return domain.DecisionRecord{
		ID:            d.id,
		Time:          d.order.Time,
		Symbol:        d.order.Symbol,
		Side:          d.order.Side,
		Outcome:       d.Outcome(),
		Reason:        d.reason,
		RequestedSize: d.requested,
		ApprovedSize:  approved,
	}
}
