package domain

import (
	"time"

	"github.com/moznion/go-optional"
)

// Order is a strategy's request to change a position.
type Order struct {
	Symbol     string
	Side       OrderSide
	Kind       OrderKind
	Size       Units                  // Requested size; 0 asks the engine to size from the risk budget
	Price      Price                  // Limit/stop trigger, or the expected fill for market orders
	StopLoss   optional.Option[Price] // Protective stop for the resulting position
	TakeProfit optional.Option[Price] // Profit target for the resulting position
	Time       time.Time              // Time the order was issued
	Note       string                 // Free-form strategy annotation
}

// DecisionRecord is the immutable log entry for one risk evaluation.
type DecisionRecord struct {
	ID            int64
	Time          time.Time
	Symbol        string
	Side          OrderSide
	Outcome       DecisionOutcome
	Reason        ReasonCode
	RequestedSize Units
	ApprovedSize  Units
}

// Fill is an execution produced by the simulated broker.
type Fill struct {
	ID         string
	DecisionID int64 // Decision that authorized the position change
	Time       time.Time
	Symbol     string
	Side       OrderSide
	Size       Units
	Price      Price
	Fee        Cents
}

// DroppedOrder is an approved order that left the book without filling.
type DroppedOrder struct {
	DecisionID int64
	Time       time.Time
	Symbol     string
	Reason     ReasonCode
}
