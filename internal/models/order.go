package models

import "time"

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus represents the lifecycle state of an order.
// Valid transitions: Pending -> Submitted -> {Filled, Rejected, Cancelled}.
// Filled and Rejected are terminal.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderSubmitted OrderStatus = "SUBMITTED"
	OrderFilled    OrderStatus = "FILLED"
	OrderRejected  OrderStatus = "REJECTED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderRejected
}

// CanTransition reports whether the order state machine permits moving
// from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderPending:
		return next == OrderSubmitted || next == OrderRejected || next == OrderCancelled
	case OrderSubmitted:
		return next == OrderFilled || next == OrderRejected || next == OrderCancelled
	default:
		return false
	}
}

// Order represents one logical order. ClientID is the caller-generated
// idempotency key; it is assigned exactly once and reused across every
// submission attempt so the exchange can deduplicate retries.
type Order struct {
	ClientID string
	Symbol   string
	Side     OrderSide
	Size     float64
	Type     OrderType
	Price    float64 // limit price; zero for market orders
	Status   OrderStatus
	Attempts int
	Tag      string // free-form reason, e.g. "entry" or "exit_trailing_stop"
	PlacedAt time.Time
}

// Transition moves the order to next when the state machine permits it
// and reports whether it did. Illegal moves, including any move out of
// a terminal state, leave the status unchanged.
func (o *Order) Transition(next OrderStatus) bool {
	if o.Status.Terminal() || !o.Status.CanTransition(next) {
		return false
	}
	o.Status = next
	return true
}
