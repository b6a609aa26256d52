package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusCanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderPending, OrderSubmitted, true},
		{OrderPending, OrderRejected, true},
		{OrderPending, OrderFilled, false},
		{OrderSubmitted, OrderFilled, true},
		{OrderSubmitted, OrderRejected, true},
		{OrderSubmitted, OrderCancelled, true},
		{OrderSubmitted, OrderPending, false},
		{OrderFilled, OrderSubmitted, false},
		{OrderRejected, OrderFilled, false},
		{OrderCancelled, OrderFilled, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestOrderTransitionIgnoresIllegalMoves(t *testing.T) {
	o := &Order{Status: OrderPending}

	// Skipping Submitted is not a legal move.
	assert.False(t, o.Transition(OrderFilled))
	assert.Equal(t, OrderPending, o.Status)

	assert.True(t, o.Transition(OrderSubmitted))
	// Re-submitting is a no-op for the state machine.
	assert.False(t, o.Transition(OrderSubmitted))
	assert.True(t, o.Transition(OrderFilled))
	assert.True(t, o.Status.Terminal())

	// Nothing leaves a terminal state.
	assert.False(t, o.Transition(OrderCancelled))
	assert.Equal(t, OrderFilled, o.Status)
}
