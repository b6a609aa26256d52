// Package feed provides market data sources: a reconnecting OKX
// websocket feed for live trading and a CSV replay feed for backtests.
// Both deliver ticks and connection-health events over channels; the
// consumer owns pacing and must drain both.
package feed

import (
	"context"

	"okx-perp-trader/internal/models"
)

// EventKind marks a connection-health transition.
type EventKind string

const (
	EventConnected    EventKind = "CONNECTED"
	EventDisconnected EventKind = "DISCONNECTED"
)

// Event notifies consumers of feed health so they can suspend entries
// while data is stale.
type Event struct {
	Kind   EventKind
	Reason string
}

// Feed is a source of market ticks. Subscribe starts delivery for the
// given symbols; Ticks and Events are closed when the feed shuts down.
type Feed interface {
	Subscribe(ctx context.Context, symbols []string) error
	Ticks() <-chan models.Tick
	Events() <-chan Event
	Close() error
}
