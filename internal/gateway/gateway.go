// Package gateway provides order submission against OKX perpetual swaps,
// plus a paper implementation for backtests and dry runs. All
// implementations are idempotent on Order.ClientID: resubmitting an
// order with the same key never produces a second fill.
package gateway

import (
	"context"

	"okx-perp-trader/internal/models"
)

// Result is the authoritative outcome of a submission attempt.
type Result struct {
	OrderID string // exchange-assigned id
	Status  models.OrderStatus
	Price   float64 // fill price when Status is Filled
	Message string
}

// Gateway is the exchange-facing order interface. Submit mutates the
// order's Status and Attempts in place and returns the terminal outcome
// or an error; a returned error means the outcome is unknown and the
// caller may retry with the same ClientID.
type Gateway interface {
	Submit(ctx context.Context, order *models.Order) (*Result, error)
	Cancel(ctx context.Context, symbol, clientID string) error
	Positions(ctx context.Context) ([]models.Position, error)
	Balance(ctx context.Context) (models.Balance, error)
	SetLeverage(ctx context.Context, symbol string, leverage int, mode models.MarginMode) error
}
