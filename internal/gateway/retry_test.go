package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-perp-trader/internal/config"
	apperrors "okx-perp-trader/internal/errors"
	"okx-perp-trader/internal/models"
)

func fastGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		RateLimit:    100,
		MaxRetries:   3,
		RetryDelay:   time.Millisecond,
		RetryMaxWait: 5 * time.Millisecond,
	}
}

// flakyGateway fails with a configurable error a set number of times,
// then delegates to a paper gateway.
type flakyGateway struct {
	*PaperGateway
	failures int
	failWith error
	submits  int
}

func (g *flakyGateway) Submit(ctx context.Context, order *models.Order) (*Result, error) {
	g.submits++
	if g.failures > 0 {
		g.failures--
		return nil, g.failWith
	}
	return g.PaperGateway.Submit(ctx, order)
}

func marketOrder(clientID string) *models.Order {
	return &models.Order{
		ClientID: clientID,
		Symbol:   "BTC-USDT-SWAP",
		Side:     models.OrderSideBuy,
		Size:     0.1,
		Type:     models.OrderTypeMarket,
		Status:   models.OrderPending,
	}
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	paper := NewPaper(10000, zerolog.Nop())
	paper.SetMarkPrice("BTC-USDT-SWAP", 100)
	inner := &flakyGateway{
		PaperGateway: paper,
		failures:     2,
		failWith:     apperrors.NewGatewayError("TRANSPORT", "boom", true, apperrors.ErrConnectionFailed),
	}
	gw := NewRetrying(inner, fastGatewayConfig(), zerolog.Nop())

	order := marketOrder("abc123")
	res, err := gw.Submit(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, res.Status)
	assert.Equal(t, 3, inner.submits)
	assert.Equal(t, 3, order.Attempts)
	assert.Equal(t, models.OrderFilled, order.Status)

	positions, err := paper.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1, "retries must not multiply fills")
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	paper := NewPaper(10000, zerolog.Nop())
	inner := &flakyGateway{
		PaperGateway: paper,
		failures:     10,
		failWith:     apperrors.NewGatewayError("TRANSPORT", "boom", true, apperrors.ErrTimeout),
	}
	gw := NewRetrying(inner, fastGatewayConfig(), zerolog.Nop())

	_, err := gw.Submit(context.Background(), marketOrder("abc123"))
	require.Error(t, err)
	assert.Equal(t, 3, inner.submits)

	var oe *apperrors.OrderError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "abc123", oe.ClientID)
}

func TestBusinessRejectionIsNotRetried(t *testing.T) {
	paper := NewPaper(10000, zerolog.Nop())
	inner := &flakyGateway{
		PaperGateway: paper,
		failures:     10,
		failWith:     apperrors.NewGatewayError("51008", "insufficient margin", false, apperrors.ErrInsufficientMargin),
	}
	gw := NewRetrying(inner, fastGatewayConfig(), zerolog.Nop())

	_, err := gw.Submit(context.Background(), marketOrder("abc123"))
	require.Error(t, err)
	assert.Equal(t, 1, inner.submits, "authoritative rejections get exactly one attempt")
}

func TestPaperDuplicateClientIDReturnsOriginalFill(t *testing.T) {
	paper := NewPaper(10000, zerolog.Nop())
	paper.SetMarkPrice("BTC-USDT-SWAP", 100)

	first, err := paper.Submit(context.Background(), marketOrder("dup"))
	require.NoError(t, err)
	require.Equal(t, models.OrderFilled, first.Status)

	// Price moves, then the same key is submitted again.
	paper.SetMarkPrice("BTC-USDT-SWAP", 150)
	second, err := paper.Submit(context.Background(), marketOrder("dup"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	positions, err := paper.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 0.1, positions[0].Size, 1e-9, "duplicate key must not grow the position")
}

func TestPaperRejectsBadOrders(t *testing.T) {
	paper := NewPaper(10000, zerolog.Nop())

	// No mark price for the symbol.
	res, err := paper.Submit(context.Background(), marketOrder("nomark"))
	require.NoError(t, err)
	assert.Equal(t, models.OrderRejected, res.Status)

	paper.SetMarkPrice("BTC-USDT-SWAP", 100)
	order := marketOrder("zerosize")
	order.Size = 0
	res, err = paper.Submit(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, models.OrderRejected, res.Status)
}

func TestPaperRoundTripRealizesPnL(t *testing.T) {
	paper := NewPaper(10000, zerolog.Nop())
	paper.SetMarkPrice("BTC-USDT-SWAP", 100)

	_, err := paper.Submit(context.Background(), marketOrder("open1"))
	require.NoError(t, err)

	paper.SetMarkPrice("BTC-USDT-SWAP", 110)
	closeOrder := marketOrder("close1")
	closeOrder.Side = models.OrderSideSell
	_, err = paper.Submit(context.Background(), closeOrder)
	require.NoError(t, err)

	positions, err := paper.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)

	bal, err := paper.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10001, bal.Equity, 1e-9) // (110-100)*0.1 realized
}
