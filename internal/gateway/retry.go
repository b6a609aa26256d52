package gateway

import (
	"context"

	"github.com/rs/zerolog"

	"okx-perp-trader/internal/config"
	apperrors "okx-perp-trader/internal/errors"
	"okx-perp-trader/internal/logging"
	"okx-perp-trader/internal/models"
	"okx-perp-trader/pkg/utils"
)

// RetryingGateway wraps another Gateway with retry-on-transient-failure
// semantics for submissions. Business rejections (insufficient margin,
// invalid parameters) pass through immediately: the exchange's answer is
// authoritative and retrying it would be wrong. Because the ClientID
// rides along unchanged on every attempt, a retry after an ambiguous
// timeout cannot double-fill.
type RetryingGateway struct {
	inner  Gateway
	policy utils.RetryConfig
	logger zerolog.Logger
}

// NewRetrying wraps inner with the retry policy derived from cfg.
func NewRetrying(inner Gateway, cfg config.GatewayConfig, logger zerolog.Logger) *RetryingGateway {
	policy := utils.RetryConfig{
		MaxAttempts:   cfg.MaxRetries,
		InitialDelay:  cfg.RetryDelay,
		MaxDelay:      cfg.RetryMaxWait,
		BackoffFactor: 2.0,
		Jitter:        0.2,
		RetryIf:       apperrors.IsRetryable,
	}
	return &RetryingGateway{
		inner:  inner,
		policy: policy,
		logger: logger.With().Str("component", "gateway").Logger(),
	}
}

// Submit submits the order through the wrapped gateway, retrying
// transient failures with exponential backoff. Attempts is incremented
// on the order for each try.
func (g *RetryingGateway) Submit(ctx context.Context, order *models.Order) (*Result, error) {
	log := logging.WithOrderID(g.logger, order.ClientID)
	res, err := utils.RetryWithResult(ctx, g.policy, func() (*Result, error) {
		order.Attempts++
		res, err := g.inner.Submit(ctx, order)
		if err != nil && apperrors.IsRetryable(err) {
			log.Warn().
				Str("symbol", order.Symbol).
				Int("attempt", order.Attempts).
				Err(err).
				Msg("Transient submit failure, will retry")
		}
		return res, err
	})
	if err != nil {
		return nil, apperrors.NewOrderError(order.ClientID, order.Symbol, "submit",
			"exhausted retries", err)
	}
	return res, nil
}

func (g *RetryingGateway) Cancel(ctx context.Context, symbol, clientID string) error {
	return utils.Retry(ctx, g.policy, func() error {
		return g.inner.Cancel(ctx, symbol, clientID)
	})
}

func (g *RetryingGateway) Positions(ctx context.Context) ([]models.Position, error) {
	return utils.RetryWithResult(ctx, g.policy, func() ([]models.Position, error) {
		return g.inner.Positions(ctx)
	})
}

func (g *RetryingGateway) Balance(ctx context.Context) (models.Balance, error) {
	return utils.RetryWithResult(ctx, g.policy, func() (models.Balance, error) {
		return g.inner.Balance(ctx)
	})
}

func (g *RetryingGateway) SetLeverage(ctx context.Context, symbol string, leverage int, mode models.MarginMode) error {
	return utils.Retry(ctx, g.policy, func() error {
		return g.inner.SetLeverage(ctx, symbol, leverage, mode)
	})
}
