package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "okx-perp-trader/internal/errors"
	"okx-perp-trader/internal/models"
)

// PaperGateway simulates order execution in memory for backtesting and
// paper trading. Market orders fill instantly at the current mark price.
// It keeps the same idempotency contract as the live gateway: a ClientID
// that has already produced an outcome returns that outcome again
// instead of a second fill.
type PaperGateway struct {
	mu        sync.Mutex
	balance   models.Balance
	positions map[string]models.Position
	marks     map[string]float64
	fills     map[string]*Result

	// failNext injects transient errors on the next n submissions.
	// Test hook; zero in normal operation.
	failNext int

	logger zerolog.Logger
}

// NewPaper creates a paper gateway with the given starting balance.
func NewPaper(initialBalance float64, logger zerolog.Logger) *PaperGateway {
	return &PaperGateway{
		balance:   models.Balance{Equity: initialBalance, Available: initialBalance},
		positions: make(map[string]models.Position),
		marks:     make(map[string]float64),
		fills:     make(map[string]*Result),
		logger:    logger.With().Str("component", "paper_gateway").Logger(),
	}
}

// SetMarkPrice updates the simulated mark price used to fill market
// orders for symbol.
func (g *PaperGateway) SetMarkPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.marks[symbol] = price
}

// FailNext makes the next n submissions return a retryable error before
// any fill is recorded.
func (g *PaperGateway) FailNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
}

// Submit fills the order at the current mark price. Duplicate ClientIDs
// return the original result.
func (g *PaperGateway) Submit(ctx context.Context, order *models.Order) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.fills[order.ClientID]; ok {
		order.Transition(prev.Status)
		return prev, nil
	}

	order.Transition(models.OrderSubmitted)

	if g.failNext > 0 {
		g.failNext--
		return nil, apperrors.NewGatewayError("SIM_TIMEOUT", "simulated transient failure", true,
			apperrors.ErrTimeout)
	}

	price := order.Price
	if order.Type == models.OrderTypeMarket {
		price = g.marks[order.Symbol]
	}
	if price <= 0 {
		res := &Result{Status: models.OrderRejected, Message: "no mark price for symbol"}
		g.fills[order.ClientID] = res
		order.Transition(models.OrderRejected)
		return res, nil
	}
	if order.Size <= 0 {
		res := &Result{Status: models.OrderRejected, Message: "size must be positive"}
		g.fills[order.ClientID] = res
		order.Transition(models.OrderRejected)
		return res, nil
	}

	g.applyFillLocked(order, price)

	res := &Result{
		OrderID: "paper-" + order.ClientID,
		Status:  models.OrderFilled,
		Price:   price,
	}
	g.fills[order.ClientID] = res
	order.Transition(models.OrderFilled)

	g.logger.Debug().
		Str("client_id", order.ClientID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Float64("size", order.Size).
		Float64("price", price).
		Msg("Paper fill")
	return res, nil
}

// applyFillLocked adjusts positions and equity for a fill. An order on
// the opposite side of an open position closes (or reduces) it and
// realizes PnL; otherwise it opens or adds to a position.
func (g *PaperGateway) applyFillLocked(order *models.Order, price float64) {
	pos, open := g.positions[order.Symbol]
	if open && order.Side == pos.ClosingSide() {
		closed := order.Size
		if closed > pos.Size {
			closed = pos.Size
		}
		realized := models.Position{Side: pos.Side, EntryPrice: pos.EntryPrice, Size: closed}.PnL(price)
		g.balance.Equity += realized
		g.balance.Available += realized

		pos.Size -= closed
		if pos.Size <= 0 {
			delete(g.positions, order.Symbol)
		} else {
			g.positions[order.Symbol] = pos
		}
		return
	}

	side := models.Long
	if order.Side == models.OrderSideSell {
		side = models.Short
	}
	if !open {
		g.positions[order.Symbol] = models.Position{
			Symbol:     order.Symbol,
			Side:       side,
			Size:       order.Size,
			EntryPrice: price,
			OpenedAt:   time.Now(),
		}
		return
	}
	// Same-side add: average the entry.
	total := pos.Size + order.Size
	pos.EntryPrice = (pos.EntryPrice*pos.Size + price*order.Size) / total
	pos.Size = total
	g.positions[order.Symbol] = pos
}

// Cancel is a no-op for orders that already filled; unknown ids are an
// error.
func (g *PaperGateway) Cancel(ctx context.Context, symbol, clientID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.fills[clientID]; !ok {
		return apperrors.ErrPositionNotFound
	}
	return nil
}

// Positions returns all simulated open positions.
func (g *PaperGateway) Positions(ctx context.Context) ([]models.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.Position, 0, len(g.positions))
	for _, p := range g.positions {
		out = append(out, p)
	}
	return out, nil
}

// Balance returns the simulated account balance. Equity includes
// unrealized PnL at current marks.
func (g *PaperGateway) Balance(ctx context.Context) (models.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	equity := g.balance.Equity
	for sym, pos := range g.positions {
		if mark, ok := g.marks[sym]; ok {
			equity += pos.PnL(mark)
		}
	}
	return models.Balance{Equity: equity, Available: g.balance.Available}, nil
}

// SetLeverage is accepted and ignored by the simulator.
func (g *PaperGateway) SetLeverage(ctx context.Context, symbol string, leverage int, mode models.MarginMode) error {
	if leverage <= 0 {
		return apperrors.ErrInvalidLeverage
	}
	return nil
}
