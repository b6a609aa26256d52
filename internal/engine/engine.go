// Package engine runs the per-symbol trading loop: it folds feed ticks
// into candle windows, evaluates the strategy, gates entries through the
// shared risk manager, and manages the open position's exits. One Engine
// goroutine per symbol; all engines share one risk manager and one
// gateway.
package engine

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"okx-perp-trader/internal/config"
	"okx-perp-trader/internal/feed"
	"okx-perp-trader/internal/gateway"
	"okx-perp-trader/internal/journal"
	"okx-perp-trader/internal/logging"
	"okx-perp-trader/internal/models"
	"okx-perp-trader/internal/risk"
	"okx-perp-trader/internal/strategy"
)

// Engine trades a single symbol.
type Engine struct {
	symbol string
	cfg    *config.Config
	strat  strategy.Strategy
	risk   *risk.Manager
	gw     gateway.Gateway
	jrnl   *journal.Journal

	builder *feed.Builder
	tracker *Tracker
	logger  zerolog.Logger

	ticks  chan models.Tick
	health chan feed.Event

	connected   atomic.Bool
	seenCandles int
}

// New creates an engine for symbol. jrnl may be nil (journaling off).
func New(symbol string, cfg *config.Config, strat strategy.Strategy, rm *risk.Manager,
	gw gateway.Gateway, jrnl *journal.Journal, logger zerolog.Logger) *Engine {
	return &Engine{
		symbol:  symbol,
		cfg:     cfg,
		strat:   strat,
		risk:    rm,
		gw:      gw,
		jrnl:    jrnl,
		builder: feed.NewBuilder(symbol, cfg.Trading.CandleInterval),
		tracker: NewTracker(cfg.Strategy.TrailingStop),
		logger:  logging.WithSymbol(logger, symbol),
		ticks:   make(chan models.Tick, 64),
		health:  make(chan feed.Event, 4),
	}
}

// TickIn is the channel the dispatcher routes this symbol's ticks into.
func (e *Engine) TickIn() chan<- models.Tick { return e.ticks }

// HealthIn receives feed connection events, broadcast to all engines.
func (e *Engine) HealthIn() chan<- feed.Event { return e.health }

// Tracker exposes the position tracker for status reporting.
func (e *Engine) Tracker() *Tracker { return e.tracker }

// Seed preloads historical candles so the strategy has context at start.
func (e *Engine) Seed(candles []models.Candle) {
	e.builder.Seed(candles)
}

// Run is the engine loop. It returns when ctx is cancelled, flattening
// any open position on the way out.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info().
		Str("strategy", e.strat.Name()).
		Dur("eval_interval", e.cfg.Trading.EvalInterval).
		Msg("Engine started")

	eval := time.NewTicker(e.cfg.Trading.EvalInterval)
	defer eval.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return

		case ev := <-e.health:
			e.onHealth(ev)

		case t, ok := <-e.ticks:
			if !ok {
				e.shutdown()
				return
			}
			e.onTick(ctx, t)

		case <-eval.C:
			e.evaluate(ctx)
		}
	}
}

func (e *Engine) onHealth(ev feed.Event) {
	switch ev.Kind {
	case feed.EventConnected:
		e.connected.Store(true)
		e.logger.Info().Msg("Feed healthy, entries enabled")
	case feed.EventDisconnected:
		e.connected.Store(false)
		e.logger.Warn().Str("reason", ev.Reason).Msg("Feed down, entries suspended")
	}
}

// onTick folds the tick into the window and checks exits. Exits run on
// every tick regardless of risk mode or feed health: getting out must
// never be gated.
func (e *Engine) onTick(ctx context.Context, t models.Tick) {
	e.builder.Add(t)

	if reason, fire := e.tracker.CheckExit(t.Price); fire {
		e.closePosition(ctx, reason)
	}

	// A fresh candle also triggers an evaluation, so replayed history
	// (which outruns the wall-clock ticker) still drives entries.
	if n := e.builder.Len(); n != e.seenCandles {
		e.seenCandles = n
		e.evaluate(ctx)
	}
}

// evaluate runs the strategy over the current window and attempts an
// entry (or a reversal exit) when a strong enough signal appears.
func (e *Engine) evaluate(ctx context.Context) {
	w := e.builder.Window()
	if len(w.Candles) == 0 {
		return
	}

	sig := e.strat.Evaluate(w)
	if sig.Direction == models.Flat {
		return
	}
	logging.LogSignal(e.logger, e.symbol, string(sig.Direction), sig.Strength)

	if pos, open := e.tracker.Get(); open {
		if sig.Direction != pos.Side && sig.Strength >= e.cfg.Strategy.MinStrength {
			e.closePosition(ctx, ExitReverse)
		}
		return
	}

	if sig.Strength < e.cfg.Strategy.MinStrength {
		return
	}
	if !e.connected.Load() {
		e.logger.Debug().Msg("Skipping entry: feed disconnected")
		return
	}

	decision := e.risk.CanOpenPosition(e.symbol, sig)
	if !decision.Allowed {
		e.logger.Info().
			Str("code", decision.Code).
			Str("reason", decision.Reason).
			Msg("Entry blocked by risk manager")
		if e.jrnl != nil {
			_ = e.jrnl.RecordRiskEvent(decision.Code, e.symbol+": "+decision.Reason)
		}
		return
	}

	e.openPosition(ctx, sig)
}

// openPosition runs with a risk reservation held: every path that does
// not end in MarkOpen must release it.
func (e *Engine) openPosition(ctx context.Context, sig models.Signal) {
	bal, err := e.gw.Balance(ctx)
	if err != nil {
		e.risk.Release(e.symbol)
		e.logger.Error().Err(err).Msg("Balance fetch failed, skipping entry")
		return
	}
	e.risk.UpdateEquity(bal.Equity)

	size := e.risk.SizePosition(sig, bal.Equity)
	if size <= 0 {
		e.risk.Release(e.symbol)
		return
	}

	side := models.OrderSideBuy
	if sig.Direction == models.Short {
		side = models.OrderSideSell
	}
	order := &models.Order{
		ClientID: newClientID(),
		Symbol:   e.symbol,
		Side:     side,
		Size:     size,
		Type:     models.OrderTypeMarket,
		Status:   models.OrderPending,
		Tag:      "entry",
		PlacedAt: time.Now(),
	}

	res, err := e.submit(ctx, order)
	if err != nil {
		e.risk.Release(e.symbol)
		e.logger.Error().Err(err).Str("client_id", order.ClientID).Msg("Entry order failed")
		return
	}
	if res.Status != models.OrderFilled {
		e.risk.Release(e.symbol)
		e.logger.Warn().
			Str("client_id", order.ClientID).
			Str("status", string(res.Status)).
			Str("message", res.Message).
			Msg("Entry order not filled")
		return
	}

	pos := models.Position{
		Symbol:           e.symbol,
		Side:             sig.Direction,
		Size:             size,
		EntryPrice:       res.Price,
		Leverage:         e.cfg.Trading.Leverage,
		StopLoss:         e.cfg.Strategy.StopLoss,
		TakeProfit:       e.cfg.Strategy.TakeProfit,
		TrailingDistance: e.cfg.Strategy.TrailingDistance,
		OpenedAt:         time.Now(),
	}
	e.tracker.Open(pos)
	e.risk.MarkOpen(e.symbol)

	logging.LogOrder(e.logger, order.ClientID, e.symbol, string(side), "filled")
	e.logger.Info().
		Str("side", string(sig.Direction)).
		Float64("size", size).
		Float64("entry", res.Price).
		Float64("strength", sig.Strength).
		Msg("Position opened")
}

func (e *Engine) closePosition(ctx context.Context, reason string) {
	pos, open := e.tracker.Get()
	if !open {
		return
	}

	order := &models.Order{
		ClientID: newClientID(),
		Symbol:   e.symbol,
		Side:     pos.ClosingSide(),
		Size:     pos.Size,
		Type:     models.OrderTypeMarket,
		Status:   models.OrderPending,
		Tag:      "exit_" + reason,
		PlacedAt: time.Now(),
	}

	res, err := e.submit(ctx, order)
	if err != nil {
		// Keep the position; the next tick retries the exit with a
		// fresh order.
		e.logger.Error().Err(err).Str("reason", reason).Msg("Exit order failed")
		return
	}
	if res.Status != models.OrderFilled {
		e.logger.Warn().
			Str("status", string(res.Status)).
			Str("reason", reason).
			Msg("Exit order not filled")
		return
	}

	pnl := pos.PnL(res.Price)
	e.tracker.Clear()
	e.risk.MarkClosed(e.symbol)

	before := e.risk.Mode()
	e.risk.RecordTradeResult(pnl)
	after := e.risk.Mode()
	if after != before {
		logging.LogRiskEvent(e.logger, string(after), "triggered by "+e.symbol+" close")
	}

	if e.jrnl != nil {
		_ = e.jrnl.RecordTrade(journal.Trade{
			Symbol:     e.symbol,
			Side:       pos.Side,
			Size:       pos.Size,
			EntryPrice: pos.EntryPrice,
			ExitPrice:  res.Price,
			PnL:        pnl,
			Reason:     reason,
			OpenedAt:   pos.OpenedAt,
			ClosedAt:   time.Now(),
		})
		if after != before {
			_ = e.jrnl.RecordRiskEvent(string(after), "triggered by "+e.symbol+" close")
		}
	}

	logging.LogTrade(e.logger, e.symbol, string(pos.Side), pos.Size, pos.EntryPrice, res.Price, pnl, reason)
}

// submit sends the order with the configured timeout. The ClientID stays
// fixed across the wrapped gateway's retries.
func (e *Engine) submit(ctx context.Context, order *models.Order) (*gateway.Result, error) {
	subCtx, cancel := context.WithTimeout(ctx, e.cfg.Trading.SubmitTimeout)
	defer cancel()
	return e.gw.Submit(subCtx, order)
}

// shutdown flattens any open position before the engine exits. The run
// context is already dead by now, so the closing order gets its own
// bounded context.
func (e *Engine) shutdown() {
	if pos, open := e.tracker.Get(); open {
		e.logger.Warn().
			Str("side", string(pos.Side)).
			Float64("size", pos.Size).
			Float64("entry", pos.EntryPrice).
			Msg("Closing open position on shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Trading.SubmitTimeout)
		e.closePosition(ctx, ExitShutdown)
		cancel()

		if _, still := e.tracker.Get(); still {
			e.logger.Error().Msg("Position still open after shutdown close attempt")
		}
	}
	e.logger.Info().Msg("Engine stopped")
}

// Status is a point-in-time view of the engine for the operator surface.
type Status struct {
	Symbol    string
	Strategy  string
	Connected bool
	Position  *models.Position
	LastPrice float64
}

// Status reports the engine's current state. Safe to call from other
// goroutines; the position is a copy.
func (e *Engine) Status() Status {
	st := Status{
		Symbol:    e.symbol,
		Strategy:  e.strat.Name(),
		Connected: e.connected.Load(),
		LastPrice: e.builder.Window().LastPrice,
	}
	if pos, open := e.tracker.Get(); open {
		st.Position = &pos
	}
	return st
}

// newClientID returns a fresh idempotency key. OKX clOrdIds must be
// alphanumeric, so the UUID's dashes are stripped.
func newClientID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
