package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"okx-perp-trader/internal/engine"
	"okx-perp-trader/internal/feed"
	"okx-perp-trader/internal/gateway"
	"okx-perp-trader/internal/journal"
	"okx-perp-trader/internal/models"
	"okx-perp-trader/internal/risk"
	"okx-perp-trader/internal/strategy"
)

func newLiveCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Run the trading engine against live market data",
		Long: `Connects to the OKX websocket feed and trades the configured symbols.
With trading.paper enabled (the default), orders fill against an in-memory
simulator at live prices; otherwise they go to the exchange.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLive(app)
		},
	}
	return cmd
}

func runLive(app *App) error {
	cfg := app.Config
	logger := app.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jrnl, err := journal.Open(cfg.Journal.Path, logger)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		return err
	}
	rm := risk.NewManager(cfg.Risk, logger)

	var paper *gateway.PaperGateway
	var gw gateway.Gateway
	if cfg.Trading.Paper {
		paper = gateway.NewPaper(cfg.Trading.InitialBalance, logger)
		gw = paper
		logger.Info().Float64("balance", cfg.Trading.InitialBalance).Msg("Paper trading mode")
	} else {
		gw = gateway.NewOKX(cfg.Exchange, cfg.Gateway, logger)
	}
	gw = gateway.NewRetrying(gw, cfg.Gateway, logger)

	mode := models.MarginMode(cfg.Trading.MarginMode)
	for _, sym := range cfg.Trading.Symbols {
		if err := gw.SetLeverage(ctx, sym, cfg.Trading.Leverage, mode); err != nil {
			logger.Warn().Err(err).Str("symbol", sym).Msg("Setting leverage failed")
		}
	}

	engines := make(map[string]*engine.Engine, len(cfg.Trading.Symbols))
	var wg sync.WaitGroup
	for _, sym := range cfg.Trading.Symbols {
		eng := engine.New(sym, cfg, strat, rm, gw, jrnl, logger)
		engines[sym] = eng

		// Preload candle history so indicators have context from the
		// first evaluation instead of warming up for half an hour of
		// live candles. A failed preload is not fatal.
		candles, err := feed.FetchHistory(ctx, cfg.Exchange.RESTURL, sym, cfg.Trading.CandleInterval, 0)
		if err != nil {
			logger.Warn().Err(err).Str("symbol", sym).Msg("Candle history preload failed")
		} else {
			eng.Seed(candles)
			logger.Info().Str("symbol", sym).Int("candles", len(candles)).Msg("Seeded candle history")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			eng.Run(ctx)
		}()
	}

	f := feed.NewOKX(cfg.Exchange.WSURL, logger)
	if err := f.Subscribe(ctx, cfg.Trading.Symbols); err != nil {
		stop()
		wg.Wait()
		return err
	}

	logger.Info().Strs("symbols", cfg.Trading.Symbols).Msg("Trading started")
	dispatch(ctx, f, engines, paper)

	// Ordered shutdown: engines drain first, then the feed and journal
	// close behind them.
	stop()
	wg.Wait()
	f.Close()
	logger.Info().Msg("Trading stopped")
	return nil
}

// dispatch routes feed ticks to the owning engine and broadcasts health
// events to every engine. In paper mode it also drives the simulator's
// mark prices. Returns when the context ends or the feed closes.
func dispatch(ctx context.Context, f feed.Feed, engines map[string]*engine.Engine, paper *gateway.PaperGateway) {
	for {
		select {
		case <-ctx.Done():
			return

		case t, ok := <-f.Ticks():
			if !ok {
				return
			}
			if paper != nil {
				paper.SetMarkPrice(t.Symbol, t.Price)
			}
			if eng, ok := engines[t.Symbol]; ok {
				select {
				case eng.TickIn() <- t:
				default:
					// Engine busy; the next tick supersedes this one.
				}
			}

		case ev, ok := <-f.Events():
			if !ok {
				return
			}
			for _, eng := range engines {
				select {
				case eng.HealthIn() <- ev:
				default:
				}
			}
		}
	}
}
