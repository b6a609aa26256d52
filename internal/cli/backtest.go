package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"okx-perp-trader/internal/engine"
	"okx-perp-trader/internal/feed"
	"okx-perp-trader/internal/gateway"
	"okx-perp-trader/internal/journal"
	"okx-perp-trader/internal/risk"
	"okx-perp-trader/internal/strategy"
)

func newBacktestCmd(app *App) *cobra.Command {
	var dataPath string
	var symbol string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical candles through the full trading pipeline",
		Long: `Replays a CSV candle file (timestamp,open,high,low,close,volume) as a
tick stream through the same strategy, risk, and gateway path used live,
then prints a performance summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataPath == "" {
				return fmt.Errorf("--data is required")
			}
			return runBacktest(app, dataPath, symbol, dbPath)
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "", "path to CSV candle file")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol to trade (default: first configured symbol)")
	cmd.Flags().StringVar(&dbPath, "db", "", "journal database path (default: in-memory for backtests)")
	return cmd
}

func runBacktest(app *App, dataPath, symbol, dbPath string) error {
	cfg := app.Config
	logger := app.Logger

	if symbol == "" {
		symbol = cfg.Trading.Symbols[0]
	}
	if dbPath == "" {
		dbPath = ":memory:"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jrnl, err := journal.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		return err
	}
	rm := risk.NewManager(cfg.Risk, logger)
	paper := gateway.NewPaper(cfg.Trading.InitialBalance, logger)
	gw := gateway.NewRetrying(paper, cfg.Gateway, logger)

	eng := engine.New(symbol, cfg, strat, rm, gw, jrnl, logger)
	engines := map[string]*engine.Engine{symbol: eng}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx)
	}()

	f := feed.NewReplay(dataPath, symbol, logger)
	if err := f.Subscribe(ctx, nil); err != nil {
		cancel()
		wg.Wait()
		return err
	}

	dispatchBacktest(ctx, f, engines, paper)
	cancel()
	wg.Wait()

	return printSummary(app, jrnl, paper)
}

// dispatchBacktest routes replay ticks synchronously: every tick is
// delivered before the next one is read so results are deterministic.
func dispatchBacktest(ctx context.Context, f feed.Feed, engines map[string]*engine.Engine, paper *gateway.PaperGateway) {
	for {
		select {
		case <-ctx.Done():
			return

		case t, ok := <-f.Ticks():
			if !ok {
				return
			}
			paper.SetMarkPrice(t.Symbol, t.Price)
			if eng, ok := engines[t.Symbol]; ok {
				select {
				case eng.TickIn() <- t:
				case <-ctx.Done():
					return
				}
			}

		case ev, ok := <-f.Events():
			if !ok {
				return
			}
			for _, eng := range engines {
				select {
				case eng.HealthIn() <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func printSummary(app *App, jrnl *journal.Journal, paper *gateway.PaperGateway) error {
	stats, err := jrnl.Summary()
	if err != nil {
		return err
	}
	bal, err := paper.Balance(context.Background())
	if err != nil {
		return err
	}

	winRate := 0.0
	if stats.Trades > 0 {
		winRate = float64(stats.Wins) / float64(stats.Trades) * 100
	}

	trades, err := jrnl.RecentTrades(stats.Trades)
	if err != nil {
		return err
	}

	fmt.Println("Backtest summary")
	fmt.Printf("  trades:       %d\n", stats.Trades)
	fmt.Printf("  wins:         %d (%.1f%%)\n", stats.Wins, winRate)
	fmt.Printf("  realized pnl: %.2f\n", stats.TotalPnL)
	fmt.Printf("  max drawdown: %.1f%%\n", maxDrawdown(app.Config.Trading.InitialBalance, trades)*100)
	fmt.Printf("  final equity: %.2f (started %.2f)\n", bal.Equity, app.Config.Trading.InitialBalance)
	return nil
}

// maxDrawdown replays realized trade PnLs oldest first and returns the
// largest peak-to-trough equity decline as a fraction of the peak.
func maxDrawdown(initial float64, trades []journal.Trade) float64 {
	equity := initial
	peak := initial
	worst := 0.0
	for i := len(trades) - 1; i >= 0; i-- {
		equity += trades[i].PnL
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
