package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"okx-perp-trader/internal/feed"
	"okx-perp-trader/internal/gateway"
	"okx-perp-trader/internal/strategy"
)

func newTestCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check configuration and exchange connectivity",
		Long: `Validates the loaded configuration, constructs the configured strategy,
connects to the OKX websocket feed, and (when API credentials are set)
fetches the account balance. No orders are placed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(app)
		},
	}
}

func runTest(app *App) error {
	cfg := app.Config
	logger := app.Logger

	fmt.Println("Configuration     OK")

	if _, err := strategy.New(cfg.Strategy); err != nil {
		return err
	}
	fmt.Printf("Strategy          OK (%s)\n", cfg.Strategy.Name)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	f := feed.NewOKX(cfg.Exchange.WSURL, logger)
	if err := f.Subscribe(ctx, cfg.Trading.Symbols); err != nil {
		return err
	}
	defer f.Close()

	select {
	case ev := <-f.Events():
		if ev.Kind != feed.EventConnected {
			return fmt.Errorf("feed failed to connect: %s", ev.Reason)
		}
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for feed connection")
	}

	select {
	case t := <-f.Ticks():
		fmt.Printf("Market data       OK (%s @ %.2f)\n", t.Symbol, t.Price)
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for first tick")
	}

	if cfg.Exchange.APIKey == "" {
		fmt.Println("Account           SKIPPED (no API credentials)")
		return nil
	}

	gw := gateway.NewOKX(cfg.Exchange, cfg.Gateway, logger)
	bal, err := gw.Balance(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Account           OK (equity %.2f)\n", bal.Equity)
	return nil
}
