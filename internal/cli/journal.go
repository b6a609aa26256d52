package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"okx-perp-trader/internal/journal"
)

func newJournalCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent trades from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			jrnl, err := journal.Open(app.Config.Journal.Path, app.Logger)
			if err != nil {
				return err
			}
			defer jrnl.Close()

			trades, err := jrnl.RecentTrades(limit)
			if err != nil {
				return err
			}
			if len(trades) == 0 {
				fmt.Println("No trades recorded.")
				return nil
			}

			fmt.Printf("%-20s %-16s %-6s %10s %12s %12s %10s %s\n",
				"CLOSED", "SYMBOL", "SIDE", "SIZE", "ENTRY", "EXIT", "PNL", "REASON")
			for _, t := range trades {
				fmt.Printf("%-20s %-16s %-6s %10.4f %12.2f %12.2f %+10.2f %s\n",
					t.ClosedAt.Local().Format("2006-01-02 15:04:05"),
					t.Symbol, t.Side, t.Size, t.EntryPrice, t.ExitPrice, t.PnL, t.Reason)
			}

			stats, err := jrnl.Summary()
			if err != nil {
				return err
			}
			if pnl, err := jrnl.DailyPnL(time.Now()); err == nil {
				fmt.Printf("\ntotal: %d trades, %d wins, pnl %.2f (today %.2f)\n",
					stats.Trades, stats.Wins, stats.TotalPnL, pnl)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of trades to show")
	return cmd
}
