// Package cli provides the command-line interface for the trading
// application.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"okx-perp-trader/internal/config"
	"okx-perp-trader/internal/logging"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies shared by all commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "okx-perp-trader - risk-gated OKX perpetual futures trading engine",
		Long: `okx-perp-trader runs signal-driven strategies against OKX perpetual
swaps with a shared risk state machine gating every entry.

Modes:
  live      trade against the exchange (paper or real orders)
  backtest  replay historical candles through the full pipeline
  test      check configuration and exchange connectivity`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			app.Config = cfg

			logCfg := logging.LogConfig{
				Level:    cfg.Log.Level,
				Console:  cfg.Log.Console,
				File:     cfg.Log.File,
				FilePath: cfg.Log.FilePath,
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logCfg.Level = "debug"
			}
			app.Logger = logging.NewLoggerWithConfig(logCfg)
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/okx-perp-trader)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newLiveCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newTestCmd(app))
	rootCmd.AddCommand(newJournalCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("okx-perp-trader " + Version)
		},
	}
}
