// Package config provides configuration management for the trading engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	apperrors "okx-perp-trader/internal/errors"
)

// Config holds all application configuration. It is loaded once at
// startup and treated as immutable afterwards.
type Config struct {
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Log      LogConfig      `mapstructure:"log"`
}

// ExchangeConfig holds OKX connection settings.
type ExchangeConfig struct {
	RESTURL    string `mapstructure:"rest_url"`
	WSURL      string `mapstructure:"ws_url"`
	APIKey     string `mapstructure:"api_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Passphrase string `mapstructure:"passphrase"`
	Simulated  bool   `mapstructure:"simulated"`
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Symbols        []string      `mapstructure:"symbols"` // OKX instIds, e.g. BTC-USDT-SWAP
	Paper          bool          `mapstructure:"paper"`
	Leverage       int           `mapstructure:"leverage"`
	MarginMode     string        `mapstructure:"margin_mode"` // cross, isolated
	CandleInterval time.Duration `mapstructure:"candle_interval"`
	EvalInterval   time.Duration `mapstructure:"eval_interval"`
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
	InitialBalance float64       `mapstructure:"initial_balance"` // paper/backtest only
}

// RiskConfig holds risk management configuration.
type RiskConfig struct {
	BaseSize             float64       `mapstructure:"base_size"`
	MaxPositionSize      float64       `mapstructure:"max_position_size"`
	MaxLeverage          int           `mapstructure:"max_leverage"`
	MaxDailyLoss         float64       `mapstructure:"max_daily_loss"` // quote currency
	MaxDrawdown          float64       `mapstructure:"max_drawdown"`   // fraction of peak equity
	MaxConsecutiveLosses int           `mapstructure:"max_consecutive_losses"`
	CooldownDuration     time.Duration `mapstructure:"cooldown_duration"`
	MaxHourlyTrades      int           `mapstructure:"max_hourly_trades"`
	MaxPositions         int           `mapstructure:"max_positions"`
	WinRateThreshold     float64       `mapstructure:"win_rate_threshold"`
	ScalingFactor        float64       `mapstructure:"scaling_factor"` // size multiplier under poor win rate
}

// StrategyConfig holds strategy selection and tuning parameters. Name
// selects the variant; the remaining fields are tuning parameters, not
// architectural constants.
type StrategyConfig struct {
	Name        string  `mapstructure:"name"` // weighted, trend, grid, directional
	MinStrength float64 `mapstructure:"min_strength"`

	StopLoss         float64 `mapstructure:"stop_loss"`
	TakeProfit       float64 `mapstructure:"take_profit"`
	TrailingStop     bool    `mapstructure:"trailing_stop"`
	TrailingDistance float64 `mapstructure:"trailing_distance"`

	// Indicator periods (weighted / trend / directional variants)
	MACDFast   int     `mapstructure:"macd_fast"`
	MACDSlow   int     `mapstructure:"macd_slow"`
	MACDSignal int     `mapstructure:"macd_signal"`
	KDJPeriod  int     `mapstructure:"kdj_period"`
	KDJSmoothK int     `mapstructure:"kdj_smooth_k"`
	KDJSmoothD int     `mapstructure:"kdj_smooth_d"`
	RSIPeriod  int     `mapstructure:"rsi_period"`
	BBPeriod   int     `mapstructure:"bb_period"`
	BBStdDev   float64 `mapstructure:"bb_std_dev"`
	MAShort    int     `mapstructure:"ma_short"`
	MALong     int     `mapstructure:"ma_long"`
	Lookback   int     `mapstructure:"lookback"`

	// Per-indicator score weights (weighted variant); empty means defaults.
	Weights map[string]float64 `mapstructure:"weights"`

	// Grid variant price range
	GridUpper float64 `mapstructure:"grid_upper"`
	GridLower float64 `mapstructure:"grid_lower"`
	GridCount int     `mapstructure:"grid_count"`
}

// GatewayConfig holds order gateway behavior settings.
type GatewayConfig struct {
	RateLimit    float64       `mapstructure:"rate_limit"` // requests per second
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	RetryMaxWait time.Duration `mapstructure:"retry_max_wait"`

	// Circuit breaker on the REST transport
	BreakerMaxFailures int           `mapstructure:"breaker_max_failures"`
	BreakerProbes      int           `mapstructure:"breaker_probes"`
	BreakerCooloff     time.Duration `mapstructure:"breaker_cooloff"`
}

// JournalConfig holds trade journal settings.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/okx-perp-trader"
	}
	return filepath.Join(home, ".config", "okx-perp-trader")
}

// Load loads configuration from the specified directory. If configDir is
// empty, uses the default config directory. Validation failures are
// fatal: the process must not proceed to trading on a bad config.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, apperrors.Wrap(err, "reading config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.Wrap(err, "unmarshaling config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("exchange.rest_url", "https://www.okx.com")
	v.SetDefault("exchange.ws_url", "wss://ws.okx.com:8443/ws/v5/public")
	v.SetDefault("exchange.simulated", true)

	v.SetDefault("trading.symbols", []string{"BTC-USDT-SWAP"})
	v.SetDefault("trading.paper", true)
	v.SetDefault("trading.leverage", 5)
	v.SetDefault("trading.margin_mode", "cross")
	v.SetDefault("trading.candle_interval", "1m")
	v.SetDefault("trading.eval_interval", "30s")
	v.SetDefault("trading.submit_timeout", "10s")
	v.SetDefault("trading.initial_balance", 10000.0)

	v.SetDefault("risk.base_size", 0.1)
	v.SetDefault("risk.max_position_size", 1.0)
	v.SetDefault("risk.max_leverage", 10)
	v.SetDefault("risk.max_daily_loss", 500.0)
	v.SetDefault("risk.max_drawdown", 0.20)
	v.SetDefault("risk.max_consecutive_losses", 5)
	v.SetDefault("risk.cooldown_duration", "1h")
	v.SetDefault("risk.max_hourly_trades", 10)
	v.SetDefault("risk.max_positions", 3)
	v.SetDefault("risk.win_rate_threshold", 0.5)
	v.SetDefault("risk.scaling_factor", 0.5)

	v.SetDefault("strategy.name", "weighted")
	v.SetDefault("strategy.min_strength", 70.0)
	v.SetDefault("strategy.stop_loss", 0.02)
	v.SetDefault("strategy.take_profit", 0.04)
	v.SetDefault("strategy.trailing_stop", true)
	v.SetDefault("strategy.trailing_distance", 0.015)
	v.SetDefault("strategy.macd_fast", 12)
	v.SetDefault("strategy.macd_slow", 26)
	v.SetDefault("strategy.macd_signal", 9)
	v.SetDefault("strategy.kdj_period", 9)
	v.SetDefault("strategy.kdj_smooth_k", 3)
	v.SetDefault("strategy.kdj_smooth_d", 3)
	v.SetDefault("strategy.rsi_period", 14)
	v.SetDefault("strategy.bb_period", 20)
	v.SetDefault("strategy.bb_std_dev", 2.0)
	v.SetDefault("strategy.ma_short", 5)
	v.SetDefault("strategy.ma_long", 20)
	v.SetDefault("strategy.lookback", 10)

	v.SetDefault("gateway.rate_limit", 10.0)
	v.SetDefault("gateway.max_retries", 3)
	v.SetDefault("gateway.retry_delay", "200ms")
	v.SetDefault("gateway.retry_max_wait", "5s")
	v.SetDefault("gateway.breaker_max_failures", 5)
	v.SetDefault("gateway.breaker_probes", 2)
	v.SetDefault("gateway.breaker_cooloff", "30s")

	v.SetDefault("journal.path", filepath.Join(DefaultConfigDir(), "trader.db"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", false)
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return apperrors.NewValidationError("trading.symbols", c.Trading.Symbols, "at least one symbol is required")
	}
	if c.Trading.Leverage <= 0 {
		return apperrors.NewValidationError("trading.leverage", c.Trading.Leverage, "must be positive")
	}
	if c.Trading.Leverage > c.Risk.MaxLeverage {
		return apperrors.NewValidationError("trading.leverage", c.Trading.Leverage,
			fmt.Sprintf("exceeds risk.max_leverage %d", c.Risk.MaxLeverage))
	}
	if c.Trading.MarginMode != marginCross && c.Trading.MarginMode != marginIsolated {
		return apperrors.NewValidationError("trading.margin_mode", c.Trading.MarginMode, "must be cross or isolated")
	}
	if c.Risk.BaseSize <= 0 {
		return apperrors.NewValidationError("risk.base_size", c.Risk.BaseSize, "must be positive")
	}
	if c.Risk.MaxPositionSize <= 0 {
		return apperrors.NewValidationError("risk.max_position_size", c.Risk.MaxPositionSize, "must be positive")
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown >= 1 {
		return apperrors.NewValidationError("risk.max_drawdown", c.Risk.MaxDrawdown, "must be in (0, 1)")
	}
	if c.Risk.MaxConsecutiveLosses <= 0 {
		return apperrors.NewValidationError("risk.max_consecutive_losses", c.Risk.MaxConsecutiveLosses, "must be positive")
	}
	if c.Risk.MaxPositions <= 0 {
		return apperrors.NewValidationError("risk.max_positions", c.Risk.MaxPositions, "must be positive")
	}
	if c.Strategy.Name == "" {
		return apperrors.NewValidationError("strategy.name", c.Strategy.Name, "strategy variant is required")
	}
	if c.Strategy.StopLoss <= 0 || c.Strategy.StopLoss >= 1 {
		return apperrors.NewValidationError("strategy.stop_loss", c.Strategy.StopLoss, "must be in (0, 1)")
	}
	if c.Strategy.TakeProfit <= 0 || c.Strategy.TakeProfit >= 1 {
		return apperrors.NewValidationError("strategy.take_profit", c.Strategy.TakeProfit, "must be in (0, 1)")
	}
	if c.Strategy.TrailingStop && (c.Strategy.TrailingDistance <= 0 || c.Strategy.TrailingDistance >= 1) {
		return apperrors.NewValidationError("strategy.trailing_distance", c.Strategy.TrailingDistance, "must be in (0, 1)")
	}
	if c.Gateway.RateLimit <= 0 {
		return apperrors.NewValidationError("gateway.rate_limit", c.Gateway.RateLimit, "must be positive")
	}
	if c.Gateway.MaxRetries < 1 {
		return apperrors.NewValidationError("gateway.max_retries", c.Gateway.MaxRetries, "must be at least 1")
	}
	if c.Gateway.BreakerMaxFailures < 1 {
		return apperrors.NewValidationError("gateway.breaker_max_failures", c.Gateway.BreakerMaxFailures, "must be at least 1")
	}
	if c.Gateway.BreakerProbes < 1 {
		return apperrors.NewValidationError("gateway.breaker_probes", c.Gateway.BreakerProbes, "must be at least 1")
	}
	if c.Gateway.BreakerCooloff <= 0 {
		return apperrors.NewValidationError("gateway.breaker_cooloff", c.Gateway.BreakerCooloff, "must be positive")
	}
	return nil
}

const (
	marginCross    = "cross"
	marginIsolated = "isolated"
)
