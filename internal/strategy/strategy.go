// Package strategy provides signal-scoring strategies. A strategy is a
// pure evaluator: the same window always yields the same signal, which
// keeps the execution path deterministic and testable.
package strategy

import (
	"fmt"

	"okx-perp-trader/internal/config"
	"okx-perp-trader/internal/models"
)

// Strategy maps a market-data window to a directional signal with a
// strength score in [0, 100]. Implementations must be stateless.
type Strategy interface {
	Name() string
	Evaluate(w models.Window) models.Signal
}

// New constructs the strategy variant selected by configuration.
// Variants are a capability set behind one contract, not a type
// hierarchy: the engine never knows which variant it is running.
func New(cfg config.StrategyConfig) (Strategy, error) {
	switch cfg.Name {
	case "weighted":
		return NewWeighted(cfg), nil
	case "trend":
		return NewTrend(cfg), nil
	case "grid":
		return NewGrid(cfg)
	case "directional":
		return NewDirectional(cfg), nil
	default:
		return nil, fmt.Errorf("unknown strategy variant %q", cfg.Name)
	}
}

func flat() models.Signal {
	return models.Signal{Direction: models.Flat}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
