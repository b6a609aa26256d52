package strategy

import (
	"okx-perp-trader/internal/config"
	"okx-perp-trader/internal/errors"
	"okx-perp-trader/internal/models"
)

// Grid trades a configured price range without directional prediction:
// the deeper price sits below the range midpoint the stronger the long
// signal, and symmetrically for shorts near the top. Prices outside the
// range are a breakout, not an oscillation, so the strategy goes flat
// rather than fading them.
type Grid struct {
	upper float64
	lower float64
	count int
}

// NewGrid creates the range-bound grid strategy. The price range is
// required configuration.
func NewGrid(cfg config.StrategyConfig) (*Grid, error) {
	if cfg.GridUpper <= cfg.GridLower || cfg.GridLower <= 0 {
		return nil, errors.NewValidationError("strategy.grid_upper/grid_lower",
			[2]float64{cfg.GridLower, cfg.GridUpper}, "grid range must satisfy 0 < lower < upper")
	}
	count := cfg.GridCount
	if count <= 0 {
		count = 10
	}
	return &Grid{upper: cfg.GridUpper, lower: cfg.GridLower, count: count}, nil
}

func (s *Grid) Name() string { return "grid" }

func (s *Grid) Evaluate(w models.Window) models.Signal {
	price := w.LastPrice
	if price == 0 && len(w.Candles) > 0 {
		price = w.Candles[len(w.Candles)-1].Close
	}
	if price < s.lower || price > s.upper {
		return flat()
	}

	// Position of price within the range, 0 at the lower bound.
	t := (price - s.lower) / (s.upper - s.lower)
	depth := (0.5 - t) * 2 // +1 at the bottom, -1 at the top
	strength := clamp(abs(depth)*100, 0, 100)
	scores := map[string]float64{"range_position": t, "grid_levels": float64(s.count)}

	switch {
	case depth > 0:
		return models.Signal{Direction: models.Long, Strength: strength, Scores: scores}
	case depth < 0:
		return models.Signal{Direction: models.Short, Strength: strength, Scores: scores}
	default:
		return flat()
	}
}
