package strategy

import (
	"okx-perp-trader/internal/config"
	"okx-perp-trader/internal/models"
)

// Directional is the simplest variant: momentum sign over a lookback of
// candles, with strength proportional to the magnitude of the move.
type Directional struct {
	lookback int
}

// NewDirectional creates the simple directional strategy.
func NewDirectional(cfg config.StrategyConfig) *Directional {
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = 10
	}
	return &Directional{lookback: lookback}
}

func (s *Directional) Name() string { return "directional" }

func (s *Directional) Evaluate(w models.Window) models.Signal {
	closes := w.Closes()
	if len(closes) < s.lookback+1 {
		return flat()
	}

	first := closes[len(closes)-1-s.lookback]
	last := closes[len(closes)-1]
	if first == 0 {
		return flat()
	}

	ret := (last - first) / first
	// A 5% move over the lookback saturates the score.
	strength := clamp(abs(ret)*2000, 0, 100)
	scores := map[string]float64{"momentum": ret}

	switch {
	case ret > 0:
		return models.Signal{Direction: models.Long, Strength: strength, Scores: scores}
	case ret < 0:
		return models.Signal{Direction: models.Short, Strength: strength, Scores: scores}
	default:
		return flat()
	}
}
