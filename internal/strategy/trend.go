package strategy

import (
	"okx-perp-trader/internal/config"
	"okx-perp-trader/internal/models"
	"okx-perp-trader/internal/strategy/indicators"
)

// Trend follows moving-average crossovers: long when the short MA sits
// above the long MA, short when below. A fresh cross scores higher than
// a persistent one so entries cluster near the turn.
type Trend struct {
	cfg config.StrategyConfig
}

// NewTrend creates the trend-following strategy.
func NewTrend(cfg config.StrategyConfig) *Trend {
	return &Trend{cfg: cfg}
}

func (s *Trend) Name() string { return "trend" }

func (s *Trend) Evaluate(w models.Window) models.Signal {
	closes := w.Closes()
	if len(closes) < s.cfg.MALong+1 {
		return flat()
	}

	shortMA := indicators.SMA(closes, s.cfg.MAShort)
	longMA := indicators.SMA(closes, s.cfg.MALong)
	if shortMA == nil || longMA == nil {
		return flat()
	}

	n := len(closes)
	spread := shortMA[n-1] - longMA[n-1]
	prevSpread := shortMA[n-2] - longMA[n-2]
	if spread == 0 || longMA[n-1] == 0 {
		return flat()
	}

	// Spread magnitude as a fraction of price, scaled so that a 0.5%
	// separation saturates the variable part of the score.
	strength := 50 + clamp(abs(spread)/longMA[n-1]*10000, 0, 40)
	fresh := spread*prevSpread <= 0
	if fresh {
		strength += 10
	}
	strength = clamp(strength, 0, 100)

	scores := map[string]float64{"spread": spread, "fresh_cross": boolScore(fresh)}
	if spread > 0 {
		return models.Signal{Direction: models.Long, Strength: strength, Scores: scores}
	}
	return models.Signal{Direction: models.Short, Strength: strength, Scores: scores}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
