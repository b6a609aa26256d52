package strategy

import (
	"okx-perp-trader/internal/config"
	"okx-perp-trader/internal/models"
	"okx-perp-trader/internal/strategy/indicators"
)

// Default per-indicator score weights. The weights are tuning
// parameters; configuration overrides any subset of them.
var defaultWeights = map[string]float64{
	"macd":      25,
	"kdj":       25,
	"rsi":       20,
	"bollinger": 20,
	"trend":     10,
}

// Weighted combines independently computed indicator subscores into a
// single strength score per side and takes the direction from the
// better-scoring side. Each subscore contributes its full weight on a
// strong reading and a fraction of it on a leaning reading.
type Weighted struct {
	cfg     config.StrategyConfig
	weights map[string]float64
}

// NewWeighted creates the multi-indicator weighted scoring strategy.
func NewWeighted(cfg config.StrategyConfig) *Weighted {
	weights := make(map[string]float64, len(defaultWeights))
	for k, v := range defaultWeights {
		weights[k] = v
	}
	for k, v := range cfg.Weights {
		weights[k] = v
	}
	return &Weighted{cfg: cfg, weights: weights}
}

func (s *Weighted) Name() string { return "weighted" }

// Evaluate scores both sides and returns the stronger one, clipped to
// [0, 100]. Flat when there is not enough history for the slowest
// indicator or when neither side scores above zero.
func (s *Weighted) Evaluate(w models.Window) models.Signal {
	if len(w.Candles) < s.minCandles() {
		return flat()
	}

	longStrength, longScores := s.score(w, models.Long)
	shortStrength, shortScores := s.score(w, models.Short)

	if longStrength == 0 && shortStrength == 0 {
		return flat()
	}
	if longStrength >= shortStrength {
		return models.Signal{Direction: models.Long, Strength: clamp(longStrength, 0, 100), Scores: longScores}
	}
	return models.Signal{Direction: models.Short, Strength: clamp(shortStrength, 0, 100), Scores: shortScores}
}

func (s *Weighted) minCandles() int {
	n := s.cfg.MACDSlow + s.cfg.MACDSignal
	if s.cfg.BBPeriod > n {
		n = s.cfg.BBPeriod
	}
	if s.cfg.MALong > n {
		n = s.cfg.MALong
	}
	return n
}

func (s *Weighted) score(w models.Window, side models.Direction) (float64, map[string]float64) {
	closes := w.Closes()
	highs := w.Highs()
	lows := w.Lows()
	long := side == models.Long

	scores := make(map[string]float64, len(s.weights))
	var total float64

	// MACD cross: full weight on a confirmed cross (line beyond signal
	// with histogram on the same side), partial on direction alone.
	if macd, sig, hist := indicators.MACD(closes, s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal); macd != nil {
		m, _ := indicators.Last(macd)
		g, _ := indicators.Last(sig)
		h, _ := indicators.Last(hist)
		weight := s.weights["macd"]
		var pts float64
		switch {
		case long && m > g && h > 0, !long && m < g && h < 0:
			pts = weight
		case long && m > g, !long && m < g:
			pts = weight * 0.6
		}
		if pts > 0 {
			scores["macd"] = pts
			total += pts
		}
	}

	// KDJ: full weight on an overbought/oversold reversal, partial on a
	// plain cross.
	if k, d, _ := indicators.KDJ(highs, lows, closes, s.cfg.KDJPeriod, s.cfg.KDJSmoothK, s.cfg.KDJSmoothD); k != nil {
		kv, _ := indicators.Last(k)
		dv, _ := indicators.Last(d)
		weight := s.weights["kdj"]
		var pts float64
		switch {
		case long && kv < 20 && kv > dv, !long && kv > 80 && kv < dv:
			pts = weight
		case long && kv > dv, !long && kv < dv:
			pts = weight * 0.6
		}
		if pts > 0 {
			scores["kdj"] = pts
			total += pts
		}
	}

	// RSI: full weight in the extreme zone, partial on a lean.
	if rsi := indicators.RSI(closes, s.cfg.RSIPeriod); rsi != nil {
		rv, _ := indicators.Last(rsi)
		weight := s.weights["rsi"]
		var pts float64
		switch {
		case long && rv < 30, !long && rv > 70:
			pts = weight
		case long && rv < 50, !long && rv > 50:
			pts = weight * 0.5
		}
		if pts > 0 {
			scores["rsi"] = pts
			total += pts
		}
	}

	// Bollinger band position: full weight touching the far band,
	// partial on the favorable side of the middle band.
	if upper, middle, lower := indicators.Bollinger(closes, s.cfg.BBPeriod, s.cfg.BBStdDev); upper != nil {
		u, _ := indicators.Last(upper)
		m, _ := indicators.Last(middle)
		l, _ := indicators.Last(lower)
		price := closes[len(closes)-1]
		weight := s.weights["bollinger"]
		var pts float64
		switch {
		case long && price <= l, !long && price >= u:
			pts = weight
		case long && price < m, !long && price > m:
			pts = weight * 0.5
		}
		if pts > 0 {
			scores["bollinger"] = pts
			total += pts
		}
	}

	// Trend confirmation from the short/long MA relationship.
	shortMA := indicators.SMA(closes, s.cfg.MAShort)
	longMA := indicators.SMA(closes, s.cfg.MALong)
	if shortMA != nil && longMA != nil {
		sv, _ := indicators.Last(shortMA)
		lv, _ := indicators.Last(longMA)
		weight := s.weights["trend"]
		if (long && sv > lv) || (!long && sv < lv) {
			scores["trend"] = weight
			total += weight
		}
	}

	return total, scores
}
