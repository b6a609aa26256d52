package engine

import (
	"sync"

	"okx-perp-trader/internal/models"
)

// Exit reasons recorded on closing orders and journal entries.
const (
	ExitStopLoss     = "stop_loss"
	ExitTakeProfit   = "take_profit"
	ExitTrailingStop = "trailing_stop"
	ExitReverse      = "signal_reverse"
	ExitShutdown     = "shutdown"
)

// Tracker holds one engine's open position and evaluates its exit
// conditions against incoming prices. The trailing stop arms once the
// position has moved TrailingDistance in its favor; from then on the
// anchor follows the best price seen and a retracement of
// TrailingDistance from the anchor triggers the exit.
type Tracker struct {
	mu       sync.RWMutex
	pos      *models.Position
	trailing bool
}

// NewTracker creates a tracker. trailing enables the trailing stop.
func NewTracker(trailing bool) *Tracker {
	return &Tracker{trailing: trailing}
}

// Open records a freshly filled position.
func (t *Tracker) Open(pos models.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pos = &pos
}

// Get returns a copy of the open position, if any.
func (t *Tracker) Get() (models.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.pos == nil {
		return models.Position{}, false
	}
	return *t.pos, true
}

// Clear removes the position after its closing order fills.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pos = nil
}

// CheckExit updates trailing state with the latest price and reports
// whether an exit condition fired. Fixed stops are checked before the
// trailing stop so a hard stop-loss always wins.
func (t *Tracker) CheckExit(price float64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pos == nil || price <= 0 {
		return "", false
	}
	p := t.pos
	rate := p.ProfitRate(price)

	if p.StopLoss > 0 && rate <= -p.StopLoss {
		return ExitStopLoss, true
	}
	if p.TakeProfit > 0 && rate >= p.TakeProfit {
		return ExitTakeProfit, true
	}

	if !t.trailing || p.TrailingDistance <= 0 {
		return "", false
	}

	if p.TrailingAnchor == 0 {
		if rate > p.TrailingDistance {
			p.TrailingAnchor = price
		}
		return "", false
	}

	// Armed: advance the anchor on favorable moves, fire on retracement.
	if p.Side == models.Long {
		if price > p.TrailingAnchor {
			p.TrailingAnchor = price
			return "", false
		}
		if (p.TrailingAnchor-price)/p.TrailingAnchor >= p.TrailingDistance {
			return ExitTrailingStop, true
		}
		return "", false
	}

	if price < p.TrailingAnchor {
		p.TrailingAnchor = price
		return "", false
	}
	if (price-p.TrailingAnchor)/p.TrailingAnchor >= p.TrailingDistance {
		return ExitTrailingStop, true
	}
	return "", false
}
