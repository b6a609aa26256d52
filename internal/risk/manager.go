// Package risk implements the risk-control state machine that gates and
// sizes every trade. One Manager instance is shared by all per-symbol
// engines; access to its state is serialized by a mutex so the global
// open-position and hourly-trade caps hold under any interleaving.
package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"okx-perp-trader/internal/config"
	"okx-perp-trader/internal/models"
)

// Mode is the state of the risk state machine. Normal is initial.
// EmergencyStop is terminal until an explicit operator reset.
type Mode string

const (
	ModeNormal        Mode = "NORMAL"
	ModeCooldown      Mode = "COOLDOWN"
	ModeEmergencyStop Mode = "EMERGENCY_STOP"
)

// Reject reason codes returned by CanOpenPosition.
const (
	ReasonEmergencyStop = "EMERGENCY_STOP"
	ReasonCooldown      = "COOLDOWN"
	ReasonMaxPositions  = "MAX_POSITIONS"
	ReasonHourlyCap     = "HOURLY_CAP"
)

// Decision is the outcome of a gate check. A rejection is a control
// signal, not an error: the engine skips the entry and carries on.
type Decision struct {
	Allowed bool
	Code    string
	Reason  string
}

// Allow is the decision that permits an entry.
func Allow() Decision {
	return Decision{Allowed: true}
}

func rejected(code, reason string) Decision {
	return Decision{Allowed: false, Code: code, Reason: reason}
}

// Snapshot is a read-only view of risk state for the operator surface.
type Snapshot struct {
	Mode              Mode
	ConsecutiveLosses int
	ConsecutiveWins   int
	DailyPnL          float64
	Drawdown          float64
	PeakEquity        float64
	Equity            float64
	OpenPositions     int
	HourlyTrades      int
	CooldownUntil     time.Time
}

// Manager owns the shared RiskState. All mutating paths hold mu.
type Manager struct {
	mu     sync.Mutex
	cfg    config.RiskConfig
	logger zerolog.Logger

	mode          Mode
	stopReason    string
	cooldownUntil time.Time

	consecLosses int
	consecWins   int

	dailyPnL float64
	day      time.Time

	equity     float64
	peakEquity float64

	// trade outcomes of the last few closes, for the trailing win rate
	recent []float64

	tradeTimes []time.Time
	open       map[string]bool
	reserved   map[string]bool

	now func() time.Time
}

// NewManager creates a risk manager in Normal mode.
func NewManager(cfg config.RiskConfig, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger.With().Str("component", "risk").Logger(),
		mode:     ModeNormal,
		open:     make(map[string]bool),
		reserved: make(map[string]bool),
		now:      time.Now,
	}
}

// CanOpenPosition reports whether a new entry is permitted for symbol.
// Gates are checked in severity order; the first failing gate wins.
// Closing orders never pass through here: exits stay permitted in every
// mode.
//
// An allowed decision reserves the slot against both the position and
// hourly caps while the order is in flight, so two engines whose gates
// pass before either fill lands cannot together overrun a cap. The
// caller must settle the reservation: MarkOpen on fill, Release on any
// failure.
func (m *Manager) CanOpenPosition(symbol string, sig models.Signal) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.rollDayLocked(now)

	if m.mode == ModeEmergencyStop {
		return rejected(ReasonEmergencyStop, "emergency stop engaged: "+m.stopReason)
	}

	if m.mode == ModeCooldown {
		if now.Before(m.cooldownUntil) {
			return rejected(ReasonCooldown, "cooling down until "+m.cooldownUntil.Format(time.RFC3339))
		}
		// Cooldown expired: return to Normal and clear the loss streak.
		m.mode = ModeNormal
		m.consecLosses = 0
		m.cooldownUntil = time.Time{}
		m.logger.Info().Msg("Cooldown expired, resuming entries")
	}

	if m.openCountLocked() >= m.cfg.MaxPositions {
		return rejected(ReasonMaxPositions, "open position cap reached")
	}

	m.pruneTradeTimesLocked(now)
	if len(m.tradeTimes)+len(m.reserved) >= m.cfg.MaxHourlyTrades {
		return rejected(ReasonHourlyCap, "hourly trade cap reached")
	}

	m.reserved[symbol] = true
	return Allow()
}

// SizePosition returns the entry size for a signal: the configured base
// size scaled by signal strength and recent performance, always clamped
// to [0, MaxPositionSize].
func (m *Manager) SizePosition(sig models.Signal, equity float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	multiplier := 1.0

	switch {
	case sig.Strength >= 80:
		multiplier *= 1.5
	case sig.Strength >= 70:
		multiplier *= 1.2
	case sig.Strength < 60:
		multiplier *= 0.7
	}

	if rate, ok := m.winRateLocked(); ok {
		switch {
		case rate < m.cfg.WinRateThreshold:
			multiplier *= m.cfg.ScalingFactor
		case rate >= 0.6:
			multiplier *= 1.1
		}
	}
	if m.consecWins >= 3 {
		multiplier *= 1.2
	}

	// Overall multiplier bounds before the hard size clamp.
	if multiplier < 0.3 {
		multiplier = 0.3
	}
	if multiplier > 2.0 {
		multiplier = 2.0
	}

	size := m.cfg.BaseSize * multiplier
	if size < 0 {
		size = 0
	}
	if size > m.cfg.MaxPositionSize {
		size = m.cfg.MaxPositionSize
	}
	return size
}

// RecordTradeResult feeds a realized trade outcome back into the state
// machine. A win resets the loss streak immediately; a loss may trip the
// Cooldown or EmergencyStop transitions.
func (m *Manager) RecordTradeResult(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.rollDayLocked(now)

	m.dailyPnL += pnl
	m.equity += pnl
	if m.equity > m.peakEquity {
		m.peakEquity = m.equity
	}

	m.recent = append(m.recent, pnl)
	if len(m.recent) > 10 {
		m.recent = m.recent[1:]
	}

	if pnl > 0 {
		m.consecWins++
		m.consecLosses = 0
	} else if pnl < 0 {
		m.consecLosses++
		m.consecWins = 0
	}

	switch {
	case m.cfg.MaxDailyLoss > 0 && m.dailyPnL <= -m.cfg.MaxDailyLoss:
		m.enterEmergencyStopLocked("max daily loss reached")
	case m.drawdownLocked() >= m.cfg.MaxDrawdown:
		m.enterEmergencyStopLocked("max drawdown reached")
	case m.mode == ModeNormal && m.consecLosses >= m.cfg.MaxConsecutiveLosses:
		m.mode = ModeCooldown
		m.cooldownUntil = now.Add(m.cfg.CooldownDuration)
		m.logger.Warn().
			Int("consecutive_losses", m.consecLosses).
			Time("until", m.cooldownUntil).
			Msg("Loss streak threshold reached, entering cooldown")
	}
}

// UpdateEquity records the latest account equity and maintains the peak
// used for drawdown. An equity collapse can trip EmergencyStop even
// without a closed trade.
func (m *Manager) UpdateEquity(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.equity = equity
	if equity > m.peakEquity {
		m.peakEquity = equity
	}
	if m.mode != ModeEmergencyStop && m.drawdownLocked() >= m.cfg.MaxDrawdown {
		m.enterEmergencyStopLocked("max drawdown reached")
	}
}

// MarkOpen settles a reservation into a filled entry for symbol and
// counts the trade against the hourly cap.
func (m *Manager) MarkOpen(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.reserved, symbol)
	m.open[symbol] = true
	now := m.now()
	m.tradeTimes = append(m.tradeTimes, now)
	m.pruneTradeTimesLocked(now)
}

// Release drops the reservation taken by an allowed CanOpenPosition when
// the entry order failed or was rejected, freeing the slot for other
// engines. It never counts as a trade.
func (m *Manager) Release(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reserved, symbol)
}

// MarkClosed removes symbol from the open-position registry.
func (m *Manager) MarkClosed(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, symbol)
}

// Mode returns the current mode.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// ForceEmergencyStop is the manual operator halt.
func (m *Manager) ForceEmergencyStop(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ModeEmergencyStop {
		m.enterEmergencyStopLocked("operator: " + reason)
	}
}

// ClearCooldown is the manual operator override that ends a cooldown
// early. It has no effect in other modes; EmergencyStop requires Reset.
func (m *Manager) ClearCooldown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == ModeCooldown {
		m.mode = ModeNormal
		m.consecLosses = 0
		m.cooldownUntil = time.Time{}
		m.logger.Info().Msg("Cooldown cleared by operator")
	}
}

// Reset returns the manager to Normal from EmergencyStop. It exists for
// the operator control surface only; nothing in the trading path calls
// it.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = ModeNormal
	m.stopReason = ""
	m.consecLosses = 0
	m.cooldownUntil = time.Time{}
	m.logger.Warn().Msg("Risk state reset by operator")
}

// Snapshot returns a copy of current risk state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneTradeTimesLocked(m.now())
	return Snapshot{
		Mode:              m.mode,
		ConsecutiveLosses: m.consecLosses,
		ConsecutiveWins:   m.consecWins,
		DailyPnL:          m.dailyPnL,
		Drawdown:          m.drawdownLocked(),
		PeakEquity:        m.peakEquity,
		Equity:            m.equity,
		OpenPositions:     m.openCountLocked(),
		HourlyTrades:      len(m.tradeTimes),
		CooldownUntil:     m.cooldownUntil,
	}
}

func (m *Manager) enterEmergencyStopLocked(reason string) {
	m.mode = ModeEmergencyStop
	m.stopReason = reason
	m.logger.Error().
		Str("reason", reason).
		Float64("daily_pnl", m.dailyPnL).
		Float64("drawdown", m.drawdownLocked()).
		Msg("EMERGENCY STOP: all new entries blocked until operator reset")
}

func (m *Manager) drawdownLocked() float64 {
	if m.peakEquity <= 0 {
		return 0
	}
	return (m.peakEquity - m.equity) / m.peakEquity
}

// winRateLocked returns the trailing win rate over the recent closes.
// It is unusable until at least five outcomes exist.
func (m *Manager) winRateLocked() (float64, bool) {
	if len(m.recent) < 5 {
		return 0, false
	}
	wins := 0
	for _, pnl := range m.recent {
		if pnl > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(m.recent)), true
}

// openCountLocked counts filled positions plus in-flight reservations;
// the cap has to hold against both.
func (m *Manager) openCountLocked() int {
	return len(m.open) + len(m.reserved)
}

func (m *Manager) pruneTradeTimesLocked(now time.Time) {
	cutoff := now.Add(-time.Hour)
	kept := m.tradeTimes[:0]
	for _, t := range m.tradeTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.tradeTimes = kept
}

// rollDayLocked resets the daily PnL counter when the calendar date
// changes.
func (m *Manager) rollDayLocked(now time.Time) {
	today := now.Truncate(24 * time.Hour)
	if m.day.IsZero() {
		m.day = today
		return
	}
	if today.After(m.day) {
		m.logger.Info().
			Float64("daily_pnl", m.dailyPnL).
			Msg("Daily stats rollover")
		m.dailyPnL = 0
		m.day = today
	}
}
