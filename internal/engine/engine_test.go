package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-perp-trader/internal/config"
	"okx-perp-trader/internal/gateway"
	"okx-perp-trader/internal/models"
	"okx-perp-trader/internal/risk"
)

const testSymbol = "BTC-USDT-SWAP"

// stubStrategy returns whatever signal the test sets.
type stubStrategy struct {
	sig models.Signal
}

func (s *stubStrategy) Name() string                           { return "stub" }
func (s *stubStrategy) Evaluate(w models.Window) models.Signal { return s.sig }

func testConfig() *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{
			Symbols:        []string{testSymbol},
			Paper:          true,
			Leverage:       5,
			CandleInterval: time.Minute,
			EvalInterval:   time.Hour, // ticker never fires in tests
			SubmitTimeout:  time.Second,
			InitialBalance: 10000,
		},
		Risk: config.RiskConfig{
			BaseSize:             0.1,
			MaxPositionSize:      1.0,
			MaxLeverage:          10,
			MaxDailyLoss:         500,
			MaxDrawdown:          0.20,
			MaxConsecutiveLosses: 5,
			CooldownDuration:     time.Hour,
			MaxHourlyTrades:      10,
			MaxPositions:         3,
			WinRateThreshold:     0.5,
			ScalingFactor:        0.5,
		},
		Strategy: config.StrategyConfig{
			Name:             "stub",
			MinStrength:      70,
			StopLoss:         0.02,
			TakeProfit:       0.10,
			TrailingStop:     true,
			TrailingDistance: 0.015,
		},
		Gateway: config.GatewayConfig{
			RateLimit:    10,
			MaxRetries:   3,
			RetryDelay:   time.Millisecond,
			RetryMaxWait: 10 * time.Millisecond,
		},
	}
}

type harness struct {
	eng   *Engine
	strat *stubStrategy
	paper *gateway.PaperGateway
	rm    *risk.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testConfig()
	strat := &stubStrategy{sig: models.Signal{Direction: models.Flat}}
	rm := risk.NewManager(cfg.Risk, zerolog.Nop())
	paper := gateway.NewPaper(cfg.Trading.InitialBalance, zerolog.Nop())
	gw := gateway.NewRetrying(paper, cfg.Gateway, zerolog.Nop())

	eng := New(testSymbol, cfg, strat, rm, gw, nil, zerolog.Nop())
	eng.connected.Store(true)
	return &harness{eng: eng, strat: strat, paper: paper, rm: rm}
}

// tick routes a price through the paper mark and the engine, the same
// order the live dispatcher uses.
func (h *harness) tick(price float64, at time.Time) {
	h.paper.SetMarkPrice(testSymbol, price)
	h.eng.onTick(context.Background(), models.Tick{
		Symbol:    testSymbol,
		Price:     price,
		Timestamp: at,
	})
}

func TestEntryOnStrongSignal(t *testing.T) {
	h := newHarness(t)
	h.strat.sig = models.Signal{Direction: models.Long, Strength: 80}

	h.tick(100, time.Unix(60, 0))

	pos, open := h.eng.tracker.Get()
	require.True(t, open)
	assert.Equal(t, models.Long, pos.Side)
	assert.Equal(t, 100.0, pos.EntryPrice)
	// Strength 80 scales the base size by 1.5.
	assert.InDelta(t, 0.15, pos.Size, 1e-9)
	assert.Equal(t, 1, h.rm.Snapshot().OpenPositions)

	st := h.eng.Status()
	assert.True(t, st.Connected)
	require.NotNil(t, st.Position)
	assert.Equal(t, 100.0, st.LastPrice)
}

func TestWeakSignalNoEntry(t *testing.T) {
	h := newHarness(t)
	h.strat.sig = models.Signal{Direction: models.Long, Strength: 60}

	h.tick(100, time.Unix(60, 0))

	_, open := h.eng.tracker.Get()
	assert.False(t, open)
}

func TestDisconnectedFeedBlocksEntries(t *testing.T) {
	h := newHarness(t)
	h.strat.sig = models.Signal{Direction: models.Long, Strength: 90}
	h.eng.connected.Store(false)

	h.tick(100, time.Unix(60, 0))

	_, open := h.eng.tracker.Get()
	assert.False(t, open)
}

func TestEmergencyStopBlocksEntries(t *testing.T) {
	h := newHarness(t)
	h.strat.sig = models.Signal{Direction: models.Long, Strength: 90}
	h.rm.ForceEmergencyStop("test")

	h.tick(100, time.Unix(60, 0))

	_, open := h.eng.tracker.Get()
	assert.False(t, open)
}

func TestTrailingStopRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.strat.sig = models.Signal{Direction: models.Long, Strength: 80}
	h.tick(100, time.Unix(60, 0))
	_, open := h.eng.tracker.Get()
	require.True(t, open)

	// Go flat so later candles don't re-enter.
	h.strat.sig = models.Signal{Direction: models.Flat}

	h.tick(102, time.Unix(61, 0)) // arms the trail
	h.tick(103, time.Unix(62, 0)) // advances the anchor
	_, open = h.eng.tracker.Get()
	require.True(t, open)

	h.tick(101.4, time.Unix(63, 0)) // 1.55% retracement fires

	_, open = h.eng.tracker.Get()
	require.False(t, open, "position should be closed")

	snap := h.rm.Snapshot()
	assert.Equal(t, 0, snap.OpenPositions)
	assert.Equal(t, 1, snap.ConsecutiveWins)
	// (101.4 - 100) * 0.15
	assert.InDelta(t, 0.21, snap.DailyPnL, 1e-9)

	positions, err := h.paper.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions, "exactly one closing order, no residue")
}

func TestStopLossLossFeedsRiskState(t *testing.T) {
	h := newHarness(t)
	h.strat.sig = models.Signal{Direction: models.Long, Strength: 80}
	h.tick(100, time.Unix(60, 0))
	h.strat.sig = models.Signal{Direction: models.Flat}

	h.tick(97.9, time.Unix(61, 0)) // -2.1% trips the stop

	_, open := h.eng.tracker.Get()
	require.False(t, open)

	snap := h.rm.Snapshot()
	assert.Equal(t, 1, snap.ConsecutiveLosses)
	assert.Negative(t, snap.DailyPnL)
}

func TestReverseSignalClosesPosition(t *testing.T) {
	h := newHarness(t)
	h.strat.sig = models.Signal{Direction: models.Long, Strength: 80}
	h.tick(100, time.Unix(60, 0))
	_, open := h.eng.tracker.Get()
	require.True(t, open)

	// Strong opposite signal on the next candle closes the long. The
	// engine does not flip in the same evaluation.
	h.strat.sig = models.Signal{Direction: models.Short, Strength: 85}
	h.tick(100.5, time.Unix(120, 0))

	_, open = h.eng.tracker.Get()
	assert.False(t, open)
}

func TestExitsKeepWorkingWhileStopped(t *testing.T) {
	h := newHarness(t)
	h.strat.sig = models.Signal{Direction: models.Long, Strength: 80}
	h.tick(100, time.Unix(60, 0))
	h.strat.sig = models.Signal{Direction: models.Flat}

	h.rm.ForceEmergencyStop("test")
	h.eng.connected.Store(false)

	// The stop-loss exit must still go out.
	h.tick(97, time.Unix(61, 0))
	_, open := h.eng.tracker.Get()
	assert.False(t, open)
}

func TestTransientGatewayFailureStillSingleFill(t *testing.T) {
	h := newHarness(t)
	h.strat.sig = models.Signal{Direction: models.Long, Strength: 80}
	h.paper.FailNext(2)

	h.tick(100, time.Unix(60, 0))

	// Retries under the same ClientID converge to exactly one fill.
	pos, open := h.eng.tracker.Get()
	require.True(t, open)
	assert.InDelta(t, 0.15, pos.Size, 1e-9)

	positions, err := h.paper.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 0.15, positions[0].Size, 1e-9)
}

func TestExhaustedGatewayFailureLeavesNoPosition(t *testing.T) {
	h := newHarness(t)
	h.strat.sig = models.Signal{Direction: models.Long, Strength: 80}
	h.paper.FailNext(3) // one failure per attempt in the retry budget

	h.tick(100, time.Unix(60, 0))

	// Every attempt failed terminally: no position anywhere, and the
	// risk state is untouched.
	_, open := h.eng.tracker.Get()
	require.False(t, open)

	positions, err := h.paper.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)

	snap := h.rm.Snapshot()
	assert.Equal(t, risk.ModeNormal, snap.Mode)
	assert.Equal(t, 0, snap.OpenPositions)
	assert.Equal(t, 0, snap.HourlyTrades)
	assert.Equal(t, 0, snap.ConsecutiveLosses)

	// The released slot is usable again on the next candle.
	h.tick(100.5, time.Unix(120, 0))
	_, open = h.eng.tracker.Get()
	assert.True(t, open)
}
