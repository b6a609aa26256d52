package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-perp-trader/internal/models"
)

func longPosition() models.Position {
	return models.Position{
		Symbol:           "BTC-USDT-SWAP",
		Side:             models.Long,
		Size:             0.1,
		EntryPrice:       100,
		StopLoss:         0.02,
		TakeProfit:       0.05,
		TrailingDistance: 0.015,
	}
}

func TestStopLossFires(t *testing.T) {
	tr := NewTracker(true)
	tr.Open(longPosition())

	reason, fire := tr.CheckExit(99)
	assert.False(t, fire, "1% drop is inside the stop")

	reason, fire = tr.CheckExit(98)
	require.True(t, fire)
	assert.Equal(t, ExitStopLoss, reason)
}

func TestTakeProfitFires(t *testing.T) {
	tr := NewTracker(false)
	tr.Open(longPosition())

	_, fire := tr.CheckExit(104)
	assert.False(t, fire)

	reason, fire := tr.CheckExit(105)
	require.True(t, fire)
	assert.Equal(t, ExitTakeProfit, reason)
}

func TestTrailingStopArmsAndFires(t *testing.T) {
	tr := NewTracker(true)
	tr.Open(longPosition())

	// Below the arming threshold: no anchor yet.
	_, fire := tr.CheckExit(101)
	require.False(t, fire)
	pos, _ := tr.Get()
	assert.Zero(t, pos.TrailingAnchor)

	// 2% profit exceeds the 1.5% distance: arms at this price.
	_, fire = tr.CheckExit(102)
	require.False(t, fire)
	pos, _ = tr.Get()
	assert.Equal(t, 102.0, pos.TrailingAnchor)

	// Favorable move advances the anchor.
	_, fire = tr.CheckExit(103)
	require.False(t, fire)
	pos, _ = tr.Get()
	assert.Equal(t, 103.0, pos.TrailingAnchor)

	// Small retracement holds.
	_, fire = tr.CheckExit(102.2)
	require.False(t, fire)

	// Retracement past 1.5% from the anchor fires.
	reason, fire := tr.CheckExit(101.4)
	require.True(t, fire)
	assert.Equal(t, ExitTrailingStop, reason)
}

func TestTrailingStopShortSide(t *testing.T) {
	tr := NewTracker(true)
	pos := longPosition()
	pos.Side = models.Short
	tr.Open(pos)

	// 2% in favor of the short arms the trail.
	_, fire := tr.CheckExit(98)
	require.False(t, fire)
	got, _ := tr.Get()
	assert.Equal(t, 98.0, got.TrailingAnchor)

	_, fire = tr.CheckExit(97)
	require.False(t, fire)

	// Bounce of 1.55% off the anchor fires.
	reason, fire := tr.CheckExit(98.51)
	require.True(t, fire)
	assert.Equal(t, ExitTrailingStop, reason)
}

func TestHardStopBeatsTrailing(t *testing.T) {
	tr := NewTracker(true)
	pos := longPosition()
	pos.TakeProfit = 0.5
	tr.Open(pos)

	tr.CheckExit(102) // arm
	tr.CheckExit(110) // anchor well above entry

	// A crash straight through the trailing band and the hard stop
	// reports the stop loss.
	reason, fire := tr.CheckExit(97)
	require.True(t, fire)
	assert.Equal(t, ExitStopLoss, reason)
}

func TestNoTrailingWhenDisabled(t *testing.T) {
	tr := NewTracker(false)
	pos := longPosition()
	pos.TakeProfit = 0.5
	tr.Open(pos)

	tr.CheckExit(103)
	_, fire := tr.CheckExit(101)
	assert.False(t, fire)
}

func TestClearedTrackerNeverFires(t *testing.T) {
	tr := NewTracker(true)
	tr.Open(longPosition())
	tr.Clear()

	_, fire := tr.CheckExit(50)
	assert.False(t, fire)
	_, open := tr.Get()
	assert.False(t, open)
}
