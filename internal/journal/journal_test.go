package journal

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-perp-trader/internal/models"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func sampleTrade(pnl float64, closedAt time.Time) Trade {
	return Trade{
		Symbol:     "BTC-USDT-SWAP",
		Side:       models.Long,
		Size:       0.1,
		EntryPrice: 100,
		ExitPrice:  100 + pnl/0.1,
		PnL:        pnl,
		Reason:     "trailing_stop",
		OpenedAt:   closedAt.Add(-time.Hour),
		ClosedAt:   closedAt,
	}
}

func TestRecordAndRecentTrades(t *testing.T) {
	j := openTestJournal(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.RecordTrade(sampleTrade(5, now)))
	require.NoError(t, j.RecordTrade(sampleTrade(-3, now.Add(time.Minute))))
	require.NoError(t, j.RecordTrade(sampleTrade(8, now.Add(2*time.Minute))))

	trades, err := j.RecentTrades(2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	// Newest first.
	assert.InDelta(t, 8.0, trades[0].PnL, 1e-9)
	assert.InDelta(t, -3.0, trades[1].PnL, 1e-9)
	assert.Equal(t, models.Long, trades[0].Side)
	assert.Equal(t, "trailing_stop", trades[0].Reason)
}

func TestSummaryAggregates(t *testing.T) {
	j := openTestJournal(t)
	now := time.Now().UTC()

	require.NoError(t, j.RecordTrade(sampleTrade(5, now)))
	require.NoError(t, j.RecordTrade(sampleTrade(-3, now)))
	require.NoError(t, j.RecordTrade(sampleTrade(8, now)))

	stats, err := j.Summary()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Trades)
	assert.Equal(t, 2, stats.Wins)
	assert.InDelta(t, 10.0, stats.TotalPnL, 1e-9)
}

func TestSummaryEmptyJournal(t *testing.T) {
	j := openTestJournal(t)

	stats, err := j.Summary()
	require.NoError(t, err)
	assert.Zero(t, stats.Trades)
	assert.Zero(t, stats.TotalPnL)
}

func TestDailyPnLOnlyCountsTheDay(t *testing.T) {
	j := openTestJournal(t)
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	require.NoError(t, j.RecordTrade(sampleTrade(5, day)))
	require.NoError(t, j.RecordTrade(sampleTrade(7, day.Add(2*time.Hour))))
	require.NoError(t, j.RecordTrade(sampleTrade(-100, day.AddDate(0, 0, -1))))

	pnl, err := j.DailyPnL(day)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, pnl, 1e-9)
}

func TestRiskEvents(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.RecordRiskEvent("EMERGENCY_STOP", "max daily loss reached"))
	require.NoError(t, j.RecordRiskEvent("COOLDOWN", "loss streak"))

	var count int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM risk_events`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
