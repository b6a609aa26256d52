package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-perp-trader/internal/models"
)

func writeReplayCSV(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o644))
	return path
}

func TestReplayExpandsCandlesToTicks(t *testing.T) {
	path := writeReplayCSV(t, `timestamp,open,high,low,close,volume
60000,100,105,95,102,8
120000,102,110,101,109,4
`)

	f := NewReplay(path, "BTC-USDT-SWAP", zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.Subscribe(ctx, nil))

	ev := <-f.Events()
	assert.Equal(t, EventConnected, ev.Kind)

	var prices []float64
	var ticks []models.Tick
	for tick := range f.Ticks() {
		prices = append(prices, tick.Price)
		ticks = append(ticks, tick)
	}

	// Each candle becomes open, high, low, close.
	assert.Equal(t, []float64{100, 105, 95, 102, 102, 110, 101, 109}, prices)
	assert.Equal(t, "BTC-USDT-SWAP", ticks[0].Symbol)
	assert.Equal(t, time.UnixMilli(60000), ticks[0].Timestamp)
	assert.InDelta(t, 2.0, ticks[0].Volume, 1e-9)
}

func TestReplayRejectsEmptyFile(t *testing.T) {
	path := writeReplayCSV(t, "timestamp,open,high,low,close,volume\n")

	f := NewReplay(path, "BTC-USDT-SWAP", zerolog.Nop())
	err := f.Subscribe(context.Background(), nil)
	require.Error(t, err)
}

func TestReplayMissingFile(t *testing.T) {
	f := NewReplay("/does/not/exist.csv", "BTC-USDT-SWAP", zerolog.Nop())
	err := f.Subscribe(context.Background(), nil)
	require.Error(t, err)
}
