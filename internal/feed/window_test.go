package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-perp-trader/internal/models"
)

func tickAt(price float64, sec int64) models.Tick {
	return models.Tick{
		Symbol:    "BTC-USDT-SWAP",
		Price:     price,
		Volume:    1,
		Timestamp: time.Unix(sec, 0).UTC(),
	}
}

func TestBuilderAggregatesOneCandle(t *testing.T) {
	b := NewBuilder("BTC-USDT-SWAP", time.Minute)

	b.Add(tickAt(100, 60))
	b.Add(tickAt(105, 70))
	b.Add(tickAt(95, 80))
	b.Add(tickAt(102, 110))

	w := b.Window()
	require.Len(t, w.Candles, 1)
	c := w.Candles[0]
	assert.Equal(t, 100.0, c.Open)
	assert.Equal(t, 105.0, c.High)
	assert.Equal(t, 95.0, c.Low)
	assert.Equal(t, 102.0, c.Close)
	assert.Equal(t, 4.0, c.Volume)
	assert.Equal(t, 102.0, w.LastPrice)
}

func TestBuilderRollsOverOnIntervalBoundary(t *testing.T) {
	b := NewBuilder("BTC-USDT-SWAP", time.Minute)

	b.Add(tickAt(100, 60))
	b.Add(tickAt(101, 119))
	b.Add(tickAt(102, 120)) // next minute

	w := b.Window()
	require.Len(t, w.Candles, 2)
	assert.Equal(t, 101.0, w.Candles[0].Close)
	assert.Equal(t, 102.0, w.Candles[1].Open)
	assert.Equal(t, 2, b.Len())
}

func TestBuilderWindowIsACopy(t *testing.T) {
	b := NewBuilder("BTC-USDT-SWAP", time.Minute)
	b.Add(tickAt(100, 60))

	w := b.Window()
	w.Candles[0].Close = 9999

	assert.Equal(t, 100.0, b.Window().Candles[0].Close)
}

func TestBuilderCapsHistory(t *testing.T) {
	b := NewBuilder("BTC-USDT-SWAP", time.Minute)

	for i := 0; i < maxCandles+50; i++ {
		b.Add(tickAt(100+float64(i), int64(60*i)))
	}

	// Completed candles are capped; the newest in-progress one rides on
	// top.
	w := b.Window()
	assert.LessOrEqual(t, len(w.Candles), maxCandles+1)
	assert.Equal(t, 100.0+float64(maxCandles+49), w.LastPrice)
}

func TestBuilderSeed(t *testing.T) {
	b := NewBuilder("BTC-USDT-SWAP", time.Minute)

	candles := make([]models.Candle, 10)
	for i := range candles {
		candles[i] = models.Candle{
			Timestamp: time.Unix(int64(60*i), 0),
			Open:      100, High: 101, Low: 99, Close: 100.5,
		}
	}
	b.Seed(candles)

	assert.Equal(t, 10, b.Len())
	assert.Equal(t, 100.5, b.Window().LastPrice)
}
