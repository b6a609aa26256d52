package feed

import (
	"sync"
	"time"

	"okx-perp-trader/internal/models"
)

// maxCandles bounds the window history kept per symbol. Strategies need
// at most a couple hundred candles; anything older is discarded.
const maxCandles = 200

// Builder aggregates a tick stream into fixed-interval candles and
// serves immutable Window snapshots. One Builder serves one symbol.
type Builder struct {
	mu       sync.Mutex
	symbol   string
	interval time.Duration

	candles []models.Candle
	current *models.Candle
	bucket  time.Time
	last    float64
}

// NewBuilder creates a candle builder for symbol at the given interval.
func NewBuilder(symbol string, interval time.Duration) *Builder {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Builder{symbol: symbol, interval: interval}
}

// Add folds a tick into the current candle, rolling over to a new
// candle when the tick crosses an interval boundary.
func (b *Builder) Add(t models.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = t.Price
	bucket := t.Timestamp.Truncate(b.interval)

	if b.current == nil || !bucket.Equal(b.bucket) {
		b.rollLocked()
		b.bucket = bucket
		b.current = &models.Candle{
			Timestamp: bucket,
			Open:      t.Price,
			High:      t.Price,
			Low:       t.Price,
			Close:     t.Price,
			Volume:    t.Volume,
		}
		return
	}

	if t.Price > b.current.High {
		b.current.High = t.Price
	}
	if t.Price < b.current.Low {
		b.current.Low = t.Price
	}
	b.current.Close = t.Price
	b.current.Volume += t.Volume
}

// Seed preloads historical candles, oldest first.
func (b *Builder) Seed(candles []models.Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.candles = append(b.candles, candles...)
	if len(b.candles) > maxCandles {
		b.candles = b.candles[len(b.candles)-maxCandles:]
	}
	if n := len(b.candles); n > 0 {
		b.last = b.candles[n-1].Close
	}
}

// Window returns a snapshot of completed candles plus the in-progress
// candle, and the last traded price. The returned slice is a copy.
func (b *Builder) Window() models.Window {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.candles)
	if b.current != nil {
		n++
	}
	out := make([]models.Candle, 0, n)
	out = append(out, b.candles...)
	if b.current != nil {
		out = append(out, *b.current)
	}
	return models.Window{Symbol: b.symbol, Candles: out, LastPrice: b.last}
}

// Len returns the number of candles available, counting the one in
// progress.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.candles)
	if b.current != nil {
		n++
	}
	return n
}

func (b *Builder) rollLocked() {
	if b.current == nil {
		return
	}
	b.candles = append(b.candles, *b.current)
	if len(b.candles) > maxCandles {
		b.candles = b.candles[len(b.candles)-maxCandles:]
	}
	b.current = nil
}
