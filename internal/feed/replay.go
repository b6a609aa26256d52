package feed

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "okx-perp-trader/internal/errors"
	"okx-perp-trader/internal/models"
)

// ReplayFeed replays historical candles from a CSV file as a tick
// stream for backtesting. Each candle is expanded into four ticks
// (open, high, low, close) so stop and trailing exits see intra-candle
// extremes, not just closes.
//
// CSV columns: timestamp(ms or RFC3339), open, high, low, close, volume.
// A header row is skipped automatically.
type ReplayFeed struct {
	path   string
	symbol string
	logger zerolog.Logger

	ticks  chan models.Tick
	events chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// NewReplay creates a replay feed for one symbol from a CSV file.
func NewReplay(path, symbol string, logger zerolog.Logger) *ReplayFeed {
	return &ReplayFeed{
		path:   path,
		symbol: symbol,
		logger: logger.With().Str("component", "replay_feed").Logger(),
		ticks:  make(chan models.Tick, tickBuffer),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Subscribe starts replaying. The symbols argument is ignored; a replay
// feed serves the single symbol it was built for.
func (f *ReplayFeed) Subscribe(ctx context.Context, symbols []string) error {
	candles, err := f.load()
	if err != nil {
		return err
	}
	f.logger.Info().Int("candles", len(candles)).Str("path", f.path).Msg("Replay loaded")

	go func() {
		defer f.Close()
		f.events <- Event{Kind: EventConnected}
		for _, c := range candles {
			for _, px := range []float64{c.Open, c.High, c.Low, c.Close} {
				tick := models.Tick{
					Symbol:    f.symbol,
					Price:     px,
					Volume:    c.Volume / 4,
					Timestamp: c.Timestamp,
				}
				select {
				case f.ticks <- tick:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return nil
}

func (f *ReplayFeed) Ticks() <-chan models.Tick { return f.ticks }
func (f *ReplayFeed) Events() <-chan Event      { return f.events }

// Close ends the replay and closes both channels.
func (f *ReplayFeed) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)
		close(f.ticks)
		close(f.events)
	})
	return nil
}

func (f *ReplayFeed) load() ([]models.Candle, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, apperrors.Wrap(err, "opening replay file")
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	var candles []models.Candle
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.Wrap(err, "reading replay file")
		}
		if len(rec) < 5 {
			continue
		}

		ts, ok := parseTimestamp(rec[0])
		if !ok {
			// header row
			continue
		}
		c := models.Candle{Timestamp: ts}
		c.Open, _ = strconv.ParseFloat(rec[1], 64)
		c.High, _ = strconv.ParseFloat(rec[2], 64)
		c.Low, _ = strconv.ParseFloat(rec[3], 64)
		c.Close, _ = strconv.ParseFloat(rec[4], 64)
		if len(rec) > 5 {
			c.Volume, _ = strconv.ParseFloat(rec[5], 64)
		}
		if c.Open <= 0 || c.Close <= 0 {
			continue
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrFeedClosed, "no candles in %s", f.path)
	}
	return candles, nil
}

func parseTimestamp(s string) (time.Time, bool) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
