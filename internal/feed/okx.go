package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	apperrors "okx-perp-trader/internal/errors"
	"okx-perp-trader/internal/models"
)

const (
	pingInterval    = 20 * time.Second
	readDeadline    = 30 * time.Second
	reconnectBase   = time.Second
	reconnectMax    = time.Minute
	reconnectFactor = 2.0
	reconnectJitter = 0.3
	tickBuffer      = 256
	eventBuffer     = 8
)

// OKXFeed streams ticker updates from the OKX public websocket. On any
// read or dial failure it emits a Disconnected event, backs off with
// capped exponential delay plus jitter, and re-dials; subscriptions are
// replayed on every successful reconnect so a drop never loses symbols.
type OKXFeed struct {
	wsURL  string
	logger zerolog.Logger

	ticks  chan models.Tick
	events chan Event

	mu      sync.Mutex
	symbols []string
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewOKX creates an OKX websocket feed for the given endpoint.
func NewOKX(wsURL string, logger zerolog.Logger) *OKXFeed {
	return &OKXFeed{
		wsURL:  wsURL,
		logger: logger.With().Str("component", "okx_feed").Logger(),
		ticks:  make(chan models.Tick, tickBuffer),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

type wsSubscribe struct {
	Op   string  `json:"op"`
	Args []wsArg `json:"args"`
}

type wsArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type wsPush struct {
	Event string `json:"event"`
	Msg   string `json:"msg"`
	Arg   wsArg  `json:"arg"`
	Data  []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
		LastSz string `json:"lastSz"`
		TS     string `json:"ts"`
	} `json:"data"`
}

// Subscribe starts the read loop for the given symbols. It returns once
// the loop is launched; the first Connected event signals live data.
func (f *OKXFeed) Subscribe(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return apperrors.ErrFeedClosed
	}
	if f.cancel != nil {
		return fmt.Errorf("feed already subscribed")
	}

	f.symbols = append([]string(nil), symbols...)
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	go f.run(runCtx)
	return nil
}

func (f *OKXFeed) Ticks() <-chan models.Tick { return f.ticks }
func (f *OKXFeed) Events() <-chan Event      { return f.events }

// Close stops the feed and closes both channels.
func (f *OKXFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	cancel := f.cancel
	f.mu.Unlock()

	if cancel != nil {
		cancel()
		<-f.done
	}
	close(f.ticks)
	close(f.events)
	return nil
}

// run is the reconnect loop: dial, subscribe, read until failure,
// back off, repeat.
func (f *OKXFeed) run(ctx context.Context) {
	defer close(f.done)

	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := f.dial(ctx)
		if err != nil {
			f.logger.Warn().Err(err).Int("attempt", attempt).Msg("Feed dial failed")
			if !f.sleep(ctx, backoffDelay(attempt)) {
				return
			}
			attempt++
			continue
		}

		attempt = 0
		f.emit(Event{Kind: EventConnected})
		f.logger.Info().Str("url", f.wsURL).Msg("Feed connected")

		err = f.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}

		f.emit(Event{Kind: EventDisconnected, Reason: err.Error()})
		f.logger.Warn().Err(err).Msg("Feed disconnected, will reconnect")

		if !f.sleep(ctx, backoffDelay(attempt)) {
			return
		}
		attempt++
	}
}

func (f *OKXFeed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.wsURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, "dialing websocket")
	}

	f.mu.Lock()
	symbols := f.symbols
	f.mu.Unlock()

	args := make([]wsArg, len(symbols))
	for i, s := range symbols {
		args[i] = wsArg{Channel: "tickers", InstID: s}
	}
	if err := conn.WriteJSON(wsSubscribe{Op: "subscribe", Args: args}); err != nil {
		conn.Close()
		return nil, apperrors.Wrap(err, "sending subscribe")
	}
	return conn, nil
}

// readLoop pumps messages until the connection fails. A ping ticker
// keeps the connection alive through OKX's 30 second idle timeout.
func (f *OKXFeed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	pings := time.NewTicker(pingInterval)
	defer pings.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-pings.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return apperrors.Wrap(err, "reading message")
		}
		if string(raw) == "pong" {
			continue
		}

		var push wsPush
		if err := json.Unmarshal(raw, &push); err != nil {
			f.logger.Debug().Str("raw", string(raw)).Msg("Skipping unparseable message")
			continue
		}
		if push.Event == "error" {
			f.logger.Warn().Str("msg", push.Msg).Msg("Subscription error from exchange")
			continue
		}
		if push.Arg.Channel != "tickers" {
			continue
		}

		for _, d := range push.Data {
			price, err := strconv.ParseFloat(d.Last, 64)
			if err != nil || price <= 0 {
				continue
			}
			vol, _ := strconv.ParseFloat(d.LastSz, 64)
			ts := time.Now()
			if ms, err := strconv.ParseInt(d.TS, 10, 64); err == nil {
				ts = time.UnixMilli(ms)
			}
			tick := models.Tick{Symbol: d.InstID, Price: price, Volume: vol, Timestamp: ts}

			// Drop instead of block: a stalled consumer must not
			// stall the websocket read loop.
			select {
			case f.ticks <- tick:
			default:
			}
		}
	}
}

func (f *OKXFeed) emit(ev Event) {
	select {
	case f.events <- ev:
	default:
	}
}

func (f *OKXFeed) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// backoffDelay returns the capped, jittered reconnect delay for the
// given zero-based attempt.
func backoffDelay(attempt int) time.Duration {
	delay := float64(reconnectBase)
	for i := 0; i < attempt; i++ {
		delay *= reconnectFactor
		if delay >= float64(reconnectMax) {
			delay = float64(reconnectMax)
			break
		}
	}
	spread := delay * reconnectJitter
	delay = delay - spread/2 + rand.Float64()*spread
	return time.Duration(delay)
}
