package gateway

import (
	"sync"
	"time"

	apperrors "okx-perp-trader/internal/errors"
)

// breakerState is the circuit state for the REST transport.
type breakerState string

const (
	breakerClosed   breakerState = "CLOSED"
	breakerOpen     breakerState = "OPEN"
	breakerHalfOpen breakerState = "HALF_OPEN"
)

// Breaker is a circuit breaker over the exchange transport. After a run
// of transport failures it fails fast instead of queueing more doomed
// requests behind the rate limiter; once the cool-off passes, a single
// probe request is let through and its outcome decides whether the
// circuit closes again. Failures it reports are retryable, so callers
// treat an open circuit like any other transient outage.
type Breaker struct {
	mu sync.Mutex

	state       breakerState
	failures    int
	successes   int
	openedAt    time.Time
	maxFailures int
	probeNeeded int
	cooloff     time.Duration

	now func() time.Time
}

// NewBreaker creates a closed breaker. maxFailures consecutive failures
// open it; after cooloff, probeNeeded consecutive successes close it.
func NewBreaker(maxFailures, probeNeeded int, cooloff time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if probeNeeded <= 0 {
		probeNeeded = 2
	}
	if cooloff <= 0 {
		cooloff = 30 * time.Second
	}
	return &Breaker{
		state:       breakerClosed,
		maxFailures: maxFailures,
		probeNeeded: probeNeeded,
		cooloff:     cooloff,
		now:         time.Now,
	}
}

// Allow reports whether a request may proceed. When the circuit is open
// it returns a retryable gateway error until the cool-off elapses, then
// admits probes in half-open state.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed, breakerHalfOpen:
		return nil
	default:
		if b.now().Sub(b.openedAt) >= b.cooloff {
			b.state = breakerHalfOpen
			b.successes = 0
			return nil
		}
		return apperrors.NewGatewayError("CIRCUIT_OPEN",
			"transport circuit open, failing fast", true, apperrors.ErrConnectionFailed)
	}
}

// RecordSuccess feeds a successful request back into the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerHalfOpen:
		b.successes++
		if b.successes >= b.probeNeeded {
			b.state = breakerClosed
			b.failures = 0
		}
	case breakerClosed:
		b.failures = 0
	}
}

// RecordFailure feeds a transport failure back into the breaker.
// Business rejections are not transport failures and must not be fed
// here.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerHalfOpen:
		b.state = breakerOpen
		b.openedAt = b.now()
	case breakerClosed:
		b.failures++
		if b.failures >= b.maxFailures {
			b.state = breakerOpen
			b.openedAt = b.now()
		}
	}
}

// State returns the current circuit state name.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.state)
}
