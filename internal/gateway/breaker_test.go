package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "okx-perp-trader/internal/errors"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(3, 2, 30*time.Second)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
	}
	require.NoError(t, b.Allow(), "still closed below the threshold")

	b.RecordFailure()
	err := b.Allow()
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err), "an open circuit is a transient condition")
	assert.Equal(t, "OPEN", b.State())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, 2, 30*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	assert.NoError(t, b.Allow())
}

func TestBreakerHalfOpenProbeCycle(t *testing.T) {
	b := NewBreaker(2, 2, 30*time.Second)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	b.RecordFailure()
	require.Error(t, b.Allow())

	// Cool-off elapses: probes are admitted.
	now = now.Add(31 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, "HALF_OPEN", b.State())

	// A probe failure reopens immediately.
	b.RecordFailure()
	require.Error(t, b.Allow())

	// Another cool-off, then enough probe successes close it.
	now = now.Add(31 * time.Second)
	require.NoError(t, b.Allow())
	b.RecordSuccess()
	b.RecordSuccess()
	assert.Equal(t, "CLOSED", b.State())
	assert.NoError(t, b.Allow())
}
