package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker() (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewCircuitBreaker(DefaultCircuitBreakerConfig)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerStaysClosedUnderMinAttempts(t *testing.T) {
	b, _ := newTestBreaker()
	for i := 0; i < DefaultCircuitBreakerConfig.MinAttempts-1; i++ {
		b.RecordAttempt(1, true)
	}
	assert.False(t, b.Tripped(1), "fewer than MinAttempts must never trip")
}

func TestBreakerTripsOnAuthFailureRate(t *testing.T) {
	b, _ := newTestBreaker()
	for i := 0; i < 5; i++ {
		b.RecordAttempt(1, true)
	}
	assert.True(t, b.Tripped(1))
	assert.False(t, b.Tripped(2), "state is per-property")
}

func TestBreakerIgnoresSuccessHeavyWindow(t *testing.T) {
	b, _ := newTestBreaker()
	for i := 0; i < 8; i++ {
		b.RecordAttempt(1, false)
	}
	b.RecordAttempt(1, true)
	b.RecordAttempt(1, true)
	assert.False(t, b.Tripped(1), "2 of 10 failures is under the 50% threshold")
}

func TestBreakerWindowPrunesOldAttempts(t *testing.T) {
	b, now := newTestBreaker()
	for i := 0; i < 4; i++ {
		b.RecordAttempt(1, true)
	}
	require.False(t, b.Tripped(1))

	// The old failures age out of the rolling window; the fresh mixed sample
	// alone must decide.
	*now = now.Add(DefaultCircuitBreakerConfig.Window + time.Minute)
	for i := 0; i < 4; i++ {
		b.RecordAttempt(1, false)
	}
	b.RecordAttempt(1, true)
	assert.False(t, b.Tripped(1))
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker()
	for i := 0; i < 5; i++ {
		b.RecordAttempt(1, true)
	}
	require.True(t, b.Tripped(1))
	b.Reset(1)
	assert.False(t, b.Tripped(1))
}
