package scheduler

import (
	"sync"
	"time"
)

// CircuitBreakerConfig is the operator-defined threshold and rolling window
// for per-property authentication circuit breaking.
type CircuitBreakerConfig struct {
	// Threshold is the fraction (0.0-1.0) of attempts within Window that must
	// be authentication failures to trip the breaker.
	Threshold float64
	Window    time.Duration
	// MinAttempts bounds false trips on a tiny sample (e.g. one attempt, one
	// auth failure would otherwise be a 100% rate).
	MinAttempts int
}

// DefaultCircuitBreakerConfig trips when more than 50% of at least 5 attempts
// within a 10 minute window are authentication failures.
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	Threshold:   0.5,
	Window:      10 * time.Minute,
	MinAttempts: 5,
}

type attemptEvent struct {
	at        time.Time
	authError bool
}

// CircuitBreaker tracks per-property authentication error rate and trips
// (suspends auto-retry) once the rate exceeds Threshold within Window. State
// is per-property and in-process; each syncd instance trips independently.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	events   map[int64][]attemptEvent
	tripped  map[int64]bool
}

// NewCircuitBreaker builds a breaker using cfg.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:     cfg,
		now:     time.Now,
		events:  map[int64][]attemptEvent{},
		tripped: map[int64]bool{},
	}
}

// RecordAttempt registers one dispatch outcome for propertyID. authError is
// true when the outcome classified as htngerr.KindAuthentication.
func (b *CircuitBreaker) RecordAttempt(propertyID int64, authError bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	events := b.prune(b.events[propertyID], now)
	events = append(events, attemptEvent{at: now, authError: authError})
	b.events[propertyID] = events

	if len(events) < b.cfg.MinAttempts {
		return
	}
	var failures int
	for _, e := range events {
		if e.authError {
			failures++
		}
	}
	rate := float64(failures) / float64(len(events))
	if rate > b.cfg.Threshold {
		b.tripped[propertyID] = true
	}
}

func (b *CircuitBreaker) prune(events []attemptEvent, now time.Time) []attemptEvent {
	cutoff := now.Add(-b.cfg.Window)
	kept := events[:0]
	for _, e := range events {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}

// Tripped reports whether auto-retry is currently suspended for propertyID.
func (b *CircuitBreaker) Tripped(propertyID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped[propertyID]
}

// Reset clears the tripped state for propertyID (operator action, or
// reactivation of the property's mapping).
func (b *CircuitBreaker) Reset(propertyID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tripped, propertyID)
	delete(b.events, propertyID)
}
