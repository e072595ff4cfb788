package scheduler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htngsync/internal/model"
)

func TestLeaseKeyIsPerPropertyAndKind(t *testing.T) {
	assert.Equal(t, "inventory@1", LeaseKey(1, model.KindInventory))
	assert.NotEqual(t, LeaseKey(1, model.KindInventory), LeaseKey(2, model.KindInventory))
	assert.NotEqual(t, LeaseKey(1, model.KindInventory), LeaseKey(1, model.KindRates))
}

func TestLeaseSerializesSameStream(t *testing.T) {
	l := NewLeaseManager()
	key := LeaseKey(1, model.KindInventory)

	var inFlight, maxInFlight int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := l.Acquire(key)
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			mu.Lock()
			inFlight--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInFlight, "no two holders of the same stream lease may overlap")
}

func TestTryAcquireFailsWhileHeld(t *testing.T) {
	l := NewLeaseManager()
	key := LeaseKey(7, model.KindRates)

	release, ok := l.TryAcquire(key)
	require.True(t, ok)

	_, ok = l.TryAcquire(key)
	assert.False(t, ok, "second acquire must fail while the lease is held")

	release()
	release2, ok := l.TryAcquire(key)
	require.True(t, ok, "lease must be free again after release")
	release2()
}

func TestDistinctStreamsDoNotContend(t *testing.T) {
	l := NewLeaseManager()
	releaseA, okA := l.TryAcquire(LeaseKey(1, model.KindInventory))
	require.True(t, okA)
	defer releaseA()

	releaseB, okB := l.TryAcquire(LeaseKey(1, model.KindRates))
	require.True(t, okB, "a different kind for the same property is a different stream")
	releaseB()
}
