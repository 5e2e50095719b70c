package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, store CounterStore) (*Tracker, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 10, 22, 0, 0, 0, time.UTC))
	return NewTracker(store, clock, nil), clock
}

func TestTracker_CheckAndConsume(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t, NewMemoryCounter())

	avail, err := tr.CheckAvailability(ctx, "tomorrow", 3)
	require.NoError(t, err)
	assert.Equal(t, Availability{Used: 0, Remaining: 3, Exceeded: false}, avail)

	_, err = tr.Consume(ctx, "tomorrow", "timelines")
	require.NoError(t, err)
	_, err = tr.Consume(ctx, "tomorrow", "route")
	require.NoError(t, err)
	n, err := tr.Consume(ctx, "tomorrow", "timelines")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	avail, err = tr.CheckAvailability(ctx, "tomorrow", 3)
	require.NoError(t, err)
	assert.Equal(t, Availability{Used: 3, Remaining: 0, Exceeded: true}, avail)

	other, err := tr.CheckAvailability(ctx, "openmeteo", 3)
	require.NoError(t, err)
	assert.False(t, other.Exceeded)
}

func TestTracker_OvershootClampsRemaining(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t, NewMemoryCounter())

	for range 5 {
		_, err := tr.Consume(ctx, "p", "timelines")
		require.NoError(t, err)
	}

	avail, err := tr.CheckAvailability(ctx, "p", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, avail.Used)
	assert.Equal(t, 0, avail.Remaining)
	assert.True(t, avail.Exceeded)
}

func TestTracker_DateRollover(t *testing.T) {
	ctx := context.Background()
	tr, clock := newTestTracker(t, NewMemoryCounter())

	for range 3 {
		_, err := tr.Consume(ctx, "p", "timelines")
		require.NoError(t, err)
	}
	assert.Equal(t, "2026-05-10", tr.Today())

	clock.Advance(3 * time.Hour)
	assert.Equal(t, "2026-05-11", tr.Today())

	avail, err := tr.CheckAvailability(ctx, "p", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, avail.Remaining)
	assert.False(t, avail.Exceeded)
}

func TestMemoryCounter_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCounter()
	key := Key{Date: "2026-05-10", Provider: "p", Endpoint: "route"}

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				_, _ = m.Increment(ctx, key)
			}
		}()
	}
	wg.Wait()

	used, err := m.Usage(ctx, "2026-05-10", "p")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), used)
}

func TestMemoryCounter_DropsOldDays(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCounter()

	_, _ = m.Increment(ctx, Key{Date: "2026-05-10", Provider: "p", Endpoint: "a"})
	_, _ = m.Increment(ctx, Key{Date: "2026-05-11", Provider: "p", Endpoint: "a"})

	old, err := m.Usage(ctx, "2026-05-10", "p")
	require.NoError(t, err)
	assert.Zero(t, old)
}
