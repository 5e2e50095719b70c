package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/road-weather/internal/weather"
)

func entryAt(t *testing.T, key string, risk weather.RiskLevel, now time.Time) weather.CacheEntry {
	t.Helper()
	e, err := weather.NewCacheEntry(key, map[string]string{"k": key}, "tomorrow", risk, now)
	require.NoError(t, err)
	return e
}

func TestMemoryCache_SetGet(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := NewMemoryCache(0, clock)

	require.NoError(t, c.Set(ctx, entryAt(t, "10:20", weather.RiskLow, clock.Now())))

	got, err := c.Get(ctx, "10:20")
	require.NoError(t, err)
	assert.Equal(t, "tomorrow", got.Source)
	assert.Equal(t, 15*time.Minute, got.TTL())
}

func TestMemoryCache_Miss(t *testing.T) {
	c := NewMemoryCache(0, clockwork.NewFakeClock())

	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, weather.ErrCacheMiss)
}

func TestMemoryCache_ExpiresByRisk(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := NewMemoryCache(0, clock)

	require.NoError(t, c.Set(ctx, entryAt(t, "extreme", weather.RiskExtreme, clock.Now())))
	require.NoError(t, c.Set(ctx, entryAt(t, "low", weather.RiskLow, clock.Now())))

	clock.Advance(2 * time.Minute)

	_, err := c.Get(ctx, "extreme")
	assert.ErrorIs(t, err, weather.ErrCacheMiss)
	_, err = c.Get(ctx, "low")
	assert.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_Purge(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := NewMemoryCache(0, clock)

	require.NoError(t, c.Set(ctx, entryAt(t, "a", weather.RiskHigh, clock.Now())))
	require.NoError(t, c.Set(ctx, entryAt(t, "b", weather.RiskModerate, clock.Now())))

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_MaxEntries(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := NewMemoryCache(3, clock)

	require.NoError(t, c.Set(ctx, entryAt(t, "extreme", weather.RiskExtreme, clock.Now())))
	for i := range 3 {
		require.NoError(t, c.Set(ctx, entryAt(t, fmt.Sprintf("low-%d", i), weather.RiskLow, clock.Now())))
	}

	assert.Equal(t, 3, c.Len())
	_, err := c.Get(ctx, "extreme")
	assert.ErrorIs(t, err, weather.ErrCacheMiss, "entry closest to expiry is evicted first")
}
