package prices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetOrFetchWithinTTL(t *testing.T) {
	clock := newFakeClock(date("2024-01-08"))
	cache := NewCache[float64]("current", 5*time.Minute, clock)

	calls := 0
	fetch := func(ctx context.Context) (float64, error) {
		calls++
		return 101.5, nil
	}

	v, err := cache.GetOrFetch(context.Background(), "AAPL", fetch)
	require.NoError(t, err)
	assert.Equal(t, 101.5, v)

	clock.Advance(4 * time.Minute)
	v, err = cache.GetOrFetch(context.Background(), "AAPL", fetch)
	require.NoError(t, err)
	assert.Equal(t, 101.5, v)
	assert.Equal(t, 1, calls)
}

func TestCache_StaleEntryRefetched(t *testing.T) {
	clock := newFakeClock(date("2024-01-08"))
	cache := NewCache[int]("series", time.Hour, clock)

	calls := 0
	fetch := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, _ = cache.GetOrFetch(context.Background(), "MSFT", fetch)
	clock.Advance(time.Hour)

	v, err := cache.GetOrFetch(context.Background(), "MSFT", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "entry at exactly ttl is stale")
	assert.Equal(t, 1, cache.Len(), "stale entry is overwritten, not duplicated")
}

func TestCache_ErrorsNotCached(t *testing.T) {
	cache := NewCache[int]("historical", time.Hour, newFakeClock(date("2024-01-08")))

	failing := errors.New("boom")
	_, err := cache.GetOrFetch(context.Background(), "GE", func(ctx context.Context) (int, error) {
		return 0, failing
	})
	require.ErrorIs(t, err, failing)

	_, ok := cache.Get("GE")
	assert.False(t, ok)

	v, err := cache.GetOrFetch(context.Background(), "GE", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
