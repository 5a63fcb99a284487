package prices

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_MinimumSpacing(t *testing.T) {
	clock := newFakeClock(date("2024-01-08"))
	limiter := NewRateLimiter(0, time.Minute, time.Second, clock)

	start := clock.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}

	assert.GreaterOrEqual(t, clock.Now().Sub(start), 2*time.Second)
}

func TestRateLimiter_WindowQuota(t *testing.T) {
	clock := newFakeClock(date("2024-01-08"))
	limiter := NewRateLimiter(2, time.Minute, 0, clock)

	start := clock.Now()
	require.NoError(t, limiter.Acquire(context.Background()))
	require.NoError(t, limiter.Acquire(context.Background()))
	assert.Equal(t, start, clock.Now(), "calls within quota should not wait")

	require.NoError(t, limiter.Acquire(context.Background()))
	assert.Equal(t, time.Minute, clock.Now().Sub(start))
	assert.Equal(t, 1, limiter.Count(), "third call opens a new window")
}

func TestRateLimiter_DefaultQuotaAndSpacing(t *testing.T) {
	clock := newFakeClock(date("2024-01-08"))
	limiter := NewPerMinuteLimiter(5, 12500*time.Millisecond, clock)

	start := clock.Now()
	for i := 0; i < 6; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}

	// Five spaced calls span 50s; the sixth lands at 62.5s in a fresh window
	assert.Equal(t, 62500*time.Millisecond, clock.Now().Sub(start))
	assert.Equal(t, 1, limiter.Count())
}

func TestRateLimiter_SpacingHoldsAcrossWindowReset(t *testing.T) {
	clock := newFakeClock(date("2024-01-08"))
	limiter := NewPerMinuteLimiter(5, 12500*time.Millisecond, clock)

	var issued []time.Time
	for i := 0; i < 11; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
		issued = append(issued, clock.Now())
	}

	for i := 1; i < len(issued); i++ {
		assert.GreaterOrEqual(t, issued[i].Sub(issued[i-1]), 12500*time.Millisecond, "gap before call %d", i+1)
	}
}

func TestCeilMillisecond(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, 0},
		{-time.Second, 0},
		{12500*time.Millisecond - time.Nanosecond, 12500 * time.Millisecond},
		{12500 * time.Millisecond, 12500 * time.Millisecond},
		{2500*time.Millisecond + 400*time.Microsecond, 2501 * time.Millisecond},
		{500 * time.Nanosecond, time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ceilMillisecond(tt.in))
		})
	}
}

func TestRateLimiter_CancelledWhileWaiting(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute, 0, stalledClock{now: date("2024-01-08")})

	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, limiter.Count(), "cancelled acquire must not be recorded")
}

func TestRateLimiter_QueuedCallerCancelled(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute, 0, stalledClock{now: date("2024-01-08")})
	require.NoError(t, limiter.Acquire(context.Background()))

	// First waiter holds the turn until its own deadline
	firstCtx, firstCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer firstCancel()
	firstDone := make(chan error, 1)
	go func() { firstDone <- limiter.Acquire(firstCtx) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := limiter.Acquire(ctx)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second, "queued caller must observe its own deadline")

	firstCancel()
	assert.ErrorIs(t, <-firstDone, context.Canceled)
	assert.Equal(t, 1, limiter.Count())
}

func TestRateLimiter_AlreadyCancelled(t *testing.T) {
	limiter := NewRateLimiter(5, time.Minute, time.Second, newFakeClock(date("2024-01-08")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, limiter.Acquire(ctx), context.Canceled)
	assert.Equal(t, 0, limiter.Count())
}
