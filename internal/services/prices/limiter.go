package prices

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/pulse/internal/common"
	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-window call quota plus a minimum spacing
// between consecutive calls. Callers take turns; a caller waiting for its
// turn can still be cancelled through its own context.
type RateLimiter struct {
	turn    chan struct{}
	clock   common.Clock
	quota   int
	window  time.Duration
	spacing *rate.Limiter

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// NewRateLimiter creates a limiter allowing quota calls per window with at least
// minSpacing between calls. quota <= 0 disables the window; minSpacing <= 0 disables spacing.
func NewRateLimiter(quota int, window, minSpacing time.Duration, clock common.Clock) *RateLimiter {
	if clock == nil {
		clock = common.SystemClock()
	}

	limit := rate.Inf
	if minSpacing > 0 {
		limit = rate.Every(minSpacing)
	}

	return &RateLimiter{
		turn:    make(chan struct{}, 1),
		clock:   clock,
		quota:   quota,
		window:  window,
		spacing: rate.NewLimiter(limit, 1),
	}
}

// NewPerMinuteLimiter creates a limiter with a 60s window
func NewPerMinuteLimiter(callsPerMinute int, minSpacing time.Duration, clock common.Clock) *RateLimiter {
	return NewRateLimiter(callsPerMinute, time.Minute, minSpacing, clock)
}

// Acquire blocks until a call may be issued and records it.
// A cancelled acquire returns ctx.Err() and records nothing.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case l.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.turn }()

	now := l.clock.Now()

	if l.quota > 0 {
		windowStart, count := l.currentWindow(now)
		if count >= l.quota {
			if err := l.sleep(ctx, l.window-now.Sub(windowStart)); err != nil {
				return err
			}
			now = l.clock.Now()
			l.setWindow(now, 0)
		}
	}

	reservation := l.spacing.ReserveN(now, 1)
	if delay := ceilMillisecond(reservation.DelayFrom(now)); delay > 0 {
		if err := l.sleep(ctx, delay); err != nil {
			reservation.CancelAt(l.clock.Now())
			return err
		}
	}

	l.mu.Lock()
	l.count++
	l.mu.Unlock()
	return nil
}

// Count returns the number of calls recorded in the current window
func (l *RateLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// currentWindow returns the current window, opening a new one when none is active at now
func (l *RateLimiter) currentWindow(now time.Time) (time.Time, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}
	return l.windowStart, l.count
}

func (l *RateLimiter) setWindow(start time.Time, count int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windowStart = start
	l.count = count
}

func (l *RateLimiter) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(d):
		return nil
	}
}

// ceilMillisecond rounds a reservation delay up to whole milliseconds.
// rate.Limiter converts tokens to durations in floating point, which can
// leave a delay a few nanoseconds under the configured spacing.
func ceilMillisecond(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	d = (d - time.Microsecond).Truncate(time.Millisecond)
	return d + time.Millisecond
}
