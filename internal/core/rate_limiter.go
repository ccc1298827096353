package core

// rate_limiter.go throttles calls to the remote API with two overlapping
// sliding windows: at most MaxPerSecond requests in any trailing second and
// at most MaxPerMinute in any trailing minute.
//
// Callers are delayed, never rejected. The window is a sorted slice of
// request instants pruned to the trailing minute on every access, so memory
// stays bounded by MaxPerMinute regardless of import size.

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultMaxPerSecond is the remote API's per-second budget.
	DefaultMaxPerSecond = 50

	// DefaultMaxPerMinute is the remote API's per-minute budget.
	DefaultMaxPerMinute = 2500

	secondWindow = time.Second
	minuteWindow = time.Minute

	// Margins absorb clock and scheduler jitter.
	secondMargin = 10 * time.Millisecond
	minuteMargin = 100 * time.Millisecond
)

// RateStats is a snapshot of the limiter's windows.
type RateStats struct {
	RequestsLastSecond int `json:"requestsLastSecond"`
	RequestsLastMinute int `json:"requestsLastMinute"`
	MaxPerSecond       int `json:"maxPerSecond"`
	MaxPerMinute       int `json:"maxPerMinute"`
}

// RateLimiter is a dual sliding-window throttle. It is safe for concurrent
// use; the lock is released while a caller sleeps.
type RateLimiter struct {
	maxPerSecond int
	maxPerMinute int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	times []time.Time
}

// NewRateLimiter creates a limiter. Non-positive limits fall back to the
// defaults.
func NewRateLimiter(maxPerSecond, maxPerMinute int) *RateLimiter {
	if maxPerSecond <= 0 {
		maxPerSecond = DefaultMaxPerSecond
	}
	if maxPerMinute <= 0 {
		maxPerMinute = DefaultMaxPerMinute
	}
	return &RateLimiter{
		maxPerSecond: maxPerSecond,
		maxPerMinute: maxPerMinute,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// WaitForNextRequest blocks until one more request fits in both windows and
// records it. If ctx ends first, nothing is recorded and ctx.Err() is
// returned.
func (l *RateLimiter) WaitForNextRequest(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.now()
		wait := l.requiredWait(now)
		if wait <= 0 {
			l.times = append(l.times, now)
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// requiredWait prunes the window and returns how long the caller must wait
// before a request at now is allowed. Caller holds l.mu.
func (l *RateLimiter) requiredWait(now time.Time) time.Duration {
	l.prune(now)

	var wait time.Duration

	recent := l.countWithin(now, secondWindow)
	if recent >= l.maxPerSecond {
		oldestRecent := l.times[len(l.times)-recent]
		wait = oldestRecent.Add(secondWindow + secondMargin).Sub(now)
	}

	if len(l.times) >= l.maxPerMinute {
		w := l.times[0].Add(minuteWindow + minuteMargin).Sub(now)
		if w > wait {
			wait = w
		}
	}

	return wait
}

// prune drops instants older than the minute window. The slice is compacted
// in place so its backing array does not grow without bound.
func (l *RateLimiter) prune(now time.Time) {
	cut := 0
	for cut < len(l.times) && now.Sub(l.times[cut]) >= minuteWindow {
		cut++
	}
	if cut == 0 {
		return
	}
	n := copy(l.times, l.times[cut:])
	l.times = l.times[:n]
}

// countWithin counts instants in the trailing window. l.times is sorted.
func (l *RateLimiter) countWithin(now time.Time, window time.Duration) int {
	n := 0
	for i := len(l.times) - 1; i >= 0; i-- {
		if now.Sub(l.times[i]) >= window {
			break
		}
		n++
	}
	return n
}

// Stats returns the current window counts.
func (l *RateLimiter) Stats() RateStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	return RateStats{
		RequestsLastSecond: l.countWithin(now, secondWindow),
		RequestsLastMinute: len(l.times),
		MaxPerSecond:       l.maxPerSecond,
		MaxPerMinute:       l.maxPerMinute,
	}
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
