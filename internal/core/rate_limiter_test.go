package core

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

// fakeClock advances only when the limiter sleeps or the test says so.
type fakeClock struct {
	t      time.Time
	slept  time.Duration
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps++
	c.slept += d
	c.t = c.t.Add(d)
	return nil
}

func newTestLimiter(clock *fakeClock, perSecond, perMinute int) *RateLimiter {
	l := NewRateLimiter(perSecond, perMinute)
	l.now = clock.Now
	l.sleep = clock.Sleep
	return l
}

func TestRateLimiter_Defaults(t *testing.T) {
	l := NewRateLimiter(0, -1)
	stats := l.Stats()

	if stats.MaxPerSecond != 50 {
		t.Errorf("MaxPerSecond = %d, want 50", stats.MaxPerSecond)
	}
	if stats.MaxPerMinute != 2500 {
		t.Errorf("MaxPerMinute = %d, want 2500", stats.MaxPerMinute)
	}
	if stats.RequestsLastSecond != 0 || stats.RequestsLastMinute != 0 {
		t.Errorf("fresh limiter stats = %+v, want zero counts", stats)
	}
}

func TestRateLimiter_NoWaitUnderBudget(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 50, 2500)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := l.WaitForNextRequest(ctx); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	if clock.sleeps != 0 {
		t.Errorf("sleeps = %d, want 0 for 50 calls", clock.sleeps)
	}
	if got := l.Stats().RequestsLastSecond; got != 50 {
		t.Errorf("RequestsLastSecond = %d, want 50", got)
	}
}

func TestRateLimiter_DelaysFiftyFirstCall(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 50, 2500)
	ctx := context.Background()

	start := clock.Now()
	var stamps []time.Time

	// 60 calls issued 5ms apart would take 300ms without throttling.
	for i := 0; i < 60; i++ {
		if err := l.WaitForNextRequest(ctx); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		stamps = append(stamps, clock.Now())
		clock.Advance(5 * time.Millisecond)
	}

	elapsed := stamps[50].Sub(start)
	if elapsed < 990*time.Millisecond {
		t.Errorf("51st call admitted after %v, want >= 990ms", elapsed)
	}
	if want := time.Second + secondMargin; elapsed != want {
		t.Errorf("51st call admitted after %v, want exactly %v", elapsed, want)
	}
}

func TestRateLimiter_MinuteWindow(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 1000, 100)
	ctx := context.Background()

	start := clock.Now()
	for i := 0; i < 100; i++ {
		if err := l.WaitForNextRequest(ctx); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		clock.Advance(10 * time.Millisecond)
	}

	if err := l.WaitForNextRequest(ctx); err != nil {
		t.Fatalf("101st call: %v", err)
	}

	elapsed := clock.Now().Sub(start)
	if want := time.Minute + minuteMargin; elapsed != want {
		t.Errorf("101st call admitted after %v, want %v", elapsed, want)
	}
}

func TestRateLimiter_WindowsNeverExceeded(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 50, 2500)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var stamps []time.Time
	for i := 0; i < 6000; i++ {
		if err := l.WaitForNextRequest(ctx); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		stamps = append(stamps, clock.Now())
		clock.Advance(time.Duration(rng.Intn(4)) * time.Millisecond)
	}

	// For every admitted request, count admissions in the trailing windows
	// ending at that instant.
	secStart, minStart := 0, 0
	for j, ts := range stamps {
		for ts.Sub(stamps[secStart]) >= time.Second {
			secStart++
		}
		for ts.Sub(stamps[minStart]) >= time.Minute {
			minStart++
		}
		if n := j - secStart + 1; n > 50 {
			t.Fatalf("request %d: %d requests within trailing second", j, n)
		}
		if n := j - minStart + 1; n > 2500 {
			t.Fatalf("request %d: %d requests within trailing minute", j, n)
		}
	}
}

func TestRateLimiter_PrunesOldInstants(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 50, 2500)
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		if err := l.WaitForNextRequest(ctx); err != nil {
			t.Fatal(err)
		}
	}
	clock.Advance(61 * time.Second)

	stats := l.Stats()
	if stats.RequestsLastMinute != 0 {
		t.Errorf("RequestsLastMinute = %d, want 0 after window passed", stats.RequestsLastMinute)
	}
	if len(l.times) != 0 {
		t.Errorf("retained %d instants, want 0", len(l.times))
	}
}

func TestRateLimiter_StatsDoNotRecord(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 50, 2500)

	if err := l.WaitForNextRequest(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		l.Stats()
	}

	if got := l.Stats().RequestsLastMinute; got != 1 {
		t.Errorf("RequestsLastMinute = %d, want 1", got)
	}
}

func TestRateLimiter_CancelledWhileWaiting(t *testing.T) {
	l := NewRateLimiter(1, 2500)
	ctx := context.Background()

	if err := l.WaitForNextRequest(ctx); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.WaitForNextRequest(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancellation took %v, want prompt return", elapsed)
	}
	if got := l.Stats().RequestsLastMinute; got != 1 {
		t.Errorf("RequestsLastMinute = %d, want 1 (cancelled call not recorded)", got)
	}
}
