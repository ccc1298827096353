package core

// job_limiter.go bounds how many import runs execute at once. Every run
// shares one RateLimiter, so extra parallel runs only split the same
// request budget; the default of one slot keeps the service a single
// worker.

import (
	"context"
	"errors"
	"time"
)

// ErrTooManyImports is returned when no run slot frees up in time.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

// ErrShuttingDown is returned for imports submitted after Shutdown began.
var ErrShuttingDown = errors.New("service is shutting down")

const (
	// DefaultMaxConcurrentImports is the default number of parallel runs.
	DefaultMaxConcurrentImports = 1

	// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
	DefaultMaxWaitTime = 30 * time.Second

	drainPollInterval = 50 * time.Millisecond
)

// JobLimiter is a counting semaphore over import runs.
type JobLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
}

// NewJobLimiter allows at most maxConcurrent runs; Acquire gives up after
// maxWait. Non-positive arguments select the defaults.
func NewJobLimiter(maxConcurrent int, maxWait time.Duration) *JobLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &JobLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting up to maxWait. The caller must Release it.
func (l *JobLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyImports
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *JobLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *JobLimiter) Release() {
	<-l.slots
}

// Active returns the number of runs holding a slot.
func (l *JobLimiter) Active() int {
	return len(l.slots)
}

// WaitForDrain blocks until no run holds a slot or ctx ends.
func (l *JobLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for l.Active() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// JobLimiterStatus is a snapshot for the limits endpoint.
type JobLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the current slot usage.
func (l *JobLimiter) Status() JobLimiterStatus {
	active := len(l.slots)
	return JobLimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - active,
		MaxConcurrent: cap(l.slots),
	}
}
