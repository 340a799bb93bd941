// Package budget throttles calls to paid engines (scoring, link filtering)
// so a burst of jobs cannot exhaust a provider's quota.
package budget

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/quotesearch/errors"
)

// ErrRateLimited is returned by Allow when the window is full
var ErrRateLimited = errors.New("rate limit exceeded")

const (
	window = time.Minute
	// recheck bounds how long Wait sleeps before asking the clock again;
	// tests drive the clock independently of wall time.
	recheck = 100 * time.Millisecond
)

// Limiter admits at most limit calls in any sliding one-minute window.
// A nil Limiter or a limit <= 0 admits everything.
type Limiter struct {
	limit int
	now   func() time.Time

	mu    sync.Mutex
	calls []time.Time // admission times, oldest first
}

func NewLimiter(callsPerMinute int) *Limiter {
	return NewLimiterWithClock(callsPerMinute, time.Now)
}

// NewLimiterWithClock lets tests control time
func NewLimiterWithClock(callsPerMinute int, now func() time.Time) *Limiter {
	return &Limiter{limit: callsPerMinute, now: now}
}

// Unlimited reports whether every call is admitted
func (l *Limiter) Unlimited() bool {
	return l == nil || l.limit <= 0
}

// Allow admits one call or returns ErrRateLimited with the time until the
// next free slot as detail.
func (l *Limiter) Allow() error {
	if l.Unlimited() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.calls) < l.limit {
		l.calls = append(l.calls, now)
		return nil
	}

	err := errors.Wrapf(ErrRateLimited, "%d calls in the last minute (limit: %d)", len(l.calls), l.limit)
	return errors.WithDetailf(err, "next slot in %s", l.calls[0].Add(window).Sub(now).Round(time.Millisecond))
}

// Wait blocks until Allow succeeds or ctx ends
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if l.Allow() == nil {
			return nil
		}
		timer := time.NewTimer(recheck)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Stats returns the calls counted in the current window and the remaining
// capacity, or (0, -1) when unlimited.
func (l *Limiter) Stats() (inWindow, remaining int) {
	if l.Unlimited() {
		return 0, -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.calls), max(l.limit-len(l.calls), 0)
}

// Reset forgets every recorded call
func (l *Limiter) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.calls = l.calls[:0]
	l.mu.Unlock()
}

// prune drops calls that left the window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	l.calls = l.calls[i:]
}
