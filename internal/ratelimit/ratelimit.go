package ratelimit

import (
	"sync"
	"time"
)

// Limiter defines the cooldown interface the workflow engine consumes.
// Allow and Touch are deliberately separate: a submission is checked before
// any store mutation and recorded only after it durably succeeds.
type Limiter interface {
	// Allow reports whether the submitter is outside their cooldown window.
	Allow(id int64) bool

	// Touch records an accepted submission for the submitter.
	Touch(id int64)

	// RetryAfter returns the time left until the submitter may submit again.
	RetryAfter(id int64) time.Duration
}

// CooldownLimiter is an in-memory cooldown map keyed by submitter identity.
// Entries are overwritten on Touch and checked lazily against the window;
// two near-simultaneous submissions may both pass Allow, which is an
// accepted weak guarantee.
type CooldownLimiter struct {
	mu     sync.RWMutex
	window time.Duration
	now    func() time.Time
	last   map[int64]time.Time
}

// NewCooldownLimiter creates a limiter with the given cooldown window.
func NewCooldownLimiter(window time.Duration) *CooldownLimiter {
	return &CooldownLimiter{
		window: window,
		now:    time.Now,
		last:   make(map[int64]time.Time),
	}
}

// NewCooldownLimiterWithClock is NewCooldownLimiter with a substitute clock
// for deterministic tests.
func NewCooldownLimiterWithClock(window time.Duration, now func() time.Time) *CooldownLimiter {
	l := NewCooldownLimiter(window)
	l.now = now
	return l
}

func (l *CooldownLimiter) Allow(id int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	last, ok := l.last[id]
	if !ok {
		return true
	}
	return l.now().Sub(last) >= l.window
}

func (l *CooldownLimiter) Touch(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last[id] = l.now()
}

func (l *CooldownLimiter) RetryAfter(id int64) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	last, ok := l.last[id]
	if !ok {
		return 0
	}
	left := l.window - l.now().Sub(last)
	if left < 0 {
		return 0
	}
	return left
}

// Cleanup removes expired entries to prevent unbounded growth.
func (l *CooldownLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, last := range l.last {
		if now.Sub(last) >= l.window {
			delete(l.last, id)
		}
	}
}

// StartCleanup starts a background goroutine to periodically drop expired
// entries.
func (l *CooldownLimiter) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			l.Cleanup()
		}
	}()
}

// Ensure CooldownLimiter implements Limiter
var _ Limiter = (*CooldownLimiter)(nil)
