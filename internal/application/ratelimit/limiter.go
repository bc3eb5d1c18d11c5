// Package ratelimit implements fixed-window counters keyed by "operation:identity".
//
// A window opens on the first call for a key and admits up to max calls until it
// expires; the next call after expiry opens a fresh window with count 1. Callers
// can issue up to 2*max calls across a window boundary, which is acceptable for
// coarse abuse prevention.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of a single Check.
type Result struct {
	Allowed   bool
	Remaining int
	// ResetIn is the time left in the current window. Only meaningful when Allowed is false.
	ResetIn time.Duration
}

// Limiter counts calls per key in fixed windows.
type Limiter interface {
	Check(ctx context.Context, key string, max int, window time.Duration) (Result, error)
}

// Key builds the composite key used for an operation and identity.
func Key(operation, identity string) string {
	return operation + ":" + identity
}

type memWindow struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps windows in process memory. State is lost on restart and is
// not shared between instances; use RedisLimiter for multi-instance deployments.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memWindow
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*memWindow),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Check(_ context.Context, key string, max int, window time.Duration) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.windows[key] = &memWindow{count: 1, resetAt: now.Add(window)}
		return Result{Allowed: true, Remaining: max - 1}, nil
	}
	if w.count >= max {
		return Result{Allowed: false, Remaining: 0, ResetIn: w.resetAt.Sub(now)}, nil
	}
	w.count++
	return Result{Allowed: true, Remaining: max - w.count}, nil
}

// Sweep drops windows that have already expired and returns how many were removed.
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
			n++
		}
	}
	return n
}

// RunJanitor sweeps expired windows every interval until ctx is done.
func (l *MemoryLimiter) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
