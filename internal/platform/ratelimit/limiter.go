// Package ratelimit implements a fixed-window request limiter keyed by an
// arbitrary identifier, typically "route:ip".
package ratelimit

import (
	"sync"
	"time"
)

const (
	defaultMaxRequests     = 60
	defaultWindow          = time.Minute
	defaultCleanupInterval = 5 * time.Minute
)

// Result reports the outcome of a limiter check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

type window struct {
	count     int
	resetTime time.Time
}

// Limiter tracks one counter and reset timestamp per key. The window fully
// resets once its reset time passes rather than sliding continuously; bursts at
// window boundaries can reach twice the nominal rate, which is accepted for
// O(1) memory per key.
type Limiter struct {
	mu          sync.Mutex
	windows     map[string]*window
	maxRequests int
	windowSize  time.Duration
	now         func() time.Time
	stopOnce    sync.Once
	stop        chan struct{}
}

// Option customises limiter construction.
type Option func(*Limiter)

// WithClock injects a deterministic clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithoutCleanup disables the background cleanup goroutine; callers drive
// Cleanup themselves.
func WithoutCleanup() Option {
	return func(l *Limiter) {
		l.stopOnce.Do(func() { close(l.stop) })
	}
}

// New constructs a limiter allowing maxRequests per window per key and starts
// a background cleanup loop for stale windows.
func New(maxRequests int, windowSize time.Duration, opts ...Option) *Limiter {
	if maxRequests <= 0 {
		maxRequests = defaultMaxRequests
	}
	if windowSize <= 0 {
		windowSize = defaultWindow
	}
	l := &Limiter{
		windows:     make(map[string]*window),
		maxRequests: maxRequests,
		windowSize:  windowSize,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.cleanupLoop()
	return l
}

// Allow records an attempt for identifier and reports whether it is permitted
// within the current window. Once the limit is reached further attempts in the
// same window are rejected without incrementing the counter.
func (l *Limiter) Allow(identifier string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[identifier]
	if !ok || now.After(w.resetTime) {
		w = &window{count: 1, resetTime: now.Add(l.windowSize)}
		l.windows[identifier] = w
		return Result{Allowed: true, Remaining: l.maxRequests - 1, ResetTime: w.resetTime}
	}

	if w.count >= l.maxRequests {
		return Result{Allowed: false, Remaining: 0, ResetTime: w.resetTime}
	}

	w.count++
	return Result{Allowed: true, Remaining: l.maxRequests - w.count, ResetTime: w.resetTime}
}

// Cleanup removes windows whose reset time has passed, bounding the key set to
// active traffic. Returns the number of windows removed.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if now.After(w.resetTime) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Close stops the background cleanup loop.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Cleanup()
		case <-l.stop:
			return
		}
	}
}
