// Package ratelimit implements per-identity sliding-window admission
// control for the query endpoint.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultIdentity is the shared bucket for requests whose caller identity
// could not be resolved. Unknown callers are limited together rather than
// exempted.
const DefaultIdentity = "unknown"

// Limiter admits at most capacity requests per identity within a trailing
// window. Entries older than the window are pruned lazily on each check.
// Safe for concurrent use; admission is atomic per identity.
type Limiter struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	windows  map[string][]time.Time
	now      func() time.Time
}

// New creates a Limiter with the given capacity and window.
func New(capacity int, window time.Duration) *Limiter {
	return &Limiter{
		capacity: capacity,
		window:   window,
		windows:  map[string][]time.Time{},
		now:      time.Now,
	}
}

// Allow checks and records one request for identity. A denied request is
// not recorded.
func (l *Limiter) Allow(identity string) bool {
	if identity == "" {
		identity = DefaultIdentity
	}
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.windows[identity][:0]
	for _, t := range l.windows[identity] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.capacity {
		l.windows[identity] = recent
		return false
	}

	l.windows[identity] = append(recent, now)
	return true
}
