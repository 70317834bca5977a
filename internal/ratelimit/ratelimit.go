// Package ratelimit provides per-key sliding-window admission control.
// Keys are actor identifiers (wallet address, or wallet|campaign pairs);
// the engine wraps each exposed operation with its own limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits up to limit events per key within a sliding window.
// Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time

	now func() time.Time
}

// New creates a limiter admitting limit events per window.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an attempt for key and reports whether it is admitted.
// Rejected attempts are not recorded; a rejected caller retrying does not
// push its window further out.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.pruneLocked(key, now)
	if len(recent) >= l.limit {
		return false
	}
	l.hits[key] = append(recent, now)
	return true
}

// Remaining reports how many attempts key has left in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.pruneLocked(key, l.now())
	if len(recent) >= l.limit {
		return 0
	}
	return l.limit - len(recent)
}

// Prune drops keys with no activity inside the window. Callers run it on a
// timer to keep memory bounded under churning actors.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var dropped int
	for key := range l.hits {
		if len(l.pruneLocked(key, now)) == 0 {
			delete(l.hits, key)
			dropped++
		}
	}
	return dropped
}

// pruneLocked trims expired hits for key and returns the remainder. Caller
// holds the lock.
func (l *Limiter) pruneLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	hits := l.hits[key]

	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		hits = hits[i:]
		if len(hits) == 0 {
			delete(l.hits, key)
		} else {
			l.hits[key] = hits
		}
	}
	return hits
}
