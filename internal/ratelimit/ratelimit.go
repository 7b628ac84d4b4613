// Package ratelimit implements a sliding-window request limiter.
package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultWindow is the window used throughout the widget.
const DefaultWindow = time.Minute

// Window admits at most limit requests per key within any rolling window.
// State is process-local; separate instances do not coordinate.
type Window struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	clock  clock.Clock
	hits   map[string][]time.Time
}

// New creates a limiter. A nil clock uses the wall clock.
func New(limit int, window time.Duration, clk clock.Clock) *Window {
	if clk == nil {
		clk = clock.New()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Window{
		limit:  limit,
		window: window,
		clock:  clk,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records a request for key and reports whether it is admitted.
// Rejected requests are not recorded. A limit <= 0 admits everything.
func (w *Window) Allow(key string) bool {
	if w.limit <= 0 {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	recent := w.prune(key, now)
	if len(recent) >= w.limit {
		return false
	}
	w.hits[key] = append(recent, now)
	return true
}

// Remaining returns how many requests key may still make right now.
func (w *Window) Remaining(key string) int {
	if w.limit <= 0 {
		return -1
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.limit - len(w.prune(key, w.clock.Now()))
}

// Sweep forgets keys with no request inside the window.
func (w *Window) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	removed := 0
	for key := range w.hits {
		if len(w.prune(key, now)) == 0 {
			delete(w.hits, key)
			removed++
		}
	}
	return removed
}

// prune drops timestamps that have left the window. Caller holds mu.
func (w *Window) prune(key string, now time.Time) []time.Time {
	ts := w.hits[key]
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= w.window {
		i++
	}
	if i > 0 {
		ts = append(ts[:0], ts[i:]...)
		w.hits[key] = ts
	}
	return ts
}
