package ratelimit

import (
	"sync"
	"time"
)

// Window is a per-user sliding-window counter: at most max events in any trailing window.
type Window struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[string][]time.Time
}

func NewWindow(max int, window time.Duration) *Window {
	if max <= 0 {
		max = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Window{max: max, window: window, hits: make(map[string][]time.Time)}
}

// Allow drops expired timestamps for userID and records now if the user is under the limit.
// A rejected attempt is not recorded.
func (w *Window) Allow(userID string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := trim(w.hits[userID], now.Add(-w.window))
	if len(kept) >= w.max {
		w.hits[userID] = kept
		return false
	}
	w.hits[userID] = append(kept, now)
	return true
}

// Prune forgets users with no timestamps inside the window.
func (w *Window) Prune(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := now.Add(-w.window)
	for id, ts := range w.hits {
		if kept := trim(ts, cutoff); len(kept) == 0 {
			delete(w.hits, id)
		} else {
			w.hits[id] = kept
		}
	}
}

// Size is the number of tracked users.
func (w *Window) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.hits)
}

func (w *Window) Limit() int            { return w.max }
func (w *Window) Period() time.Duration { return w.window }

// trim keeps timestamps strictly after cutoff. Timestamps are appended in order.
func trim(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	out := make([]time.Time, len(ts)-i)
	copy(out, ts[i:])
	return out
}
