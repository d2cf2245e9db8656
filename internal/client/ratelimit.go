package client

import (
	"sync"
	"time"
)

const (
	// rateLimit is the documented per-minute request budget.
	rateLimit = 50
	// rateWindowLength is the trailing interval the budget applies to.
	rateWindowLength = 60 * time.Second
)

// rateWindow is a sliding-window rate limiter over request timestamps.
// Reserve blocks the caller until a slot is free, then records the send.
// The window is process-local; concurrent processes sharing a credential can
// still exceed the remote limit.
type rateWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func newRateWindow(limit int, window time.Duration) *rateWindow {
	return &rateWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// reserve prunes timestamps older than the window, blocks while the window
// is full, and records one slot for the caller.
func (w *rateWindow) reserve() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	if len(w.stamps) >= w.limit {
		oldest := w.stamps[0]
		wait := w.window - now.Sub(oldest)
		if wait > 0 {
			w.sleep(wait)
		}
		now = w.now()
		w.prune(now)
	}

	w.stamps = append(w.stamps, now)
}

// prune drops timestamps that have aged out of the trailing window. Caller
// holds the lock.
func (w *rateWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	keep := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	w.stamps = keep
}

// pending returns the number of slots currently consumed.
func (w *rateWindow) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.stamps)
}
