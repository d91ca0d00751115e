package calendar

import (
	"sync"
	"time"
)

// RecencyFilter suppresses duplicate push deliveries. Providers fan the
// same change out once per watched calendar, so identical fingerprints
// arrive in bursts. The filter is per-instance and lossy; the state
// machine's validity check remains the authority.
type RecencyFilter struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	swept  time.Time
}

func NewRecencyFilter(window time.Duration) *RecencyFilter {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &RecencyFilter{
		window: window,
		seen:   make(map[string]time.Time),
		swept:  time.Now(),
	}
}

// Seen reports whether the fingerprint was recorded within the window and
// marks it either way. Expired entries are evicted lazily, at most once
// per window.
func (f *RecencyFilter) Seen(fingerprint string) bool {
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if now.Sub(f.swept) >= f.window {
		for fp, at := range f.seen {
			if now.Sub(at) >= f.window {
				delete(f.seen, fp)
			}
		}
		f.swept = now
	}

	at, ok := f.seen[fingerprint]
	f.seen[fingerprint] = now
	return ok && now.Sub(at) < f.window
}

// Len returns the current entry count. Used by tests and the health
// endpoint's cache stats.
func (f *RecencyFilter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
