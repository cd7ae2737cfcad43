// ABOUTME: Thread-safe TTL tracker for already-processed gateway event IDs
// ABOUTME: Prevents a redelivered join or response event from driving the dispatcher twice

package dedupe

import (
	"sync"
	"time"
)

// Tracker remembers event IDs for a TTL window so redelivered events can be
// dropped. Matrix sync can replay events after a reconnect; the dispatcher
// must see each event at most once.
type Tracker struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// NewTracker creates a tracker with the given TTL and maximum size.
// A background goroutine periodically drops expired entries.
func NewTracker(ttl time.Duration, maxSize int) *Tracker {
	t := &Tracker{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go t.cleanupLoop()
	return t
}

// Seen atomically checks whether the event ID was already processed within
// the TTL window, marking it as processed if not. Returns true for
// duplicates.
func (t *Tracker) Seen(eventID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if ts, ok := t.seen[eventID]; ok && now.Sub(ts) < t.ttl {
		return true
	}

	if len(t.seen) >= t.maxSize {
		t.evictLocked(now)
	}
	t.seen[eventID] = now
	return false
}

// evictLocked drops expired entries, falling back to the oldest entry when
// nothing has expired yet. Must be called with mu held.
func (t *Tracker) evictLocked(now time.Time) {
	var oldestKey string
	var oldestTS time.Time
	evicted := false

	for key, ts := range t.seen {
		if now.Sub(ts) >= t.ttl {
			delete(t.seen, key)
			evicted = true
			continue
		}
		if oldestKey == "" || ts.Before(oldestTS) {
			oldestKey, oldestTS = key, ts
		}
	}

	if !evicted && oldestKey != "" {
		delete(t.seen, oldestKey)
	}
}

// cleanupLoop periodically removes expired entries until Close is called.
func (t *Tracker) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			now := time.Now()
			for key, ts := range t.seen {
				if now.Sub(ts) >= t.ttl {
					delete(t.seen, key)
				}
			}
			t.mu.Unlock()
		case <-t.done:
			return
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		close(t.done)
		t.closed = true
	}
}
