package sla

import (
	"sync"
	"time"
)

// suppressionCache remembers recent firings per (work item, event).
// Two rules: a repeat of the same event is swallowed inside the
// cooldown window, and a recorded breach swallows warnings for the
// same item until the breach ages out.
type suppressionCache struct {
	cooldown time.Duration

	mu      sync.Mutex
	entries map[suppressionKey]time.Time
}

type suppressionKey struct {
	itemID string
	event  Event
}

func newSuppressionCache(cooldown time.Duration) *suppressionCache {
	return &suppressionCache{
		cooldown: cooldown,
		entries:  map[suppressionKey]time.Time{},
	}
}

// shouldFire reports whether the event may fire now and, when it may,
// records the firing.
func (c *suppressionCache) shouldFire(itemID string, event Event, now time.Time) bool {
	if event == EventNone {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if event == EventWarning {
		if firedAt, ok := c.entries[suppressionKey{itemID: itemID, event: EventBreach}]; ok && now.Sub(firedAt) < c.cooldown {
			return false
		}
	}
	if firedAt, ok := c.entries[suppressionKey{itemID: itemID, event: event}]; ok && now.Sub(firedAt) < c.cooldown {
		return false
	}

	c.entries[suppressionKey{itemID: itemID, event: event}] = now
	return true
}

// prune drops entries older than 3x the cooldown to bound memory.
func (c *suppressionCache) prune(now time.Time) {
	horizon := 3 * c.cooldown

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, firedAt := range c.entries {
		if now.Sub(firedAt) > horizon {
			delete(c.entries, key)
		}
	}
}

func (c *suppressionCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
