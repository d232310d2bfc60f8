package action

import (
	"sync"
	"time"
)

// ttlCache is the per-action memo for cachedRequest lookups. Entries live for
// a fixed TTL; expired entries are overwritten on the next fresh computation.
// It is the only long-lived mutable state an action owns.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]ttlEntry

	// now is swappable for tests.
	now func() time.Time
}

type ttlEntry struct {
	value   any
	expires time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{
		ttl:     ttl,
		entries: make(map[string]ttlEntry),
		now:     time.Now,
	}
}

// get returns the live value for key, if any.
func (c *ttlCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.value, true
}

// set stores value against key for the cache's TTL.
func (c *ttlCache) set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry{value: value, expires: c.now().Add(c.ttl)}
}
