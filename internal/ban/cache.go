package ban

import (
	"sync"
	"time"
)

type cacheEntry struct {
	banned  bool
	expires time.Time
}

// Cache mirrors ban lookups for a short TTL so the hot chat path skips the store.
// Entry expiry says nothing about the ban itself.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

// Get returns the cached answer; ok is false when missing or expired.
func (c *Cache) Get(userID string, now time.Time) (banned, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[userID]
	if !found {
		return false, false
	}
	if !now.Before(e.expires) {
		delete(c.entries, userID)
		return false, false
	}
	return e.banned, true
}

func (c *Cache) Set(userID string, banned bool, now time.Time) {
	c.mu.Lock()
	c.entries[userID] = cacheEntry{banned: banned, expires: now.Add(c.ttl)}
	c.mu.Unlock()
}

// MarkBanned records a fresh ban without waiting for the old entry to expire.
func (c *Cache) MarkBanned(userID string, now time.Time) { c.Set(userID, true, now) }

// Prune drops expired entries.
func (c *Cache) Prune(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, id)
		}
	}
}

func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
