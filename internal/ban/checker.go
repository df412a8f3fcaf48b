package ban

import (
	"context"
	"fmt"
	"time"
)

// Checker answers "is this user banned" cache-first and records new bans in both layers.
type Checker struct {
	store Store
	cache *Cache
	now   func() time.Time
}

func NewChecker(store Store, cache *Cache) *Checker {
	return &Checker{store: store, cache: cache, now: time.Now}
}

// Check consults the cache and falls back to the store on a miss, caching the result.
func (c *Checker) Check(ctx context.Context, userID string) (bool, error) {
	if banned, ok := c.cache.Get(userID, c.now()); ok {
		return banned, nil
	}
	banned, err := c.store.IsBanned(ctx, userID)
	if err != nil {
		return false, err
	}
	c.cache.Set(userID, banned, c.now())
	return banned, nil
}

// Ban writes the permanent record and flips the cache entry immediately.
func (c *Checker) Ban(ctx context.Context, userID, reason string) error {
	if err := c.store.Ban(ctx, userID, reason); err != nil {
		return fmt.Errorf("ban %s: %w", userID, err)
	}
	c.cache.MarkBanned(userID, c.now())
	return nil
}

// FilterBanned returns the subset of userIDs currently banned. Cached positives skip the store.
func (c *Checker) FilterBanned(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	var unknown []string
	now := c.now()
	for _, id := range userIDs {
		if banned, ok := c.cache.Get(id, now); ok && banned {
			out[id] = true
			continue
		}
		unknown = append(unknown, id)
	}
	if len(unknown) == 0 {
		return out, nil
	}
	found, err := c.store.BannedAmong(ctx, unknown)
	if err != nil {
		return nil, err
	}
	for id := range found {
		out[id] = true
		c.cache.MarkBanned(id, now)
	}
	return out, nil
}

func (c *Checker) Cache() *Cache { return c.cache }
func (c *Checker) Store() Store  { return c.store }
