package ephemeris

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

// Cache is an in-memory, thread-safe store of orbital elements keyed by
// satellite ID, backed by a Provider. An entry is reused while the
// requested time falls inside its validity window and refreshed from
// the provider once it lapses; a refresh failure keeps the stale entry
// out of circulation rather than serving it.
type Cache struct {
	mu       sync.RWMutex
	provider Provider
	entries  map[string]*model.OrbitalElements

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache constructs an empty cache over a provider.
func NewCache(provider Provider) *Cache {
	return &Cache{
		provider: provider,
		entries:  make(map[string]*model.OrbitalElements),
	}
}

// Elements returns the cached elements for satID when still valid for
// at, otherwise fetches from the provider and replaces the entry.
func (c *Cache) Elements(ctx context.Context, satID string, at time.Time) (*model.OrbitalElements, error) {
	c.mu.RLock()
	eph, ok := c.entries[satID]
	c.mu.RUnlock()

	if ok && valid(eph, at) {
		c.hits.Add(1)
		return eph, nil
	}

	fresh, err := c.provider.Elements(ctx, satID, at)
	if err != nil {
		return nil, fmt.Errorf("refreshing elements for %s: %w", satID, err)
	}

	c.misses.Add(1)
	c.mu.Lock()
	c.entries[satID] = fresh
	c.mu.Unlock()
	return fresh, nil
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached satellites.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func valid(eph *model.OrbitalElements, at time.Time) bool {
	if eph.ValidUntil.IsZero() {
		// Providers that do not declare a window get a refresh per
		// lookup beyond the exact fetch time.
		return eph.FetchedFor.Equal(at)
	}
	return !at.Before(eph.FetchedFor) && !at.After(eph.ValidUntil)
}
