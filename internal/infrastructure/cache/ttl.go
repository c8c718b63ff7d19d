// Package cache provides a small TTL memo cache for aggregation
// results. Entries expire lazily: an expired entry is treated as absent
// on the next Get and evicted at that point, no background sweeper.
package cache

import (
	"sync"
	"time"

	"github.com/teamspace/expense-ledger/internal/application/port"
)

type item struct {
	rows      []port.CategoryTotal
	expiresAt time.Time
}

// TTL is a mutex-guarded key/value cache with per-entry expiry. Stored
// and returned slices are copied both ways so callers can never mutate
// a cached result in place.
type TTL struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

// NewTTL creates an empty cache
func NewTTL() *TTL {
	return &TTL{
		items: make(map[string]item),
		now:   time.Now,
	}
}

// Get returns the cached rows for key. Expired entries count as absent
// and are evicted here.
func (c *TTL) Get(key string) ([]port.CategoryTotal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(it.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	return append([]port.CategoryTotal{}, it.rows...), true
}

// Set stores rows under key for ttl. A non-positive ttl disables caching
// for that entry.
func (c *TTL) Set(key string, rows []port.CategoryTotal, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item{
		rows:      append([]port.CategoryTotal{}, rows...),
		expiresAt: c.now().Add(ttl),
	}
}

// Len returns the number of live entries, counting not-yet-evicted
// expired ones. Used by tests.
func (c *TTL) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Verify interface compliance
var _ port.AggregateCache = (*TTL)(nil)
