// Package cache holds computed dashboard aggregates for a short while so
// every page load does not replay the same queries against the database.
package cache

import (
	"sync"
	"time"
)

// DefaultCapacity bounds the number of live entries. When an insert
// pushes the count past the bound, the entry with the oldest timestamp
// is dropped.
const DefaultCapacity = 100

type entry struct {
	value    any
	storedAt time.Time
}

// Cache is a bounded key/value store with per-read TTL checks. Safe for
// concurrent use. Two goroutines missing on the same key may both run
// the compute function; the recomputation is idempotent, so last write
// wins.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]entry
	capacity int
	now      func() time.Time
}

// New constructs a Cache. A capacity <= 0 falls back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		entries:  make(map[string]entry),
		capacity: capacity,
		now:      time.Now,
	}
}

// GetOrCompute returns the stored value for key when it is younger than
// ttl, otherwise runs compute and stores its result. A failed compute is
// not stored, so the next call retries.
func (c *Cache) GetOrCompute(key string, ttl time.Duration, compute func() (any, error)) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Sub(e.storedAt) < ttl {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	value, err := compute()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = entry{value: value, storedAt: c.now()}
	if len(c.entries) > c.capacity {
		c.evictOldest()
	}
	c.mu.Unlock()
	return value, nil
}

// Clear drops every entry. Write paths call it so the next dashboard
// read sees fresh rows.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.storedAt
			found = true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

// GetOrCompute runs fn through c while keeping the concrete result type
// at the call site.
func GetOrCompute[T any](c *Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	v, err := c.GetOrCompute(key, ttl, func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
