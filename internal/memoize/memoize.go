// Package memoize provides a small per-instance cache for expensive
// derived values. Lazy kernel tensors use it so that size resolution,
// diagonal extraction, and evaluation each run at most once per
// instance, regardless of how many times they are requested.
package memoize

import "sync"

// Cache stores computed values keyed by name. The zero value is ready
// to use. All methods are safe for concurrent use.
//
// The cache-wide lock guards only the key table; each key carries its
// own lock held while computing. A compute callback may therefore call
// back into the same cache under a different key, which the cached
// quantities of a lazy kernel tensor do (evaluation consults size,
// densification consults evaluation). Recursion on the same key would
// be a genuine cycle and still deadlocks.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu    sync.Mutex
	done  bool
	value any
}

func (c *Cache) entry(key string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]*entry)
	}
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// GetOrCompute returns the cached value for key, computing and storing
// it on first use. If compute returns an error, nothing is stored and
// the next call retries. Concurrent calls for the same key serialize;
// at most one successful compute ever runs per key.
func (c *Cache) GetOrCompute(key string, compute func() (any, error)) (any, error) {
	e := c.entry(key)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return e.value, nil
	}
	v, err := compute()
	if err != nil {
		return nil, err
	}
	e.value = v
	e.done = true
	return v, nil
}

// Lookup returns the cached value for key without computing. A key
// whose compute is in flight counts as absent until it settles.
func (c *Cache) Lookup(key string) (any, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.done {
		return nil, false
	}
	return e.value, true
}

// Clear drops all cached values.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Get is a typed wrapper around Cache.GetOrCompute.
func Get[T any](c *Cache, key string, compute func() (T, error)) (T, error) {
	v, err := c.GetOrCompute(key, func() (any, error) {
		return compute()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
