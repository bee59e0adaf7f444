package params

import (
	"context"
	"sync"
)

// Cache memoizes store reads for the lifetime of the process. Entries are
// written once and never invalidated.
//
// The fetch runs outside the lock: two callers racing on a cold key may both
// reach the store, and the later write wins with an identical value.
type Cache struct {
	store Store

	mu     sync.RWMutex
	values map[string]string
}

// NewCache creates an empty Cache in front of store.
func NewCache(store Store) *Cache {
	return &Cache{
		store:  store,
		values: make(map[string]string),
	}
}

// GetOrFetch returns the cached value for key, fetching it on first use.
// Failed fetches are not cached.
func (c *Cache) GetOrFetch(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	v, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := c.store.Get(ctx, key)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.values[key] = v
	c.mu.Unlock()
	return v, nil
}
