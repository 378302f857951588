package cache

import (
	"sync"
)

// simpleCache stores items until they are deleted or cleared.
type simpleCache[V any] struct {
	mu      sync.RWMutex
	items   map[string]V
	rec     *recorder
	evictFn EvictCallback[V]
}

func (c *simpleCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	value, exists := c.items[key]
	c.mu.RUnlock()

	if exists {
		c.rec.op("hit")
	} else {
		c.rec.op("miss")
	}
	return value, exists
}

func (c *simpleCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = value
	size := len(c.items)
	c.mu.Unlock()

	c.rec.op("set")
	c.rec.size(size)
	return !exists, nil
}

func (c *simpleCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	value, exists := c.items[key]
	if exists {
		delete(c.items, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	if !exists {
		return false, nil
	}
	c.rec.op("delete")
	c.rec.size(size)
	if c.evictFn != nil {
		c.evictFn(key, value)
	}
	return true, nil
}

func (c *simpleCache[V]) Clear() error {
	c.mu.Lock()
	old := c.items
	c.items = make(map[string]V)
	c.mu.Unlock()

	c.rec.size(0)
	if c.evictFn != nil {
		for key, value := range old {
			c.evictFn(key, value)
		}
	}
	return nil
}

func (c *simpleCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *simpleCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys
}

func (c *simpleCache[V]) Stats() *Statistics { return c.rec.stats }

func (c *simpleCache[V]) Close() error { return nil }
