package cache

import (
	"container/list"
	"sync"
)

type lruEntry[V any] struct {
	key   string
	value V
}

// lruCache evicts the least recently used entry once maxSize is exceeded.
type lruCache[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
	rec     *recorder
	evictFn EvictCallback[V]
}

func newLRUCache[V any](maxSize int, rec *recorder, evictFn EvictCallback[V]) *lruCache[V] {
	return &lruCache[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		rec:     rec,
		evictFn: evictFn,
	}
}

func (c *lruCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	element, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		c.rec.op("miss")
		var zero V
		return zero, false
	}
	c.order.MoveToFront(element)
	value := element.Value.(*lruEntry[V]).value
	c.mu.Unlock()

	c.rec.op("hit")
	return value, true
}

func (c *lruCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	if element, exists := c.items[key]; exists {
		element.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(element)
		c.mu.Unlock()
		c.rec.op("set")
		return false, nil
	}

	c.items[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value})
	var evicted []lruEntry[V]
	for len(c.items) > c.maxSize {
		back := c.order.Back()
		entry := back.Value.(*lruEntry[V])
		c.remove(back)
		evicted = append(evicted, *entry)
	}
	size := len(c.items)
	c.mu.Unlock()

	c.rec.op("set")
	c.rec.size(size)
	for _, e := range evicted {
		c.rec.op("eviction")
		if c.evictFn != nil {
			c.evictFn(e.key, e.value)
		}
	}
	return true, nil
}

func (c *lruCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	element, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return false, nil
	}
	entry := *element.Value.(*lruEntry[V])
	c.remove(element)
	size := len(c.items)
	c.mu.Unlock()

	c.rec.op("delete")
	c.rec.size(size)
	if c.evictFn != nil {
		c.evictFn(entry.key, entry.value)
	}
	return true, nil
}

func (c *lruCache[V]) Clear() error {
	c.mu.Lock()
	var entries []lruEntry[V]
	if c.evictFn != nil {
		for e := c.order.Back(); e != nil; e = e.Prev() {
			entries = append(entries, *e.Value.(*lruEntry[V]))
		}
	}
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()

	c.rec.size(0)
	for _, e := range entries {
		c.evictFn(e.key, e.value)
	}
	return nil
}

func (c *lruCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *lruCache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.items))
	for e := c.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*lruEntry[V]).key)
	}
	return keys
}

func (c *lruCache[V]) Stats() *Statistics { return c.rec.stats }

func (c *lruCache[V]) Close() error { return nil }

// remove must be called with c.mu held.
func (c *lruCache[V]) remove(element *list.Element) {
	delete(c.items, element.Value.(*lruEntry[V]).key)
	c.order.Remove(element)
}
