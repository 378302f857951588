// Package cache provides generic, thread-safe in-process caches.
//
//   - NewSimple: no eviction, entries live until deleted or cleared
//   - NewLRU: least-recently-used eviction once a size limit is reached
//
// Statistics are always collected; WithMetrics additionally exports them
// to Prometheus.
package cache

import (
	"github.com/c360/flowcanvas/errors"
)

// Cache is a generic key/value cache keyed by string.
type Cache[V any] interface {
	// Get returns the value and true if present.
	Get(key string) (V, bool)

	// Set stores value and reports whether a new entry was created.
	Set(key string, value V) (bool, error)

	// Delete removes key and reports whether it existed.
	Delete(key string) (bool, error)

	// Clear removes all entries.
	Clear() error

	Size() int

	// Keys returns the current keys. LRU caches return most recent first.
	Keys() []string

	Stats() *Statistics

	Close() error
}

// EvictCallback is called with each entry removed by Delete, Clear or
// LRU eviction. It runs outside the cache lock.
type EvictCallback[V any] func(key string, value V)

// NewSimple creates a cache with no eviction policy.
func NewSimple[V any](options ...Option[V]) (Cache[V], error) {
	opts := collect(options)
	rec, err := newRecorder(opts)
	if err != nil {
		return nil, errors.WrapTransient(err, "cache", "NewSimple", "metrics registration")
	}
	return &simpleCache[V]{
		items:   make(map[string]V),
		rec:     rec,
		evictFn: opts.onEvict,
	}, nil
}

// NewLRU creates a cache holding at most maxSize entries.
func NewLRU[V any](maxSize int, options ...Option[V]) (Cache[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewLRU", "max size check")
	}
	opts := collect(options)
	rec, err := newRecorder(opts)
	if err != nil {
		return nil, errors.WrapTransient(err, "cache", "NewLRU", "metrics registration")
	}
	return newLRUCache[V](maxSize, rec, opts.onEvict), nil
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
