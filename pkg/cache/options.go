package cache

import (
	"github.com/c360/flowcanvas/metric"
)

// Option tunes a cache at construction.
type Option[V any] func(*settings[V])

type settings[V any] struct {
	registry *metric.MetricsRegistry
	name     string
	onEvict  EvictCallback[V]
}

// WithMetrics exports the cache's operations and size under the cache
// label name. It is ignored unless both arguments are set.
func WithMetrics[V any](registry *metric.MetricsRegistry, name string) Option[V] {
	return func(s *settings[V]) {
		if registry == nil || name == "" {
			return
		}
		s.registry, s.name = registry, name
	}
}

// WithEvictionCallback calls fn for every entry that leaves the cache.
func WithEvictionCallback[V any](fn EvictCallback[V]) Option[V] {
	return func(s *settings[V]) { s.onEvict = fn }
}

func collect[V any](options []Option[V]) *settings[V] {
	s := new(settings[V])
	for _, apply := range options {
		if apply != nil {
			apply(s)
		}
	}
	return s
}
