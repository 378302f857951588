package flowstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/pkg/cache"
)

// CachedStore keeps the most recently loaded documents of another Store in
// a bounded LRU cache. Save and Delete go straight to the inner store and
// drop the cached copy, so a cached document is never newer than storage
// and at worst as old as this process's last write.
type CachedStore struct {
	inner  Store
	docs   cache.Cache[*FlowDocument]
	logger *slog.Logger
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps inner with a cache of at most size documents.
func NewCachedStore(inner Store, size int, opts ...StoreOption) (*CachedStore, error) {
	if inner == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: inner store", errors.ErrMissingConfig),
			"flowstore", "NewCachedStore", "store check")
	}
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	cacheOpts := []cache.Option[*FlowDocument]{
		cache.WithEvictionCallback(func(id string, _ *FlowDocument) {
			logger.Debug("Flow dropped from cache", "flow_id", id)
		}),
	}
	if cfg.metrics != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics[*FlowDocument](cfg.metrics, "flows"))
	}
	docs, err := cache.NewLRU(size, cacheOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "flowstore", "NewCachedStore", "cache setup")
	}
	return &CachedStore{inner: inner, docs: docs, logger: logger}, nil
}

// Save writes through. The cached copy is dropped whether or not the write
// succeeded: a version conflict means it is stale.
func (s *CachedStore) Save(ctx context.Context, doc *FlowDocument) (string, error) {
	if doc.ID != "" {
		s.forget(doc.ID)
	}
	return s.inner.Save(ctx, doc)
}

// Load serves a copy from the cache, falling back to the inner store.
func (s *CachedStore) Load(ctx context.Context, id string) (*FlowDocument, error) {
	if doc, ok := s.docs.Get(id); ok {
		return doc.Clone(), nil
	}
	doc, err := s.inner.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.docs.Set(id, doc.Clone()); err != nil {
		s.logger.Debug("Flow not cached", "flow_id", id, "error", err)
	}
	return doc, nil
}

// List always asks the inner store.
func (s *CachedStore) List(ctx context.Context) ([]Summary, error) {
	return s.inner.List(ctx)
}

// Delete removes the flow from the inner store and the cache.
func (s *CachedStore) Delete(ctx context.Context, id string) error {
	s.forget(id)
	return s.inner.Delete(ctx, id)
}

// Stats exposes cache hit and miss counts.
func (s *CachedStore) Stats() *cache.Statistics {
	return s.docs.Stats()
}

func (s *CachedStore) forget(id string) {
	if _, err := s.docs.Delete(id); err != nil {
		s.logger.Debug("Flow cache delete failed", "flow_id", id, "error", err)
	}
}
