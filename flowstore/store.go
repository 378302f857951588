package flowstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/metric"
	"github.com/c360/flowcanvas/natsclient"
)

// DefaultBucket is the KV bucket holding flow documents.
const DefaultBucket = "flowcanvas_flows"

// Store persists flow documents.
//
// Save assigns an id, version and timestamps to doc when it is new and
// updates the stored copy otherwise, so saving twice never duplicates a
// flow. A non-zero doc.Version must match the stored version.
type Store interface {
	Save(ctx context.Context, doc *FlowDocument) (string, error)
	Load(ctx context.Context, id string) (*FlowDocument, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error
}

// StoreOption configures the stores in this package.
type StoreOption func(*storeConfig)

type storeConfig struct {
	logger  *slog.Logger
	metrics *metric.MetricsRegistry
	bucket  string
	now     func() time.Time
	newID   func() string
}

func defaultStoreConfig() *storeConfig {
	return &storeConfig{
		logger: slog.Default(),
		bucket: DefaultBucket,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// WithStoreLogger sets the logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(c *storeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStoreMetrics exports cache statistics of a CachedStore.
func WithStoreMetrics(registry *metric.MetricsRegistry) StoreOption {
	return func(c *storeConfig) {
		c.metrics = registry
	}
}

// WithBucket overrides DefaultBucket for KVStore.
func WithBucket(name string) StoreOption {
	return func(c *storeConfig) {
		if name != "" {
			c.bucket = name
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) {
		c.now = now
	}
}

// stamp prepares doc for its first write.
func (c *storeConfig) stamp(doc *FlowDocument) {
	if doc.ID == "" {
		doc.ID = c.newID()
	}
	now := c.now().UTC()
	doc.Version = 1
	doc.SchemaVersion = SchemaVersion
	doc.CreatedAt = now
	doc.UpdatedAt = now
}

// advance prepares doc to replace current.
func (c *storeConfig) advance(doc, current *FlowDocument, method string) error {
	if doc.Version != 0 && doc.Version != current.Version {
		return errors.WrapInvalid(
			fmt.Errorf("%w: expected version %d, stored %d", errors.ErrVersionConflict, doc.Version, current.Version),
			"flowstore", method, "version check")
	}
	doc.Version = current.Version + 1
	doc.SchemaVersion = SchemaVersion
	doc.CreatedAt = current.CreatedAt
	doc.UpdatedAt = c.now().UTC()
	return nil
}

func notFound(id, method string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrFlowNotFound, id), "flowstore", method, "flow lookup")
}

// SortSummaries orders summaries most recently updated first, then by id.
func SortSummaries(items []Summary) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// KVStore keeps documents in a NATS JetStream KV bucket keyed by flow id.
type KVStore struct {
	kv  *natsclient.KVStore
	cfg *storeConfig
}

// NewKVStore opens or creates the flow bucket.
func NewKVStore(ctx context.Context, client *natsclient.Client, opts ...StoreOption) (*KVStore, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "flowstore", "NewKVStore", "nats client cannot be nil")
	}
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.bucket,
		Description: "Flow documents",
		History:     10,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "NewKVStore", "create KV bucket")
	}
	return &KVStore{kv: client.NewKVStore(bucket), cfg: cfg}, nil
}

// Save implements Store.
func (s *KVStore) Save(ctx context.Context, doc *FlowDocument) (string, error) {
	if doc == nil {
		return "", errors.WrapInvalid(errors.ErrInvalidData, "flowstore", "Save", "flow cannot be nil")
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}

	if doc.ID != "" {
		entry, err := s.kv.Get(ctx, doc.ID)
		switch {
		case err == nil:
			return doc.ID, s.update(ctx, doc, entry)
		case !natsclient.IsKVNotFoundError(err):
			return "", errors.WrapTransient(err, "flowstore", "Save", "get current version")
		}
	}

	candidate := doc.Clone()
	s.cfg.stamp(candidate)
	data, err := Encode(candidate)
	if err != nil {
		return "", err
	}
	if _, err := s.kv.Create(ctx, candidate.ID, data); err != nil {
		if natsclient.IsKVConflictError(err) {
			return "", errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrVersionConflict, err),
				"flowstore", "Save", "flow already exists")
		}
		return "", errors.WrapTransient(err, "flowstore", "Save", "create in KV")
	}
	adoptWrite(doc, candidate)
	s.cfg.logger.Debug("Flow created", "flow_id", doc.ID)
	return doc.ID, nil
}

func (s *KVStore) update(ctx context.Context, doc *FlowDocument, entry *natsclient.KVEntry) error {
	current, err := Decode(entry.Value)
	if err != nil {
		return errors.WrapFatal(err, "flowstore", "Save", "decode stored flow")
	}
	candidate := doc.Clone()
	if err := s.cfg.advance(candidate, current, "Save"); err != nil {
		return err
	}
	data, err := Encode(candidate)
	if err != nil {
		return err
	}
	if _, err := s.kv.Update(ctx, doc.ID, data, entry.Revision); err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrVersionConflict, err),
				"flowstore", "Save", "conflict: flow was modified concurrently")
		}
		return errors.WrapTransient(err, "flowstore", "Save", "update in KV")
	}
	adoptWrite(doc, candidate)
	s.cfg.logger.Debug("Flow updated", "flow_id", doc.ID, "version", doc.Version)
	return nil
}

// adoptWrite copies the fields a successful write assigned back to the caller.
func adoptWrite(doc, written *FlowDocument) {
	doc.ID = written.ID
	doc.Version = written.Version
	doc.SchemaVersion = written.SchemaVersion
	doc.CreatedAt = written.CreatedAt
	doc.UpdatedAt = written.UpdatedAt
}

// Load implements Store.
func (s *KVStore) Load(ctx context.Context, id string) (*FlowDocument, error) {
	if id == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "flowstore", "Load", "flow ID cannot be empty")
	}
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, notFound(id, "Load")
		}
		return nil, errors.WrapTransient(err, "flowstore", "Load", "get from KV")
	}
	doc, err := Decode(entry.Value)
	if err != nil {
		return nil, errors.WrapFatal(err, "flowstore", "Load", "decode flow")
	}
	return doc, nil
}

// List implements Store. Entries that fail to decode are skipped.
func (s *KVStore) List(ctx context.Context) ([]Summary, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "List", "list keys")
	}

	out := make([]Summary, 0, len(keys))
	for _, key := range keys {
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			if natsclient.IsKVNotFoundError(err) {
				continue
			}
			return nil, errors.WrapTransient(err, "flowstore", "List", "get from KV")
		}
		var doc FlowDocument
		if err := json.Unmarshal(entry.Value, &doc); err != nil {
			s.cfg.logger.Warn("Skipping undecodable flow", "flow_id", key, "error", err)
			continue
		}
		out = append(out, doc.Summarize())
	}
	SortSummaries(out)
	return out, nil
}

// Delete implements Store.
func (s *KVStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "flowstore", "Delete", "flow ID cannot be empty")
	}
	if _, err := s.kv.Get(ctx, id); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return notFound(id, "Delete")
		}
		return errors.WrapTransient(err, "flowstore", "Delete", "get from KV")
	}
	if err := s.kv.Delete(ctx, id); err != nil {
		return errors.WrapTransient(err, "flowstore", "Delete", "delete from KV")
	}
	return nil
}
