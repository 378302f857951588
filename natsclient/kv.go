package natsclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// KVEntry is a value with the revision needed for CAS updates.
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVStore provides revision-aware operations on one bucket.
type KVStore struct {
	bucket  jetstream.KeyValue
	timeout time.Duration
	logger  *slog.Logger
}

// NewKVStore wraps bucket. Operations time out after timeout; zero disables it.
func (c *Client) NewKVStore(bucket jetstream.KeyValue) *KVStore {
	return &KVStore{bucket: bucket, timeout: c.timeout, logger: c.logger}
}

func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.timeout > 0 {
		return context.WithTimeout(ctx, kv.timeout)
	}
	return ctx, func() {}
}

// Get retrieves a value with its revision.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if IsKVNotFoundError(err) {
			return nil, ErrKVKeyNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Put writes without a revision check.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("kv put %s: %w", key, err)
	}
	kv.logger.Debug("KV put", "key", key, "revision", rev)
	return rev, nil
}

// Create writes only if key does not exist.
func (kv *KVStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Create(ctx, key, value)
	if err != nil {
		if IsKVConflictError(err) {
			return 0, ErrKVKeyExists
		}
		return 0, fmt.Errorf("kv create %s: %w", key, err)
	}
	kv.logger.Debug("KV create", "key", key, "revision", rev)
	return rev, nil
}

// Update writes only if the stored revision equals revision.
func (kv *KVStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Update(ctx, key, value, revision)
	if err != nil {
		if IsKVConflictError(err) {
			return 0, ErrKVRevisionMismatch
		}
		return 0, fmt.Errorf("kv update %s: %w", key, err)
	}
	kv.logger.Debug("KV update", "key", key, "old_revision", revision, "revision", rev)
	return rev, nil
}

// Delete removes a key.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if IsKVNotFoundError(err) {
			return ErrKVKeyNotFound
		}
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	kv.logger.Debug("KV delete", "key", key)
	return nil
}

// Keys lists every live key. An empty bucket yields an empty slice.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	keys, err := kv.bucket.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	return keys, nil
}

// KV errors
var (
	ErrKVKeyNotFound      = errors.New("kv: key not found")
	ErrKVKeyExists        = errors.New("kv: key already exists")
	ErrKVRevisionMismatch = errors.New("kv: revision mismatch (concurrent update)")
)

// IsKVNotFoundError reports a missing or deleted key.
func IsKVNotFoundError(err error) bool {
	return errors.Is(err, ErrKVKeyNotFound) ||
		errors.Is(err, jetstream.ErrKeyNotFound) ||
		errors.Is(err, jetstream.ErrKeyDeleted)
}

// IsKVConflictError reports a create over an existing key or an update
// against a stale revision.
func IsKVConflictError(err error) bool {
	if errors.Is(err, ErrKVRevisionMismatch) || errors.Is(err, ErrKVKeyExists) || errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
