package flowstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/c360/flowcanvas/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS flows (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	node_count  INTEGER NOT NULL,
	version     INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	body        BLOB NOT NULL
)`

// SQLiteStore keeps documents in a local SQLite database. Bodies are
// stored with ArchiveCodec; listing reads only the summary columns.
type SQLiteStore struct {
	db    *sql.DB
	codec *ArchiveCodec
	cfg   *storeConfig
	owned bool
}

// OpenSQLite opens (creating if needed) the database at path. Use
// ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string, opts ...StoreOption) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "flowstore", "OpenSQLite", "path cannot be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapFatal(err, "flowstore", "OpenSQLite", "open database")
	}
	// SQLite serialises writers; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStore(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLiteStore uses an existing handle and creates the table if needed.
func NewSQLiteStore(ctx context.Context, db *sql.DB, opts ...StoreOption) (*SQLiteStore, error) {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "NewSQLiteStore", "create table")
	}
	codec, err := NewArchiveCodec()
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, codec: codec, cfg: cfg}, nil
}

// Close releases the codec and, when OpenSQLite created it, the database.
func (s *SQLiteStore) Close() error {
	s.codec.Close()
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, doc *FlowDocument) (string, error) {
	if doc == nil {
		return "", errors.WrapInvalid(errors.ErrInvalidData, "flowstore", "Save", "flow cannot be nil")
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}

	if doc.ID != "" {
		current, err := s.Load(ctx, doc.ID)
		switch {
		case err == nil:
			return doc.ID, s.update(ctx, doc, current)
		case !stderrors.Is(err, errors.ErrFlowNotFound):
			return "", err
		}
	}

	candidate := doc.Clone()
	s.cfg.stamp(candidate)
	body, err := s.codec.Encode(candidate)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flows (id, name, description, node_count, version, created_at, updated_at, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		candidate.ID, candidate.Name, candidate.Description, len(candidate.Nodes), candidate.Version,
		candidate.CreatedAt.UnixNano(), candidate.UpdatedAt.UnixNano(), body)
	if err != nil {
		return "", errors.WrapTransient(err, "flowstore", "Save", "insert flow")
	}
	adoptWrite(doc, candidate)
	s.cfg.logger.Debug("Flow created", "flow_id", doc.ID)
	return doc.ID, nil
}

func (s *SQLiteStore) update(ctx context.Context, doc, current *FlowDocument) error {
	candidate := doc.Clone()
	if err := s.cfg.advance(candidate, current, "Save"); err != nil {
		return err
	}
	body, err := s.codec.Encode(candidate)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE flows SET name = ?, description = ?, node_count = ?, version = ?, updated_at = ?, body = ?
		 WHERE id = ? AND version = ?`,
		candidate.Name, candidate.Description, len(candidate.Nodes), candidate.Version,
		candidate.UpdatedAt.UnixNano(), body, candidate.ID, current.Version)
	if err != nil {
		return errors.WrapTransient(err, "flowstore", "Save", "update flow")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.WrapInvalid(errors.ErrVersionConflict, "flowstore", "Save",
			"conflict: flow was modified concurrently")
	}
	adoptWrite(doc, candidate)
	s.cfg.logger.Debug("Flow updated", "flow_id", doc.ID, "version", doc.Version)
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*FlowDocument, error) {
	if id == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "flowstore", "Load", "flow ID cannot be empty")
	}
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM flows WHERE id = ?`, id).Scan(&body)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id, "Load")
		}
		return nil, errors.WrapTransient(err, "flowstore", "Load", "query flow")
	}
	doc, err := s.codec.Decode(body)
	if err != nil {
		return nil, errors.WrapFatal(err, "flowstore", "Load", "decode flow")
	}
	return doc, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, node_count, version, created_at, updated_at FROM flows`)
	if err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "List", "query flows")
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		var created, updated int64
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Description, &sum.NodeCount, &sum.Version,
			&created, &updated); err != nil {
			return nil, errors.WrapTransient(err, "flowstore", "List", "scan row")
		}
		sum.CreatedAt = time.Unix(0, created).UTC()
		sum.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "List", "iterate rows")
	}
	SortSummaries(out)
	return out, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "flowstore", "Delete", "flow ID cannot be empty")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM flows WHERE id = ?`, id)
	if err != nil {
		return errors.WrapTransient(err, "flowstore", "Delete", "delete flow")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("rows affected: %w", err), "flowstore", "Delete", "delete flow")
	}
	if n == 0 {
		return notFound(id, "Delete")
	}
	return nil
}
