// Package configstore implements a Postgres-backed repository for the
// small pieces of operator-managed configuration that outlive a process:
// saved alarms (C7) and retention policies and archive metadata (C11).
// Every row is one
// JSON document keyed by (kind, key), which keeps the schema stable while
// each caller's Go type evolves.
package configstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is a generic JSON document table reached over database/sql via
// sqlx, the same driver pairing (jmoiron/sqlx + lib/pq) the rest of the
// pack's Postgres-backed repositories use.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres and ensures the backing table exists.
func Open(ctx context.Context, dataSourceName string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dataSourceName)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-open *sqlx.DB, used by tests against go-sqlmock.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS logwatch_config_items (
	kind       TEXT NOT NULL,
	key        TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, key)
)`)
	return err
}

// Put upserts one document.
func (s *Store) Put(ctx context.Context, kind, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO logwatch_config_items (kind, key, data, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (kind, key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		kind, key, data)
	return err
}

// Get loads one document into v. Returns false if no row exists.
func (s *Store) Get(ctx context.Context, kind, key string, v interface{}) (bool, error) {
	var data []byte
	err := s.db.QueryRowxContext(ctx, `SELECT data FROM logwatch_config_items WHERE kind = $1 AND key = $2`, kind, key).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

// Delete removes one document.
func (s *Store) Delete(ctx context.Context, kind, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM logwatch_config_items WHERE kind = $1 AND key = $2`, kind, key)
	return err
}

// List loads every document of a kind. fn is called once per row in no
// particular order; returning an error from fn stops the scan.
func (s *Store) List(ctx context.Context, kind string, fn func(key string, data []byte) error) error {
	rows, err := s.db.QueryxContext(ctx, `SELECT key, data FROM logwatch_config_items WHERE kind = $1`, kind)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return err
		}
		if err := fn(key, data); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
