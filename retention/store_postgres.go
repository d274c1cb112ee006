package retention

import (
	"context"
	"encoding/json"

	"github.com/r3elabs/logwatch/infrastructure/configstore"
)

const (
	policyKind   = "retention-policy"
	metadataKind = "archive-metadata"
)

// PostgresPolicyStore is the §6 retention-policy configuration repository
// (a configstore.Store document table, shared with alarms.PostgresStore).
// Satisfies PolicyStore.
type PostgresPolicyStore struct {
	store *configstore.Store
}

// NewPostgresPolicyStore wraps an open configstore.Store.
func NewPostgresPolicyStore(store *configstore.Store) *PostgresPolicyStore {
	return &PostgresPolicyStore{store: store}
}

// Put creates or updates one retention policy (§6 retention management
// wire contract).
func (s *PostgresPolicyStore) Put(ctx context.Context, p Policy) error {
	return s.store.Put(ctx, policyKind, p.ID, p)
}

// Delete removes one retention policy by id.
func (s *PostgresPolicyStore) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, policyKind, id)
}

// ListEnabled loads every enabled retention policy, the set Scheduler.ApplyAll
// enforces on each daily run (§4.11).
func (s *PostgresPolicyStore) ListEnabled(ctx context.Context) ([]Policy, error) {
	var out []Policy
	err := s.store.List(ctx, policyKind, func(key string, data []byte) error {
		var p Policy
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.Enabled {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// PostgresMetadataStore persists ArchiveMetadata rows. Satisfies
// MetadataStore.
type PostgresMetadataStore struct {
	store *configstore.Store
}

// NewPostgresMetadataStore wraps an open configstore.Store.
func NewPostgresMetadataStore(store *configstore.Store) *PostgresMetadataStore {
	return &PostgresMetadataStore{store: store}
}

func (s *PostgresMetadataStore) Save(ctx context.Context, m Metadata) error {
	return s.store.Put(ctx, metadataKind, m.ID, m)
}

func (s *PostgresMetadataStore) Get(ctx context.Context, id string) (Metadata, error) {
	var m Metadata
	_, err := s.store.Get(ctx, metadataKind, id, &m)
	return m, err
}

func (s *PostgresMetadataStore) ListOlderThan(ctx context.Context, cutoffMs int64) ([]Metadata, error) {
	var out []Metadata
	err := s.store.List(ctx, metadataKind, func(key string, data []byte) error {
		var m Metadata
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		if m.CreatedAt <= cutoffMs {
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

func (s *PostgresMetadataStore) MarkUnavailable(ctx context.Context, id string) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	m.Available = false
	return s.Save(ctx, m)
}

func (s *PostgresMetadataStore) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, metadataKind, id)
}
