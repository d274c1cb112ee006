package alarms

import (
	"context"
	"encoding/json"

	"github.com/r3elabs/logwatch/infrastructure/configstore"
)

const alarmKind = "alarm"

// PostgresStore is the §6 alarm configuration repository: saved alarms
// persist as JSON documents in configstore's generic table. Satisfies
// Engine's Store (ListEnabled) and health.AlarmStore (Upsert).
type PostgresStore struct {
	store *configstore.Store
}

// NewPostgresStore wraps an open configstore.Store.
func NewPostgresStore(store *configstore.Store) *PostgresStore {
	return &PostgresStore{store: store}
}

// Upsert creates or updates one alarm. Satisfies health.AlarmStore, used
// by C12 to keep its four predefined alarms current.
func (s *PostgresStore) Upsert(ctx context.Context, a Alarm) error {
	return s.store.Put(ctx, alarmKind, a.ID, a)
}

// Delete removes one alarm by id (§6 alarm management wire contract).
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, alarmKind, id)
}

// Get loads one alarm by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Alarm, bool, error) {
	var a Alarm
	found, err := s.store.Get(ctx, alarmKind, id, &a)
	return a, found, err
}

// ListEnabled loads every enabled alarm, the set Engine.EvaluateAll runs
// each evaluation tick (§4.7).
func (s *PostgresStore) ListEnabled(ctx context.Context) ([]Alarm, error) {
	var out []Alarm
	err := s.store.List(ctx, alarmKind, func(key string, data []byte) error {
		var a Alarm
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		if a.Enabled {
			out = append(out, a)
		}
		return nil
	})
	return out, err
}

// ListAll loads every saved alarm regardless of enabled state, used by the
// §6 alarm management list endpoint.
func (s *PostgresStore) ListAll(ctx context.Context) ([]Alarm, error) {
	var out []Alarm
	err := s.store.List(ctx, alarmKind, func(key string, data []byte) error {
		var a Alarm
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, err
}
