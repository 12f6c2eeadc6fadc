package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/parking-sync/internal/model"
	"github.com/rickgao/parking-sync/internal/store"
)

// StateKey is the store key of the persisted history.
const StateKey = "audit-history"

// SchemaVersion is the version written by Save.
const SchemaVersion = 1

// ErrUnsupportedSchema is returned for records newer than SchemaVersion.
var ErrUnsupportedSchema = errors.New("unsupported audit schema version")

// PersistedState is the durable form of the history.
type PersistedState struct {
	SchemaVersion int                `json:"schemaVersion"`
	Entries       []model.AuditEntry `json:"entries"`
}

// Save writes the history to s under StateKey.
func (r *Ring) Save(ctx context.Context, s store.Store) error {
	data, err := json.Marshal(PersistedState{
		SchemaVersion: SchemaVersion,
		Entries:       r.Entries(),
	})
	if err != nil {
		return fmt.Errorf("marshal audit history: %w", err)
	}
	if err := s.Put(ctx, StateKey, data); err != nil {
		return fmt.Errorf("save audit history: %w", err)
	}
	return nil
}

// Load replaces the history with the record under StateKey, keeping at
// most MaxEntries. It returns false when nothing has been saved yet.
func (r *Ring) Load(ctx context.Context, s store.Store) (bool, error) {
	data, err := s.Get(ctx, StateKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load audit history: %w", err)
	}

	var state PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return false, fmt.Errorf("decode audit history: %w", err)
	}
	if state.SchemaVersion > SchemaVersion {
		return false, fmt.Errorf("%w: %d", ErrUnsupportedSchema, state.SchemaVersion)
	}

	entries := state.Entries
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}

	r.mu.Lock()
	r.entries = append([]model.AuditEntry(nil), entries...)
	r.mu.Unlock()

	return true, nil
}
