package audit

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rickgao/parking-sync/internal/clock"
	"github.com/rickgao/parking-sync/internal/dispatch"
	"github.com/rickgao/parking-sync/internal/model"
)

// MaxEntries is the history capacity.
const MaxEntries = 50

// Ring is the Audit Ring Buffer. Entries are ordered newest first and are
// never modified after being appended.
type Ring struct {
	clock    clock.Clock
	logger   *zap.Logger
	listener *dispatch.Listener

	mu      sync.RWMutex
	entries []model.AuditEntry
}

// New creates a ring and registers it for admin-update on d. A nil
// dispatcher leaves the ring unattached.
func New(d *dispatch.Dispatcher, c clock.Clock, logger *zap.Logger) *Ring {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Ring{
		clock:  c,
		logger: logger.Named("audit"),
	}
	if d != nil {
		r.listener = d.On(dispatch.EventAdminUpdate, r.handleAdminUpdate)
	}
	return r
}

// Close unregisters the admin-update listener.
func (r *Ring) Close() {
	r.mu.Lock()
	l := r.listener
	r.listener = nil
	r.mu.Unlock()

	l.Cancel()
}

// AddEntry stamps u with a new id and the current time, prepends it and
// evicts the oldest entries beyond MaxEntries.
func (r *Ring) AddEntry(u model.AdminUpdate) model.AuditEntry {
	entry := model.AuditEntry{
		ID:         uuid.NewString(),
		AdminID:    u.AdminID,
		Action:     u.Action,
		TargetType: u.TargetType,
		TargetID:   u.TargetID,
		Details:    append(json.RawMessage(nil), u.Details...),
		Timestamp:  r.clock.Now(),
	}

	r.mu.Lock()
	next := make([]model.AuditEntry, 0, min(len(r.entries)+1, MaxEntries))
	next = append(next, entry)
	next = append(next, r.entries...)
	if len(next) > MaxEntries {
		next = next[:MaxEntries]
	}
	r.entries = next
	r.mu.Unlock()

	return entry
}

// Entries returns a copy of the history, newest first.
func (r *Ring) Entries() []model.AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.AuditEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear empties the history.
func (r *Ring) Clear() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

func (r *Ring) handleAdminUpdate(data any) {
	u, err := decodeUpdate(data)
	if err != nil {
		r.logger.Debug("dropping admin update", zap.Error(err))
		return
	}

	entry := r.AddEntry(u)
	r.logger.Debug("admin update recorded",
		zap.String("id", entry.ID),
		zap.String("action", entry.Action),
		zap.String("target", entry.TargetID),
	)
}

func decodeUpdate(data any) (model.AdminUpdate, error) {
	var raw []byte
	switch v := data.(type) {
	case model.AdminUpdate:
		return v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		return model.AdminUpdate{}, fmt.Errorf("unexpected admin update payload %T", data)
	}

	var u model.AdminUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return model.AdminUpdate{}, fmt.Errorf("decode admin update: %w", err)
	}
	if u.Action == "" {
		return model.AdminUpdate{}, fmt.Errorf("admin update has no action")
	}
	return u, nil
}
