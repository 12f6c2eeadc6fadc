package zonecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rickgao/parking-sync/internal/model"
	"github.com/rickgao/parking-sync/internal/store"
)

// StateKey is the store key of the persisted cache record.
const StateKey = "zone-cache"

// SchemaVersion is the version written by Save.
const SchemaVersion = 1

// ErrUnsupportedSchema is returned for records newer than SchemaVersion.
var ErrUnsupportedSchema = errors.New("unsupported zone cache schema version")

// PersistedState is the durable subset of the cache. Connection state is
// never part of it.
type PersistedState struct {
	SchemaVersion    int                   `json:"schemaVersion"`
	Zones            []model.ZoneState     `json:"zones"`
	Categories       []model.Category      `json:"categories"`
	Gates            []model.Gate          `json:"gates,omitempty"`
	CachedZoneStates map[string]CacheEntry `json:"cachedZoneStates"`
	LastUpdateTime   time.Time             `json:"lastUpdateTime"`
	OfflineMode      bool                  `json:"offlineMode"`
}

// legacyState is the unversioned record with epoch-millisecond times.
type legacyState struct {
	Zones            []model.ZoneState      `json:"zones"`
	Categories       []model.Category       `json:"categories"`
	CachedZoneStates map[string]legacyEntry `json:"cachedZoneStates"`
	LastUpdateTime   *int64                 `json:"lastUpdateTime"`
	OfflineMode      bool                   `json:"offlineMode"`
}

type legacyEntry struct {
	model.ZoneState
	LastUpdated int64 `json:"lastUpdated"`
}

// Snapshot returns the persistable state.
func (c *Cache) Snapshot() PersistedState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := PersistedState{
		SchemaVersion:    SchemaVersion,
		Zones:            make([]model.ZoneState, 0, len(c.zones)),
		Categories:       make([]model.Category, len(c.categories)),
		CachedZoneStates: make(map[string]CacheEntry, len(c.cached)),
		LastUpdateTime:   c.lastUpdateTime,
		OfflineMode:      c.offline,
	}
	for _, z := range c.zones {
		state.Zones = append(state.Zones, z)
	}
	copy(state.Categories, c.categories)
	for _, g := range c.gates {
		state.Gates = append(state.Gates, g)
	}
	for id, e := range c.cached {
		state.CachedZoneStates[id] = e
	}

	return state
}

// Restore replaces the cache contents with state. lastUpdateTime never
// moves backwards.
func (c *Cache) Restore(state PersistedState) {
	zones := make(map[string]model.ZoneState, len(state.Zones))
	for _, z := range state.Zones {
		zones[z.ID] = z
	}
	cached := make(map[string]CacheEntry, len(state.CachedZoneStates))
	for id, e := range state.CachedZoneStates {
		cached[id] = e
		if _, ok := zones[id]; !ok {
			zones[id] = e.ZoneState
		}
	}
	gates := make(map[string]model.Gate, len(state.Gates))
	for _, g := range state.Gates {
		gates[g.ID] = g
	}
	categories := make([]model.Category, len(state.Categories))
	copy(categories, state.Categories)

	c.mu.Lock()
	c.zones = zones
	c.cached = cached
	c.gates = gates
	c.categories = categories
	if state.LastUpdateTime.After(c.lastUpdateTime) {
		c.lastUpdateTime = state.LastUpdateTime
	}
	c.offline = state.OfflineMode
	c.mu.Unlock()
}

// Save writes the snapshot to s under StateKey.
func (c *Cache) Save(ctx context.Context, s store.Store) error {
	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal zone cache: %w", err)
	}
	if err := s.Put(ctx, StateKey, data); err != nil {
		return fmt.Errorf("save zone cache: %w", err)
	}
	return nil
}

// Load restores the record stored under StateKey. It returns false when
// nothing has been saved yet.
func (c *Cache) Load(ctx context.Context, s store.Store) (bool, error) {
	data, err := s.Get(ctx, StateKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load zone cache: %w", err)
	}

	state, err := DecodeState(data)
	if err != nil {
		return false, err
	}
	c.Restore(state)

	c.logger.Info("zone cache restored",
		zap.Int("zones", len(state.Zones)),
		zap.Time("last_update", state.LastUpdateTime),
		zap.Bool("offline", state.OfflineMode),
	)
	return true, nil
}

// DecodeState parses a persisted record, migrating older schemas.
func DecodeState(data []byte) (PersistedState, error) {
	var header struct {
		SchemaVersion int `json:"schemaVersion"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return PersistedState{}, fmt.Errorf("decode zone cache: %w", err)
	}

	switch header.SchemaVersion {
	case 0:
		var legacy legacyState
		if err := json.Unmarshal(data, &legacy); err != nil {
			return PersistedState{}, fmt.Errorf("decode legacy zone cache: %w", err)
		}
		return migrateV0(legacy), nil
	case SchemaVersion:
		var state PersistedState
		if err := json.Unmarshal(data, &state); err != nil {
			return PersistedState{}, fmt.Errorf("decode zone cache: %w", err)
		}
		return state, nil
	default:
		return PersistedState{}, fmt.Errorf("%w: %d", ErrUnsupportedSchema, header.SchemaVersion)
	}
}

func migrateV0(legacy legacyState) PersistedState {
	state := PersistedState{
		SchemaVersion:    SchemaVersion,
		Zones:            legacy.Zones,
		Categories:       legacy.Categories,
		CachedZoneStates: make(map[string]CacheEntry, len(legacy.CachedZoneStates)),
		OfflineMode:      legacy.OfflineMode,
	}
	if legacy.LastUpdateTime != nil {
		state.LastUpdateTime = time.UnixMilli(*legacy.LastUpdateTime).UTC()
	}
	for id, e := range legacy.CachedZoneStates {
		state.CachedZoneStates[id] = CacheEntry{
			ZoneState:   e.ZoneState,
			LastUpdated: time.UnixMilli(e.LastUpdated).UTC(),
		}
	}
	return state
}
