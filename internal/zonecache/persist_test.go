package zonecache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/parking-sync/internal/model"
	"github.com/rickgao/parking-sync/internal/store"
)

func TestCache_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	src, _, _ := newTestCache(t)
	src.SeedZones([]model.ZoneState{zone("zone_b", 2)}, time.Time{})
	require.NoError(t, src.UpdateZone(zone("zone_a", 10)))
	src.SetCategories([]model.Category{{ID: "cat_1", Name: "Premium"}})
	src.SetGates([]model.Gate{{ID: "gate_1", ZoneIDs: []string{"zone_a"}}})
	src.SetOfflineMode(true)
	require.NoError(t, src.Save(ctx, s))

	dst, _, _ := newTestCache(t)
	ok, err := dst.Load(ctx, s)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Len(t, dst.Zones(), 2)
	entry, found := dst.GetCachedZoneState("zone_a")
	require.True(t, found)
	assert.Equal(t, 10, entry.Occupied)
	assert.True(t, entry.LastUpdated.Equal(epoch))
	assert.True(t, dst.LastUpdateTime().Equal(epoch))
	assert.True(t, dst.IsOfflineMode())
	assert.Equal(t, "Premium", dst.Categories()[0].Name)

	zones, ok := dst.ZonesForGate("gate_1")
	require.True(t, ok)
	assert.Len(t, zones, 1)
}

func TestCache_LoadNothingSaved(t *testing.T) {
	cache, _, _ := newTestCache(t)

	ok, err := cache.Load(context.Background(), store.NewMemory())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, cache.IsDataStale(DefaultMaxAge))
}

func TestCache_SavedRecordShape(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	cache, _, _ := newTestCache(t)
	require.NoError(t, cache.UpdateZone(zone("zone_a", 10)))
	require.NoError(t, cache.Save(ctx, s))

	data, err := s.Get(ctx, StateKey)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"schemaVersion", "zones", "categories", "cachedZoneStates", "lastUpdateTime", "offlineMode"} {
		assert.Contains(t, raw, key)
	}
	assert.JSONEq(t, `1`, string(raw["schemaVersion"]))
}

func TestDecodeState_MigratesLegacyRecord(t *testing.T) {
	updated := time.Date(2025, 11, 2, 14, 30, 0, 0, time.UTC)
	ms := updated.UnixMilli()

	legacy := map[string]any{
		"zones":      []any{map[string]any{"id": "zone_a", "occupied": 7}},
		"categories": []any{map[string]any{"id": "cat_1", "name": "Standard"}},
		"cachedZoneStates": map[string]any{
			"zone_a": map[string]any{"id": "zone_a", "occupied": 7, "lastUpdated": ms},
		},
		"lastUpdateTime": ms,
		"offlineMode":    true,
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)

	state, err := DecodeState(data)
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, state.SchemaVersion)
	assert.True(t, state.LastUpdateTime.Equal(updated))
	assert.True(t, state.OfflineMode)
	require.Contains(t, state.CachedZoneStates, "zone_a")
	assert.Equal(t, 7, state.CachedZoneStates["zone_a"].Occupied)
	assert.True(t, state.CachedZoneStates["zone_a"].LastUpdated.Equal(updated))
}

func TestDecodeState_LegacyNeverUpdated(t *testing.T) {
	state, err := DecodeState([]byte(`{"zones":[],"lastUpdateTime":null,"offlineMode":false}`))
	require.NoError(t, err)
	assert.True(t, state.LastUpdateTime.IsZero())
}

func TestDecodeState_Errors(t *testing.T) {
	_, err := DecodeState([]byte(`{"schemaVersion":7}`))
	assert.ErrorIs(t, err, ErrUnsupportedSchema)

	_, err = DecodeState([]byte(`not json`))
	assert.Error(t, err)
}

func TestCache_RestoreKeepsNewerUpdateTime(t *testing.T) {
	cache, _, c := newTestCache(t)

	c.Advance(time.Hour)
	require.NoError(t, cache.UpdateZone(zone("zone_a", 1)))

	cache.Restore(PersistedState{SchemaVersion: SchemaVersion, LastUpdateTime: epoch})
	assert.Equal(t, epoch.Add(time.Hour), cache.LastUpdateTime())
}

func TestCache_RestoredEntriesYieldToFreshSnapshot(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	src, _, _ := newTestCache(t)
	require.NoError(t, src.UpdateZone(zone("zone_a", 10)))
	require.NoError(t, src.Save(ctx, s))

	dst, _, c := newTestCache(t)
	c.Advance(48 * time.Hour)
	ok, err := dst.Load(ctx, s)
	require.NoError(t, err)
	require.True(t, ok)

	dst.SeedZones([]model.ZoneState{zone("zone_a", 90)}, time.Time{})

	z, found := dst.Zone("zone_a")
	require.True(t, found)
	assert.Equal(t, 90, z.Occupied)
}
