package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rickgao/parking-sync/internal/audit"
	"github.com/rickgao/parking-sync/internal/clock"
	"github.com/rickgao/parking-sync/internal/connection"
	"github.com/rickgao/parking-sync/internal/model"
	"github.com/rickgao/parking-sync/internal/zonecache"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type stubBackend struct {
	mu         sync.Mutex
	stats      connection.Stats
	stale      bool
	cache      *zonecache.Cache
	ring       *audit.Ring
	reconnects int
}

func (b *stubBackend) Status() string          { return "connected" }
func (b *stubBackend) Cache() *zonecache.Cache { return b.cache }
func (b *stubBackend) Audit() *audit.Ring      { return b.ring }

func (b *stubBackend) ConnectionStats() connection.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *stubBackend) IsDataStale() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stale
}

func (b *stubBackend) ForceReconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconnects++
}

func (b *stubBackend) update(fn func(*stubBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func newTestServer(t *testing.T) (*httptest.Server, *stubBackend) {
	t.Helper()

	c := clock.Fake(epoch)
	backend := &stubBackend{
		stats: connection.Stats{
			Connected:            true,
			State:                connection.StateOpen,
			MaxReconnectAttempts: 5,
			Subscriptions:        []string{"gate_1"},
			LastConnected:        epoch,
		},
		cache: zonecache.New(nil, c, nil),
		ring:  audit.New(nil, c, nil),
	}

	backend.cache.SeedZones([]model.ZoneState{{ID: "zone_a", Occupied: 1}, {ID: "zone_b", Occupied: 2}}, time.Time{})
	backend.cache.SetGates([]model.Gate{{ID: "gate_1", ZoneIDs: []string{"zone_b", "zone_a"}}})
	require.NoError(t, backend.cache.UpdateZone(model.ZoneState{ID: "zone_a", Occupied: 7}))

	for i, action := range []string{"close-zone", "open-zone", "close-zone"} {
		c.Advance(time.Second)
		backend.ring.AddEntry(model.AdminUpdate{
			AdminID:  fmt.Sprintf("admin_%d", i%2),
			Action:   action,
			TargetID: "zone_a",
		})
	}

	server := httptest.NewServer(NewServer(zaptest.NewLogger(t), backend).Handler())
	t.Cleanup(server.Close)

	return server, backend
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_Health(t *testing.T) {
	server, backend := newTestServer(t)

	var health healthResponse
	assert.Equal(t, http.StatusOK, getJSON(t, server.URL+"/health", &health))
	assert.Equal(t, "healthy", health.Status)

	backend.update(func(b *stubBackend) { b.stale = true })
	assert.Equal(t, http.StatusOK, getJSON(t, server.URL+"/health", &health))
	assert.Equal(t, "degraded", health.Status)

	backend.update(func(b *stubBackend) {
		b.stats.Connected = false
		b.stats.Exhausted = true
	})
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, server.URL+"/health", nil))
}

func TestServer_Status(t *testing.T) {
	server, _ := newTestServer(t)

	var status statusResponse
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/status", &status))

	assert.Equal(t, "connected", status.Status)
	assert.Equal(t, "OPEN", status.State)
	assert.Equal(t, []string{"gate_1"}, status.Subscriptions)
	assert.Equal(t, 3, status.AuditEntries)
	require.NotNil(t, status.LastConnected)
	assert.True(t, status.LastConnected.Equal(epoch))
	assert.Nil(t, status.LastDisconnected)
	require.NotNil(t, status.LastUpdateTime)
}

func TestServer_Zones(t *testing.T) {
	server, _ := newTestServer(t)

	var zones []model.ZoneState
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/zones", &zones))
	require.Len(t, zones, 2)
	assert.Equal(t, 7, zones[0].Occupied)

	var entry zonecache.CacheEntry
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/zones/zone_a", &entry))
	assert.Equal(t, 7, entry.Occupied)
	assert.True(t, entry.LastUpdated.Equal(epoch))

	// Seeded but never merged.
	var seeded zonecache.CacheEntry
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/zones/zone_b", &seeded))
	assert.Equal(t, 2, seeded.Occupied)
	assert.True(t, seeded.LastUpdated.IsZero())

	assert.Equal(t, http.StatusNotFound, getJSON(t, server.URL+"/zones/zone_x", nil))
}

func TestServer_GateZones(t *testing.T) {
	server, _ := newTestServer(t)

	var zones []model.ZoneState
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/gates/gate_1/zones", &zones))
	require.Len(t, zones, 2)
	assert.Equal(t, "zone_b", zones[0].ID)

	assert.Equal(t, http.StatusNotFound, getJSON(t, server.URL+"/gates/gate_9/zones", nil))
}

func TestServer_Audit(t *testing.T) {
	server, _ := newTestServer(t)

	var entries []model.AuditEntry
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/audit", &entries))
	require.Len(t, entries, 3)
	assert.True(t, entries[0].Timestamp.After(entries[1].Timestamp))

	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/audit?action=close&order=asc", &entries))
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Timestamp.Before(entries[1].Timestamp))

	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/audit?admin=admin_1&limit=5", &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "open-zone", entries[0].Action)

	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/audit?limit=1", &entries))
	assert.Len(t, entries, 1)

	for _, query := range []string{"limit=abc", "limit=-1", "sort=name", "order=up"} {
		assert.Equal(t, http.StatusBadRequest, getJSON(t, server.URL+"/audit?"+query, nil), query)
	}
}

func TestServer_Reconnect(t *testing.T) {
	server, backend := newTestServer(t)

	resp, err := http.Post(server.URL+"/reconnect", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	backend.update(func(b *stubBackend) {
		assert.Equal(t, 1, b.reconnects)
	})

	assert.Equal(t, http.StatusMethodNotAllowed, getJSON(t, server.URL+"/reconnect", nil))
}
