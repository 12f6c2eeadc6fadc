package zonecache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rickgao/parking-sync/internal/clock"
	"github.com/rickgao/parking-sync/internal/dispatch"
	"github.com/rickgao/parking-sync/internal/model"
)

// DefaultMaxAge is the staleness threshold used when none is configured.
const DefaultMaxAge = 5 * time.Minute

// ErrInvalidZone is returned for zone updates without an id.
var ErrInvalidZone = errors.New("zone update has no id")

// CacheEntry is a zone snapshot plus the time it was merged.
type CacheEntry struct {
	model.ZoneState
	LastUpdated time.Time `json:"lastUpdated"`
}

// Cache is the Zone State Cache. It owns the canonical zone collection;
// every accessor returns copies.
type Cache struct {
	clock    clock.Clock
	logger   *zap.Logger
	listener *dispatch.Listener

	mu             sync.RWMutex
	zones          map[string]model.ZoneState
	cached         map[string]CacheEntry
	categories     []model.Category
	gates          map[string]model.Gate
	lastUpdateTime time.Time
	offline        bool
}

// New creates a cache and registers it for zone-update on d. A nil
// dispatcher leaves the cache unattached, for seeding-only use.
func New(d *dispatch.Dispatcher, c clock.Clock, logger *zap.Logger) *Cache {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := &Cache{
		clock:  c,
		logger: logger.Named("zonecache"),
		zones:  make(map[string]model.ZoneState),
		cached: make(map[string]CacheEntry),
		gates:  make(map[string]model.Gate),
	}

	if d != nil {
		cache.listener = d.On(dispatch.EventZoneUpdate, cache.handleZoneUpdate)
	}

	return cache
}

// Close unregisters the zone-update listener.
func (c *Cache) Close() {
	c.mu.Lock()
	l := c.listener
	c.listener = nil
	c.mu.Unlock()

	l.Cancel()
}

// UpdateZone replaces the record for z.ID and stamps it with the current
// time. Other zones are untouched.
func (c *Cache) UpdateZone(z model.ZoneState) error {
	if z.ID == "" {
		return ErrInvalidZone
	}

	now := c.clock.Now()
	entry := CacheEntry{ZoneState: z, LastUpdated: now}

	c.mu.Lock()
	c.zones[z.ID] = z
	c.cached[z.ID] = entry
	if now.After(c.lastUpdateTime) {
		c.lastUpdateTime = now
	}
	c.mu.Unlock()

	return nil
}

// GetCachedZoneState returns the latest entry for id.
func (c *Cache) GetCachedZoneState(id string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.cached[id]
	return entry, ok
}

// IsDataStale reports whether no update was ever merged or the newest
// merge is more than maxAge old. Exactly maxAge old is not stale.
func (c *Cache) IsDataStale(maxAge time.Duration) bool {
	c.mu.RLock()
	last := c.lastUpdateTime
	c.mu.RUnlock()

	if last.IsZero() {
		return true
	}
	return c.clock.Now().Sub(last) > maxAge
}

// LastUpdateTime returns the time of the newest merge, zero if none.
func (c *Cache) LastUpdateTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdateTime
}

// SetOfflineMode sets the explicit degraded-operation flag.
func (c *Cache) SetOfflineMode(offline bool) {
	c.mu.Lock()
	changed := c.offline != offline
	c.offline = offline
	c.mu.Unlock()

	if changed {
		c.logger.Info("offline mode changed", zap.Bool("offline", offline))
	}
}

// IsOfflineMode reports the explicit degraded-operation flag.
func (c *Cache) IsOfflineMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offline
}

// handleZoneUpdate decodes a zone-update payload. Payloads that cannot be
// decoded are dropped and leave the cache unchanged.
func (c *Cache) handleZoneUpdate(data any) {
	z, err := decodeZone(data)
	if err == nil {
		err = c.UpdateZone(z)
	}
	if err != nil {
		c.logger.Debug("dropping zone update", zap.Error(err))
	}
}

func decodeZone(data any) (model.ZoneState, error) {
	switch v := data.(type) {
	case model.ZoneState:
		return v, nil
	case *model.ZoneState:
		if v == nil {
			return model.ZoneState{}, ErrInvalidZone
		}
		return *v, nil
	case json.RawMessage:
		return unmarshalZone(v)
	case []byte:
		return unmarshalZone(v)
	default:
		return model.ZoneState{}, fmt.Errorf("unexpected zone update payload %T", data)
	}
}

func unmarshalZone(raw []byte) (model.ZoneState, error) {
	var z model.ZoneState
	if err := json.Unmarshal(raw, &z); err != nil {
		return model.ZoneState{}, fmt.Errorf("decode zone update: %w", err)
	}
	return z, nil
}
