package zonecache

import (
	"sort"
	"time"

	"github.com/rickgao/parking-sync/internal/model"
)

// SeedZones replaces the zone collection with a REST snapshot taken at
// fetchedAt; a zero fetchedAt means now. A zone merged from the feed at or
// after fetchedAt keeps its merged value. Older merges, restored ones
// included, are superseded by the snapshot and their cache entries dropped.
// Seeding is not a feed merge: lastUpdateTime is unchanged.
func (c *Cache) SeedZones(zones []model.ZoneState, fetchedAt time.Time) {
	next := make(map[string]model.ZoneState, len(zones))
	for _, z := range zones {
		if z.ID == "" {
			continue
		}
		next[z.ID] = z
	}

	c.mu.Lock()
	if fetchedAt.IsZero() {
		fetchedAt = c.clock.Now()
	}
	for id, entry := range c.cached {
		if entry.LastUpdated.Before(fetchedAt) {
			delete(c.cached, id)
			continue
		}
		next[id] = entry.ZoneState
	}
	c.zones = next
	c.mu.Unlock()
}

// SetCategories replaces the category list.
func (c *Cache) SetCategories(categories []model.Category) {
	cp := make([]model.Category, len(categories))
	copy(cp, categories)

	c.mu.Lock()
	c.categories = cp
	c.mu.Unlock()
}

// SetGates replaces the gate membership lists.
func (c *Cache) SetGates(gates []model.Gate) {
	next := make(map[string]model.Gate, len(gates))
	for _, g := range gates {
		g.ZoneIDs = append([]string(nil), g.ZoneIDs...)
		next[g.ID] = g
	}

	c.mu.Lock()
	c.gates = next
	c.mu.Unlock()
}

// Zones returns every known zone ordered by id.
func (c *Cache) Zones() []model.ZoneState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.ZoneState, 0, len(c.zones))
	for _, z := range c.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Zone returns one zone.
func (c *Cache) Zone(id string) (model.ZoneState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	z, ok := c.zones[id]
	return z, ok
}

// Categories returns the category list.
func (c *Cache) Categories() []model.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Gates returns every known gate ordered by id.
func (c *Cache) Gates() []model.Gate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Gate, 0, len(c.gates))
	for _, g := range c.gates {
		g.ZoneIDs = append([]string(nil), g.ZoneIDs...)
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ZonesForGate returns the zones reachable from gateID in the gate's
// membership order. Zones not yet known are skipped. The second result is
// false if the gate is unknown.
func (c *Cache) ZonesForGate(gateID string) ([]model.ZoneState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	gate, ok := c.gates[gateID]
	if !ok {
		return nil, false
	}

	out := make([]model.ZoneState, 0, len(gate.ZoneIDs))
	for _, id := range gate.ZoneIDs {
		if z, ok := c.zones[id]; ok {
			out = append(out, z)
		}
	}
	return out, true
}
