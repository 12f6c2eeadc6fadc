package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/parking-sync/internal/model"
)

func seedQueryRing(t *testing.T) *Ring {
	t.Helper()

	r, _, c := newTestRing(t)
	updates := []model.AdminUpdate{
		{AdminID: "alice", Action: "update-zone", TargetType: "zone", TargetID: "zone_a", Details: json.RawMessage(`{"rate":5}`)},
		{AdminID: "bob", Action: "close-zone", TargetType: "zone", TargetID: "zone_b", Details: json.RawMessage(`{"reason":"Maintenance"}`)},
		{AdminID: "alice", Action: "update-category", TargetType: "category", TargetID: "cat_1"},
		{AdminID: "carol", Action: "open-zone", TargetType: "zone", TargetID: "zone_b"},
	}
	for _, u := range updates {
		r.AddEntry(u)
		c.Advance(time.Minute)
	}
	return r
}

func targets(entries []model.AuditEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.AdminID + ":" + e.Action
	}
	return out
}

func TestQuery_DefaultIsNewestFirst(t *testing.T) {
	r := seedQueryRing(t)

	got := r.Query(Filter{})
	assert.Equal(t, []string{
		"carol:open-zone",
		"alice:update-category",
		"bob:close-zone",
		"alice:update-zone",
	}, targets(got))
}

func TestQuery_Filters(t *testing.T) {
	r := seedQueryRing(t)

	assert.Equal(t, []string{"carol:open-zone", "bob:close-zone", "alice:update-zone"},
		targets(r.Query(Filter{Action: "ZONE"})))

	assert.Equal(t, []string{"carol:open-zone", "bob:close-zone"},
		targets(r.Query(Filter{TargetID: "zone_b"})))

	assert.Equal(t, []string{"alice:update-category", "alice:update-zone"},
		targets(r.Query(Filter{AdminID: "alice"})))

	assert.Equal(t, []string{"bob:close-zone"},
		targets(r.Query(Filter{Text: "maintenance"})))

	assert.Empty(t, r.Query(Filter{AdminID: "alice", TargetID: "zone_b"}))
}

func TestQuery_Sorting(t *testing.T) {
	r := seedQueryRing(t)

	assert.Equal(t, []string{
		"alice:update-zone",
		"bob:close-zone",
		"alice:update-category",
		"carol:open-zone",
	}, targets(r.Query(Filter{Asc: true})))

	assert.Equal(t, []string{
		"bob:close-zone",
		"carol:open-zone",
		"alice:update-category",
		"alice:update-zone",
	}, targets(r.Query(Filter{SortBy: SortByAction, Asc: true})))

	// Equal admins keep newest-first order.
	assert.Equal(t, []string{
		"carol:open-zone",
		"bob:close-zone",
		"alice:update-category",
		"alice:update-zone",
	}, targets(r.Query(Filter{SortBy: SortByAdmin})))
}

func TestQuery_Limit(t *testing.T) {
	r := seedQueryRing(t)

	got := r.Query(Filter{Limit: 2})
	require.Len(t, got, 2)
	assert.Equal(t, "carol", got[0].AdminID)
}

func TestQuery_DoesNotMutateHistory(t *testing.T) {
	r := seedQueryRing(t)
	before := r.Entries()

	r.Query(Filter{SortBy: SortByAction, Asc: true})
	r.Query(Filter{AdminID: "alice"})

	assert.Equal(t, before, r.Entries())
}
