package audit

import (
	"sort"
	"strings"

	"github.com/rickgao/parking-sync/internal/model"
)

// Sort fields accepted by Filter.SortBy.
const (
	SortByTimestamp = "timestamp"
	SortByAction    = "action"
	SortByAdmin     = "admin"
)

// Filter selects and orders audit entries. Zero values match everything.
type Filter struct {
	Action   string // case-insensitive substring of the action
	TargetID string // exact target id
	AdminID  string // exact admin id
	Text     string // case-insensitive substring of the details JSON
	SortBy   string // timestamp (default), action or admin
	Asc      bool   // ascending; default is descending
	Limit    int    // 0 = no limit
}

// Query returns the entries matching f. The stored history is not
// reordered.
func (r *Ring) Query(f Filter) []model.AuditEntry {
	entries := r.Entries()

	action := strings.ToLower(f.Action)
	text := strings.ToLower(f.Text)

	out := entries[:0]
	for _, e := range entries {
		if action != "" && !strings.Contains(strings.ToLower(e.Action), action) {
			continue
		}
		if f.TargetID != "" && e.TargetID != f.TargetID {
			continue
		}
		if f.AdminID != "" && e.AdminID != f.AdminID {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(string(e.Details)), text) {
			continue
		}
		out = append(out, e)
	}

	// Stable so equal keys keep newest-first order.
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if f.Asc {
			a, b = b, a
		}
		switch f.SortBy {
		case SortByAction:
			return a.Action > b.Action
		case SortByAdmin:
			return a.AdminID > b.AdminID
		default:
			return a.Timestamp.After(b.Timestamp)
		}
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
