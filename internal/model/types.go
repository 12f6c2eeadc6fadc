package model

import (
	"encoding/json"
	"time"
)

// -----------------------------------------------------------------------------
// Parking Types
// -----------------------------------------------------------------------------

// ZoneState is a complete snapshot of one parking zone. Updates replace the
// whole record; there is no partial-field merge.
type ZoneState struct {
	ID                      string  `json:"id"`
	Name                    string  `json:"name"`
	TotalSlots              int     `json:"totalSlots"`
	Occupied                int     `json:"occupied"`
	Free                    int     `json:"free"`
	Reserved                int     `json:"reserved"`
	AvailableForVisitors    int     `json:"availableForVisitors"`
	AvailableForSubscribers int     `json:"availableForSubscribers"`
	RateNormal              float64 `json:"rateNormal"`
	RateSpecial             float64 `json:"rateSpecial"`
	Open                    bool    `json:"open"`
	CategoryID              string  `json:"categoryId"`
}

// Category groups zones that share a rate card.
type Category struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	RateNormal  float64 `json:"rateNormal"`
	RateSpecial float64 `json:"rateSpecial"`
}

// Gate is an entry point. Its ZoneIDs list is the channel-membership list
// used to derive "zones for gate X".
type Gate struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ZoneIDs  []string `json:"zoneIds"`
	Location string   `json:"location,omitempty"`
}

// -----------------------------------------------------------------------------
// Admin Audit Types
// -----------------------------------------------------------------------------

// AdminUpdate is the admin-update payload as sent by the server.
type AdminUpdate struct {
	AdminID    string          `json:"adminId"`
	Action     string          `json:"action"`
	TargetType string          `json:"targetType"`
	TargetID   string          `json:"targetId"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// AuditEntry is an AdminUpdate stamped with a local id and time when it
// was appended to the audit history. Entries are never modified.
type AuditEntry struct {
	ID         string          `json:"id"`
	AdminID    string          `json:"adminId"`
	Action     string          `json:"action"`
	TargetType string          `json:"targetType"`
	TargetID   string          `json:"targetId"`
	Details    json.RawMessage `json:"details,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}
