// Package model defines the parking domain types shared by the sync layer.
//
// Conventions:
//   - JSON keys are camelCase, matching the wire feed and the REST API
//   - Rates are decimal currency units per hour as sent by the server
//   - IDs are opaque strings assigned by the server (zones, gates, categories)
//     or generated locally (audit entries)
package model
