// Package api is the client for the parking REST API.
//
// The sync layer only reads seed snapshots from it:
//   - GET /zones
//   - GET /categories
//   - GET /gates
//
// Mutations (check-in, checkout, admin updates) are issued by other parts
// of the front-end and are not covered here.
package api
