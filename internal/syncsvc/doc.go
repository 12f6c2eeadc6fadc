// Package syncsvc assembles the real-time sync layer for one terminal
// session: the feed connection, zone cache, audit history, persistence
// and REST reconciliation.
//
// A Service is created once by main. Init rehydrates persisted state,
// seeds from the REST API and connects; Dispose saves state and tears
// everything down.
package syncsvc
