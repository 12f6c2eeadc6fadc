// Package poller implements the snapshot reconciliation loop.
//
// The poller re-fetches the REST snapshot on a fixed interval and hands it
// to the zone cache, repairing any zone updates the live feed missed while
// the terminal was disconnected.
package poller
