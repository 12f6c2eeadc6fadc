// Package zonecache materializes the zone-update feed into keyed zone
// state, answers staleness queries and carries the explicit offline flag.
//
// The cache is seeded from REST snapshots, kept current by the live feed
// and persisted as a versioned record so a restarted terminal can show
// cached data before the feed reconnects.
package zonecache
