// Package httpapi exposes a small operator surface over the sync service:
// connection status, the zone cache, the audit history and a manual
// reconnect trigger.
package httpapi
