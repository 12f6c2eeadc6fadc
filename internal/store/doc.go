// Package store persists small JSON documents under string keys.
//
// The zone cache and audit history save their versioned records here and
// rehydrate from them at startup. Only the record shape is fixed; the
// backend is chosen by configuration:
//   - file: one JSON file per key in a directory
//   - postgres: the sync_state table
//   - redis: one string value per prefixed key
//   - mongo: one document per key in the sync_state collection
//   - memory: process-local, for tests and ephemeral terminals
package store
