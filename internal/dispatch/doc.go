// Package dispatch implements the Event Dispatcher.
//
// The Dispatcher:
//   - Fans inbound wire kinds (zone-update, admin-update) out to listeners
//   - Carries connection lifecycle events (connected, disconnected, error, ...)
//   - Returns a Listener handle per registration so callers cancel instead of
//     matching callbacks by identity
//   - Isolates listeners from each other: a panicking handler is recovered
package dispatch
