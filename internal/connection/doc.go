// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Maintains one WebSocket transport to the occupancy feed
//   - Handles reconnection with capped exponential backoff
//   - Sends an application-level ping every 30s while open
//   - Queues outbound messages while not open and flushes them on open
//   - Tracks wanted topics (Subscription Registry) and replays them on open
//   - Parses inbound envelopes and emits them on the Event Dispatcher
package connection
