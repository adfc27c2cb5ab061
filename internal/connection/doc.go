// Package connection manages one persistent WebSocket connection.
//
// The Manager:
//   - Opens a session through a pluggable Transport (Dialer is the
//     gorilla/websocket implementation)
//   - Tracks lifecycle status (Disconnected, Connecting, Connected,
//     Reconnecting, Closing)
//   - Reconnects with linear backoff, capped, and suspended while the
//     network is unavailable or after a manual Stop
//   - Delivers open/message/closing/closed/failure events to a Listener on
//     a single execution context, in the order the transport produced them
//   - Reacts to reachability changes fanned out by a reachability.Broadcaster
package connection
