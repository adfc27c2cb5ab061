// Package mockpeer is a WebSocket peer for exercising the connection
// manager by hand and in tests.
//
// Every connection receives a random integer from the current window
// [min, min+Span] on each tick. Whenever a client sends a close frame the
// window slides up by Step, so a reconnected client can tell from the
// numbers that it is talking to a fresh session.
package mockpeer
