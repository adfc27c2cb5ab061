// Package metrics exposes connection manager activity to Prometheus.
//
// Key metrics:
//   - Connection status per endpoint
//   - Status transitions and scheduled reconnects with their delays
//   - Send outcomes and dispatched events by kind
package metrics
