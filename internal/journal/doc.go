// Package journal records connection lifecycle activity to PostgreSQL.
//
// Writer implements connection.Observer. Observations are queued without
// blocking the manager and written in batches by a background goroutine,
// either when a batch fills or on the flush interval.
package journal
