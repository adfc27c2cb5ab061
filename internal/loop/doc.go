// Package loop provides the designated execution context that listener
// callbacks are funneled through.
//
// A Loop owns one goroutine draining an unbounded FIFO Queue, so callbacks
// never run concurrently with each other and always run in submission
// order. Inline is the synchronous alternative for callers that already
// serialize access themselves (and for tests).
package loop
