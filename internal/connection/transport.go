package connection

import "context"

// Request describes a session to open.
type Request struct {
	URL     string
	Session string // Tag carried by every Event of the session
}

// EventSink receives the events of one session, in order, from the
// transport's goroutine.
type EventSink func(Event)

// Transport opens WebSocket sessions.
type Transport interface {
	// Open starts a session and returns immediately. The handshake outcome
	// arrives through sink; an error is returned only when the request can
	// never succeed.
	Open(ctx context.Context, req Request, sink EventSink) (Handle, error)

	// CancelAll abandons every in-flight or open session of this transport.
	CancelAll()
}

// Handle is a session returned by Transport.Open.
type Handle interface {
	ID() string

	// Send queues a frame. It returns false if the session is not open or
	// its outbound queue is saturated.
	Send(f Frame) bool

	// Close starts the close handshake once queued frames are flushed. It
	// returns false if the session is already closing or finished.
	Close(code int, reason string) bool
}
