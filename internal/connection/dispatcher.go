package connection

import (
	"fmt"
	"log/slog"

	"github.com/rickgao/wslink/internal/loop"
)

// EventKind tags an Event.
type EventKind int

const (
	EventOpened EventKind = iota
	EventMessage
	EventClosing
	EventClosed
	EventFailed
	EventReconnect
	EventOffline
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventClosing:
		return "closing"
	case EventClosed:
		return "closed"
	case EventFailed:
		return "failed"
	case EventReconnect:
		return "reconnect"
	case EventOffline:
		return "offline"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a connection event. Which fields are set depends on Kind.
type Event struct {
	Kind    EventKind
	Session string

	Info    OpenInfo // Opened, Failed
	Handle  Handle   // Opened
	Message Message  // Message
	Code    int      // Closing, Closed
	Reason  string   // Closing, Closed
	Err     error    // Failed
}

// terminal reports whether the event ends its session.
func (e Event) terminal() bool {
	return e.Kind == EventClosing || e.Kind == EventClosed || e.Kind == EventFailed
}

// dispatcher delivers events to the listener on the executor. Callers must
// submit the events of one session sequentially to keep them in order.
type dispatcher struct {
	exec     loop.Executor
	listener Listener
	offline  OfflineListener
	logger   *slog.Logger
}

func newDispatcher(exec loop.Executor, l Listener, logger *slog.Logger) *dispatcher {
	d := &dispatcher{exec: exec, listener: l, logger: logger}
	if ol, ok := l.(OfflineListener); ok {
		d.offline = ol
	}
	return d
}

func (d *dispatcher) dispatch(ev Event) {
	d.exec.Execute(func() { d.deliver(ev) })
}

func (d *dispatcher) deliver(ev Event) {
	switch ev.Kind {
	case EventOpened:
		d.listener.OnOpen(ev.Info)
	case EventMessage:
		d.listener.OnMessage(ev.Message)
	case EventClosing:
		d.listener.OnClosing(ev.Code, ev.Reason)
	case EventClosed:
		d.listener.OnClosed(ev.Code, ev.Reason)
	case EventFailed:
		d.listener.OnFailure(ev.Err, ev.Info)
	case EventReconnect:
		d.listener.OnReconnect()
	case EventOffline:
		if d.offline != nil {
			d.offline.OnOffline()
		}
	default:
		d.logger.Warn("unknown event kind", "kind", ev.Kind)
	}
}
