package connection

import (
	"fmt"
	"sync"
)

// Status is the lifecycle status of a Manager.
//
//	Disconnected --Start--> Connecting
//	Connecting   --open--> Connected
//	Connecting   --failure--> Disconnected (then maybe -> Reconnecting)
//	Connected    --closing/closed/failure--> Disconnected (then maybe -> Reconnecting)
//	Disconnected --timer fires--> Reconnecting --> Connecting
//	Connected    --Stop--> Closing --(close completes)--> Disconnected
type Status int32

const (
	Disconnected Status = iota
	Connecting
	Connected
	Reconnecting
	Closing
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// connState is the Manager's shared record. Every field is guarded by mu;
// transition legality is the Manager's responsibility, not this type's.
type connState struct {
	mu sync.Mutex

	status  Status
	session string // ID of the most recent session, "" before the first
	live    bool   // current session has not produced a terminal event
	handle  Handle // nil unless a session is live

	manualClose bool // set by Stop, cleared by Start
	offline     bool // last reachability change was NoNetwork
	closed      bool // Close was called

	closingDone chan struct{} // closed when the status leaves Closing
}

func (s *connState) get() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// set stores to and returns the previous status. Caller must hold mu.
func (s *connState) set(to Status) (from Status, changed bool) {
	from = s.status
	s.status = to
	if from == to {
		return from, false
	}

	if from == Closing && s.closingDone != nil {
		close(s.closingDone)
		s.closingDone = nil
	}
	if to == Closing {
		s.closingDone = make(chan struct{})
	}
	return from, true
}

// closing returns a channel closed once the pending close handshake ends,
// or nil when the status is not Closing.
func (s *connState) closing() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closingDone
}
