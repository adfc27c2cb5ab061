package connection

import (
	"errors"
	"sync"
	"time"
)

// Backoff is a linear backoff with a ceiling: attempt n waits n*Base, never
// more than Max. Attempt 0 reconnects immediately.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff returns the 10s/120s policy.
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultReconnectBase, Max: DefaultReconnectMax}
}

// Delay returns the wait before the given attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 || b.Base <= 0 {
		return 0
	}
	if time.Duration(attempt) > b.Max/b.Base {
		return b.Max
	}
	d := time.Duration(attempt) * b.Base
	if d > b.Max {
		return b.Max
	}
	return d
}

func (b Backoff) validate() error {
	if b.Base < 0 || b.Max < 0 {
		return errors.New("intervals must not be negative")
	}
	if b.Max < b.Base {
		return errors.New("max must be >= base")
	}
	return nil
}

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func realAfter(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// scheduler owns the retry state: the attempt counter and at most one
// pending reconnect timer.
type scheduler struct {
	backoff Backoff
	after   afterFunc

	mu       sync.Mutex
	attempts int
	pending  stopper
	gen      uint64
}

func newScheduler(b Backoff) *scheduler {
	return &scheduler{backoff: b, after: realAfter}
}

// schedule cancels any pending timer and arms a new one using the backoff
// delay for the current attempt count, which is then incremented.
func (s *scheduler) schedule(fire func()) (delay time.Duration, attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	attempt = s.attempts
	delay = s.backoff.Delay(attempt)
	s.attempts++
	s.arm(delay, fire)
	return delay, attempt
}

// scheduleNow arms an immediate timer without touching the attempt count.
func (s *scheduler) scheduleNow(fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.arm(0, fire)
}

func (s *scheduler) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// reset cancels any pending timer and zeroes the attempt count.
func (s *scheduler) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.attempts = 0
}

func (s *scheduler) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *scheduler) isPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *scheduler) cancelLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.gen++
}

// arm must be called with mu held. A timer that fires after being
// superseded or cancelled does nothing.
func (s *scheduler) arm(d time.Duration, fire func()) {
	s.gen++
	gen := s.gen
	s.pending = s.after(d, func() {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.pending = nil
		s.mu.Unlock()
		fire()
	})
}
