package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/wslink/internal/loop"
	"github.com/rickgao/wslink/internal/reachability"
)

// Manager owns the lifecycle of one WebSocket connection: it opens sessions
// through the Transport, reconnects after abnormal termination and funnels
// every event to the Listener on a single executor.
//
// Start, Stop and Send never block on network I/O; outcomes arrive later
// through the Listener.
type Manager struct {
	cfg       Config
	logger    *slog.Logger
	disp      *dispatcher
	sched     *scheduler
	ownLoop   *loop.Loop
	release   func()
	observers []Observer

	ctx    context.Context
	cancel context.CancelFunc

	// connectMu serializes replacing the live session. It is never held
	// while waiting on st.mu for status reads.
	connectMu sync.Mutex
	st        connState
}

// New validates cfg and returns a Manager in Disconnected status. If
// cfg.Registry is set the Manager registers itself for reachability changes
// until Close.
func New(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("url", cfg.URL)

	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}

	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		sched:     newScheduler(cfg.Backoff),
		observers: cfg.Observers,
	}
	m.st.manualClose = true
	m.ctx, m.cancel = context.WithCancel(context.Background())

	exec := cfg.Executor
	if exec == nil {
		m.ownLoop = loop.New(logger)
		exec = m.ownLoop
	}
	m.disp = newDispatcher(exec, cfg.Listener, logger)

	if cfg.Registry != nil {
		m.release = cfg.Registry.Register(cfg.URL, m)
	}

	return m, nil
}

// URL returns the endpoint URL.
func (m *Manager) URL() string {
	return m.cfg.URL
}

// Status returns the current status.
func (m *Manager) Status() Status {
	return m.st.get()
}

// IsConnected reports whether the status is Connected.
func (m *Manager) IsConnected() bool {
	return m.st.get() == Connected
}

// Attempts returns the number of reconnects scheduled since the last
// successful open.
func (m *Manager) Attempts() int {
	return m.sched.attemptCount()
}

// Start begins connecting. It is a no-op while already connecting or
// connected. Returns ErrClosed after Close.
func (m *Manager) Start() error {
	m.st.mu.Lock()
	if m.st.closed {
		m.st.mu.Unlock()
		return ErrClosed
	}
	m.st.manualClose = false
	m.st.mu.Unlock()

	m.connect()
	return nil
}

// Stop closes the connection and suppresses reconnection until the next
// Start. Frames already accepted by Send are flushed before the close
// frame. If the close cannot be initiated the listener receives
// OnClosed(1001, "abnormal close").
func (m *Manager) Stop() {
	m.st.mu.Lock()
	m.st.manualClose = true
	m.sched.cancel()

	if m.st.status == Closing {
		m.st.mu.Unlock()
		return
	}

	if !m.st.live {
		m.setStatusLocked(Disconnected)
		m.st.mu.Unlock()
		return
	}

	h := m.st.handle
	session := m.st.session
	if h == nil {
		// Open has not returned yet; connect closes the handle when it does.
		m.st.live = false
		m.setStatusLocked(Disconnected)
		m.st.mu.Unlock()
		m.cfg.Transport.CancelAll()
		return
	}

	m.setStatusLocked(Closing)
	m.st.mu.Unlock()

	m.logger.Info("closing connection")
	if !h.Close(CloseNormal, ReasonNormal) {
		m.logger.Warn("close could not be initiated", "session", session)
		m.handleEvent(Event{
			Kind:    EventClosed,
			Session: session,
			Code:    CloseAbnormal,
			Reason:  ReasonAbnormal,
		})
	}
}

// Close stops the connection, waits for the close handshake until ctx is
// done and releases the reachability registration. A manager-owned
// listener loop stops accepting events and finishes the queued ones in the
// background; use Wait to block until it has. Close may be called from a
// listener callback. The Manager cannot be restarted.
func (m *Manager) Close(ctx context.Context) error {
	m.Stop()

	if done := m.st.closing(); done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			m.logger.Warn("close handshake timeout, forcing close")
		}
	}

	m.st.mu.Lock()
	if m.st.closed {
		m.st.mu.Unlock()
		return nil
	}
	m.st.closed = true
	m.st.mu.Unlock()

	m.cancel()
	m.cfg.Transport.CancelAll()
	if m.release != nil {
		m.release()
	}

	if m.ownLoop != nil {
		m.ownLoop.Close()
	}
	return nil
}

// Wait blocks until the manager-owned listener loop has delivered every
// queued event after Close. It returns immediately when the listener runs
// on a caller-supplied executor. Do not call it from a listener callback.
func (m *Manager) Wait(ctx context.Context) error {
	if m.ownLoop == nil {
		return nil
	}
	if err := m.ownLoop.Wait(ctx); err != nil {
		return fmt.Errorf("drain listener loop: %w", err)
	}
	return nil
}

// Send queues a frame. It returns false without touching the transport
// unless the status is Connected. A frame refused by the transport is
// treated as a failure of the session and makes the Manager eligible for
// reconnection.
func (m *Manager) Send(f Frame) bool {
	return m.send(f) == nil
}

// SendText queues a text frame.
func (m *Manager) SendText(s string) bool {
	return m.Send(Text(s))
}

// SendBinary queues a binary frame.
func (m *Manager) SendBinary(b []byte) bool {
	return m.Send(Binary(b))
}

func (m *Manager) send(f Frame) error {
	m.st.mu.Lock()
	h := m.st.handle
	session := m.st.session
	ready := m.st.status == Connected && h != nil
	m.st.mu.Unlock()

	if !ready {
		m.observeSend(false)
		return ErrNotConnected
	}

	if h.Send(f) {
		m.observeSend(true)
		return nil
	}

	m.observeSend(false)
	m.logger.Warn("send rejected, dropping session", "session", session)
	m.handleEvent(Event{
		Kind:    EventFailed,
		Session: session,
		Err:     ErrSendRejected,
		Info:    OpenInfo{Session: session, URL: m.cfg.URL},
	})
	h.Close(CloseAbnormal, ReasonAbnormal)
	return ErrSendRejected
}

// OnNetworkChanged reacts to a reachability change. NoNetwork drops the
// connection and waits; Mobile and Wifi drop it and reconnect immediately,
// bypassing backoff. Stopped managers record the change without
// reconnecting.
func (m *Manager) OnNetworkChanged(kind reachability.Kind) {
	m.st.mu.Lock()
	if m.st.closed {
		m.st.mu.Unlock()
		return
	}

	m.st.offline = !kind.Available()
	m.sched.cancel()

	wasLive := m.st.live
	h := m.st.handle
	session := m.st.session
	m.st.live = false
	m.st.handle = nil
	m.setStatusLocked(Disconnected)

	// The immediate resume does not consume an attempt, so it is not
	// reported as a scheduled reconnect.
	resume := !m.st.offline && !m.st.manualClose && m.cfg.Reconnect
	if resume {
		m.sched.scheduleNow(m.fireReconnect)
	}
	m.st.mu.Unlock()

	if wasLive {
		if h != nil {
			h.Close(CloseAbnormal, "network changed")
		} else {
			m.cfg.Transport.CancelAll()
		}
	}

	if !kind.Available() {
		m.logger.Warn("network unavailable, connection suspended")
		m.emit(Event{Kind: EventOffline, Session: session})
		return
	}
	if resume {
		m.logger.Info("network available, reconnecting", "kind", kind)
	}
}

// connect opens a replacement session unless one is already connecting or
// connected.
func (m *Manager) connect() {
	if ev, failed := m.openSession(); failed {
		m.handleEvent(ev)
	}
}

// openSession is the critical section that replaces the live session. A
// synchronous Open error is returned as a Failed event for the caller to
// handle once connectMu is released.
func (m *Manager) openSession() (Event, bool) {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.st.mu.Lock()
	if m.st.manualClose || m.st.closed {
		m.settleLocked()
		m.st.mu.Unlock()
		return Event{}, false
	}
	if m.st.status == Connecting || m.st.status == Connected {
		m.st.mu.Unlock()
		m.logger.Debug("already connecting or connected")
		return Event{}, false
	}
	if !m.networkAvailableLocked() {
		m.settleLocked()
		m.st.mu.Unlock()
		m.logger.Info("network unavailable, waiting for reachability")
		return Event{}, false
	}

	session := uuid.NewString()
	m.st.session = session
	m.st.live = true
	m.st.handle = nil
	m.setStatusLocked(Connecting)
	m.sched.cancel()
	m.st.mu.Unlock()

	// Abandon any session still dialing or closing before opening a new one.
	m.cfg.Transport.CancelAll()

	m.logger.Info("connecting", "session", session)
	h, err := m.cfg.Transport.Open(m.ctx, Request{URL: m.cfg.URL, Session: session}, m.handleEvent)
	if err != nil {
		return Event{
			Kind:    EventFailed,
			Session: session,
			Err:     fmt.Errorf("open: %w", err),
			Info:    OpenInfo{Session: session, URL: m.cfg.URL},
		}, true
	}

	m.st.mu.Lock()
	current := m.st.session == session && m.st.live
	if current && m.st.handle == nil {
		m.st.handle = h
	}
	m.st.mu.Unlock()

	if !current {
		h.Close(CloseNormal, ReasonNormal)
	}
	return Event{}, false
}

// handleEvent is the EventSink given to the transport. It applies the
// event's state transition, then hands it to the listener.
func (m *Manager) handleEvent(ev Event) {
	m.st.mu.Lock()
	if ev.Session != m.st.session {
		m.st.mu.Unlock()
		m.logger.Debug("dropping event from superseded session",
			"session", ev.Session,
			"event", ev.Kind,
		)
		return
	}

	ended := false
	switch {
	case ev.Kind == EventOpened:
		if m.st.live && m.st.status == Connecting {
			if ev.Handle != nil {
				m.st.handle = ev.Handle
			}
			m.setStatusLocked(Connected)
			m.sched.reset()
		}
	case ev.terminal():
		if m.st.live {
			m.st.live = false
			m.st.handle = nil
			m.setStatusLocked(Disconnected)
			ended = true
		}
	}
	m.st.mu.Unlock()

	switch ev.Kind {
	case EventOpened:
		m.logger.Info("connected", "session", ev.Session)
	case EventFailed:
		m.logger.Warn("connection failed", "session", ev.Session, "error", ev.Err)
	case EventClosed:
		m.logger.Info("connection closed", "session", ev.Session, "code", ev.Code, "reason", ev.Reason)
	}

	m.emit(ev)

	if ended {
		m.tryReconnect(ev.Session)
	}
}

// tryReconnect schedules the next attempt for a session that just ended,
// unless policy suppresses it.
func (m *Manager) tryReconnect(session string) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()

	if m.st.session != session || m.st.live || m.st.status != Disconnected {
		return
	}
	if m.st.manualClose || m.st.closed || !m.cfg.Reconnect {
		return
	}
	if !m.networkAvailableLocked() {
		m.logger.Info("network unavailable, reconnect deferred")
		return
	}

	delay, attempt := m.sched.schedule(m.fireReconnect)
	m.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
	m.observeReconnect(attempt, delay)
}

// fireReconnect runs when a reconnect timer expires.
func (m *Manager) fireReconnect() {
	m.st.mu.Lock()
	if m.st.manualClose || m.st.closed || m.st.live || m.st.status != Disconnected {
		m.st.mu.Unlock()
		return
	}
	m.setStatusLocked(Reconnecting)
	session := m.st.session
	m.st.mu.Unlock()

	m.emit(Event{Kind: EventReconnect, Session: session})
	m.connect()
}

// settleLocked returns an interrupted reconnect to Disconnected.
func (m *Manager) settleLocked() {
	if m.st.status == Reconnecting {
		m.setStatusLocked(Disconnected)
	}
}

func (m *Manager) networkAvailableLocked() bool {
	if m.st.offline {
		return false
	}
	return m.cfg.Network == nil || m.cfg.Network()
}

func (m *Manager) setStatusLocked(to Status) {
	from, changed := m.st.set(to)
	if !changed {
		return
	}
	m.logger.Debug("status changed", "from", from, "to", to)
	for _, o := range m.observers {
		o.StatusChanged(m.cfg.URL, from, to)
	}
}

func (m *Manager) emit(ev Event) {
	for _, o := range m.observers {
		o.EventDispatched(m.cfg.URL, ev)
	}
	m.disp.dispatch(ev)
}

func (m *Manager) observeSend(ok bool) {
	for _, o := range m.observers {
		o.SendResult(m.cfg.URL, ok)
	}
}

func (m *Manager) observeReconnect(attempt int, delay time.Duration) {
	for _, o := range m.observers {
		o.ReconnectScheduled(m.cfg.URL, attempt, delay)
	}
}
