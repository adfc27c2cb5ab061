package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ClientConfig configures the sessions opened by a Dialer.
type ClientConfig struct {
	HandshakeTimeout time.Duration // Opening handshake deadline
	WriteTimeout     time.Duration // Write deadline for frames and control messages
	PingInterval     time.Duration // Keepalive ping period (0 = no keepalive)
	PongTimeout      time.Duration // Max time without pong/ping before the session is stale
	CloseTimeout     time.Duration // Max wait for the peer's close frame after ours
	SendQueue        int           // Outbound frame buffer per session
	Header           http.Header   // Extra handshake headers
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PongTimeout:      60 * time.Second,
		CloseTimeout:     5 * time.Second,
		SendQueue:        256,
	}
}

// Dialer is the gorilla/websocket Transport. Use one Dialer per Manager:
// CancelAll abandons every session the Dialer opened.
type Dialer struct {
	cfg    ClientConfig
	logger *slog.Logger
	dialer websocket.Dialer

	mu       sync.Mutex
	sessions map[string]*session
}

// NewDialer creates a Dialer. Zero fields of cfg take their defaults.
func NewDialer(cfg ClientConfig, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultClientConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaults.CloseTimeout
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaults.SendQueue
	}

	return &Dialer{
		cfg:    cfg,
		logger: logger,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		sessions: make(map[string]*session),
	}
}

// Open starts dialing req.URL in the background.
func (d *Dialer) Open(ctx context.Context, req Request, sink EventSink) (Handle, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	id := req.Session
	if id == "" {
		id = uuid.NewString()
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		id:       id,
		url:      req.URL,
		cfg:      d.cfg,
		dialer:   &d.dialer,
		logger:   d.logger.With("session", id),
		sink:     sink,
		ctx:      sctx,
		cancel:   cancel,
		outbound: make(chan Frame, d.cfg.SendQueue),
		closeReq: make(chan closeFrame, 1),
		done:     make(chan struct{}),
	}
	s.onDone = func() { d.forget(id) }

	d.mu.Lock()
	d.sessions[id] = s
	d.mu.Unlock()

	go s.run()
	return s, nil
}

// CancelAll aborts every session opened by this Dialer. Aborted sessions
// report a failure.
func (d *Dialer) CancelAll() {
	d.mu.Lock()
	sessions := make([]*session, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	for _, s := range sessions {
		s.abort()
	}
}

// Active returns the number of sessions that have not finished.
func (d *Dialer) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *Dialer) forget(id string) {
	d.mu.Lock()
	delete(d.sessions, id)
	d.mu.Unlock()
}

type sessionState int

const (
	stateDialing sessionState = iota
	stateOpen
	stateClosing
	stateFinished
)

type closeFrame struct {
	code   int
	reason string
}

// session is one dial attempt and, if it succeeds, the connection it
// produced. It is the only producer of its events, so they reach the sink
// in order.
type session struct {
	id     string
	url    string
	cfg    ClientConfig
	dialer *websocket.Dialer
	logger *slog.Logger
	sink   EventSink
	onDone func()

	ctx    context.Context
	cancel context.CancelFunc

	outbound chan Frame
	closeReq chan closeFrame
	done     chan struct{} // closed when the read loop exits

	mu         sync.Mutex
	state      sessionState
	conn       *websocket.Conn
	localClose *closeFrame
	aborted    bool
	stale      bool
	lastPong   time.Time
}

func (s *session) ID() string {
	return s.id
}

// Send queues a frame for the write loop.
func (s *session) Send(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateOpen {
		return false
	}

	select {
	case s.outbound <- f:
		return true
	default:
		s.logger.Warn("outbound frame refused", "error", ErrSendQueueFull)
		return false
	}
}

// Close starts the close handshake. While dialing it cancels the dial and
// the session reports Closed with the given code.
func (s *session) Close(code int, reason string) bool {
	s.mu.Lock()
	switch s.state {
	case stateDialing:
		s.state = stateClosing
		s.localClose = &closeFrame{code: code, reason: reason}
		s.mu.Unlock()
		s.cancel()
		return true
	case stateOpen:
		s.state = stateClosing
		cf := closeFrame{code: code, reason: reason}
		s.localClose = &cf
		s.mu.Unlock()
		s.closeReq <- cf
		return true
	default:
		s.mu.Unlock()
		return false
	}
}

// abort tears the session down without a close handshake.
func (s *session) abort() {
	s.mu.Lock()
	if s.state == stateFinished {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		conn.Close()
	}
}

func (s *session) emit(ev Event) {
	ev.Session = s.id
	s.sink(ev)
}

func (s *session) run() {
	defer s.onDone()
	defer s.cancel()

	info := OpenInfo{Session: s.id, URL: s.url}

	conn, resp, err := s.dialer.DialContext(s.ctx, s.url, s.cfg.Header)
	if resp != nil {
		info.StatusCode = resp.StatusCode
		info.Header = resp.Header
	}
	if err != nil {
		s.finishDial(fmt.Errorf("dial: %w", err), info)
		return
	}

	s.mu.Lock()
	if s.state != stateDialing || s.aborted {
		s.mu.Unlock()
		conn.Close()
		s.finishDial(context.Canceled, info)
		return
	}
	s.conn = conn
	s.state = stateOpen
	s.lastPong = time.Now()
	s.mu.Unlock()

	info.OpenedAt = time.Now()
	s.logger.Debug("websocket connected", "url", s.url)
	s.emit(Event{Kind: EventOpened, Info: info, Handle: s})

	go s.writeLoop(conn)
	err = s.readLoop(conn)
	close(s.done)
	conn.Close()
	s.finish(err, info)
}

// finishDial reports a session that never opened.
func (s *session) finishDial(err error, info OpenInfo) {
	s.mu.Lock()
	s.state = stateFinished
	lc := s.localClose
	aborted := s.aborted
	s.mu.Unlock()

	if lc != nil && !aborted {
		s.emit(Event{Kind: EventClosed, Code: lc.code, Reason: lc.reason})
		return
	}
	s.emit(Event{Kind: EventFailed, Err: err, Info: info})
}

// finish reports how an open session ended.
func (s *session) finish(err error, info OpenInfo) {
	s.mu.Lock()
	s.state = stateFinished
	lc := s.localClose
	aborted := s.aborted
	stale := s.stale
	s.mu.Unlock()

	var ce *websocket.CloseError
	isClose := errors.As(err, &ce)

	switch {
	case aborted:
		s.emit(Event{Kind: EventFailed, Err: fmt.Errorf("session aborted: %w", context.Canceled), Info: info})
	case lc != nil && isClose:
		s.emit(Event{Kind: EventClosed, Code: ce.Code, Reason: ce.Text})
	case lc != nil:
		// Our close frame was never answered.
		s.emit(Event{Kind: EventClosed, Code: CloseAbnormal, Reason: ReasonAbnormal})
	case isClose:
		s.emit(Event{Kind: EventClosing, Code: ce.Code, Reason: ce.Text})
		s.emit(Event{Kind: EventClosed, Code: ce.Code, Reason: ce.Text})
	case stale:
		s.emit(Event{Kind: EventFailed, Err: ErrStaleConnection, Info: info})
	default:
		s.emit(Event{Kind: EventFailed, Err: fmt.Errorf("read: %w", err), Info: info})
	}
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastPong = time.Now()
	s.mu.Unlock()
}

// readLoop reads frames until the connection fails or closes.
func (s *session) readLoop(conn *websocket.Conn) error {
	conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		s.touch()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		typ, data, err := conn.ReadMessage()
		receivedAt := time.Now()
		if err != nil {
			return err
		}
		s.touch()

		s.emit(Event{
			Kind: EventMessage,
			Message: Message{
				Type:       FrameType(typ),
				Data:       data,
				ReceivedAt: receivedAt,
			},
		})
	}
}

// writeLoop owns every data write on conn. It flushes queued frames before
// writing the close frame, sends keepalive pings and detects stale peers.
func (s *session) writeLoop(conn *websocket.Conn) {
	var pings <-chan time.Time
	if s.cfg.PingInterval > 0 {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case <-s.done:
			return

		case f := <-s.outbound:
			if err := s.write(conn, f); err != nil {
				s.logger.Debug("write failed", "error", err)
				conn.Close()
				return
			}

		case cf := <-s.closeReq:
			s.flush(conn)
			msg := websocket.FormatCloseMessage(cf.code, cf.reason)
			if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				s.logger.Debug("failed to send close frame", "error", err)
				conn.Close()
				return
			}
			timer := time.AfterFunc(s.cfg.CloseTimeout, func() { conn.Close() })
			<-s.done
			timer.Stop()
			return

		case <-pings:
			if s.isStale() {
				s.logger.Warn("no pong received, connection stale", "timeout", s.cfg.PongTimeout)
				s.mu.Lock()
				s.stale = true
				s.mu.Unlock()
				conn.Close()
				return
			}
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}

func (s *session) write(conn *websocket.Conn, f Frame) error {
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(int(f.Type), f.Data)
}

// flush writes every frame already queued.
func (s *session) flush(conn *websocket.Conn) {
	for {
		select {
		case f := <-s.outbound:
			if err := s.write(conn, f); err != nil {
				s.logger.Debug("flush failed", "error", err)
				return
			}
		default:
			return
		}
	}
}

func (s *session) isStale() bool {
	if s.cfg.PongTimeout <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastPong) > s.cfg.PongTimeout
}
