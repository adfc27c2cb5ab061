package mockpeer

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// ServerCloseReason is sent when the server closes connections itself.
const ServerCloseReason = "server closing connection"

// Config configures the peer.
type Config struct {
	Interval time.Duration // Time between pushed numbers
	Span     int           // Window width
	Step     int           // Window slide on client close
}

// DefaultConfig returns the default peer configuration.
func DefaultConfig() Config {
	return Config{
		Interval: 2 * time.Second,
		Span:     10,
		Step:     10,
	}
}

// Server is an http.Handler that upgrades every request to a WebSocket.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	min atomic.Int64

	mu    sync.Mutex
	conns map[*peerConn]struct{}
}

type peerConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewServer creates a Server.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Span < 0 {
		cfg.Span = def.Span
	}
	return &Server{
		cfg:    cfg,
		logger: logger.With("component", "mockpeer"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*peerConn]struct{}),
	}
}

// Window returns the lower bound of the current number window.
func (s *Server) Window() int {
	return int(s.min.Load())
}

// Conns returns the number of open connections.
func (s *Server) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// CloseAll sends a normal close frame to every open connection.
func (s *Server) CloseAll() {
	s.mu.Lock()
	conns := make([]*peerConn, 0, len(s.conns))
	for pc := range s.conns {
		conns = append(conns, pc)
	}
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, ServerCloseReason)
	for _, pc := range conns {
		err := pc.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			s.logger.Debug("close frame failed", "remote", pc.conn.RemoteAddr().String(), "error", err)
		}
	}
}

// ServeHTTP upgrades the request and serves the connection until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}
	pc := &peerConn{conn: conn}

	s.mu.Lock()
	s.conns[pc] = struct{}{}
	s.mu.Unlock()

	remote := conn.RemoteAddr().String()
	s.logger.Info("peer connected", "remote", remote)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return s.readLoop(pc) })
	g.Go(func() error { return s.pushLoop(ctx, pc) })
	err = g.Wait()

	s.mu.Lock()
	delete(s.conns, pc)
	s.mu.Unlock()
	conn.Close()

	s.logger.Info("peer disconnected", "remote", remote, "reason", err)
}

// readLoop consumes inbound frames until the connection ends.
func (s *Server) readLoop(pc *peerConn) error {
	for {
		_, data, err := pc.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				low := s.min.Add(int64(s.cfg.Step))
				s.logger.Info("client closed",
					"code", ce.Code,
					"reason", ce.Text,
					"window", low,
				)
			}
			return err
		}
		s.logger.Debug("received", "remote", pc.conn.RemoteAddr().String(), "data", string(data))
	}
}

// pushLoop sends a number from the window immediately and on every tick.
func (s *Server) pushLoop(ctx context.Context, pc *peerConn) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.push(pc); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Server) push(pc *peerConn) error {
	low := int(s.min.Load())
	n := low + rand.Intn(s.cfg.Span+1)

	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	pc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return pc.conn.WriteMessage(websocket.TextMessage, []byte(strconv.Itoa(n)))
}
