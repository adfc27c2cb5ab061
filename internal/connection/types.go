package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/wslink/internal/loop"
	"github.com/rickgao/wslink/internal/reachability"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrSendQueueFull   = errors.New("send queue full")
	ErrSendRejected    = errors.New("send rejected by transport")
	ErrInvalidConfig   = errors.New("invalid config")
	ErrClosed          = errors.New("manager closed")
)

// Close codes and reasons used on the wire.
const (
	CloseNormal    = websocket.CloseNormalClosure // 1000
	CloseAbnormal  = websocket.CloseGoingAway     // 1001
	ReasonNormal   = "normal close"
	ReasonAbnormal = "abnormal close"
)

// Backoff defaults.
const (
	DefaultReconnectBase = 10 * time.Second
	DefaultReconnectMax  = 120 * time.Second
)

// ConfigError describes an invalid Config field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// FrameType is the WebSocket data frame opcode.
type FrameType int

const (
	FrameText   FrameType = websocket.TextMessage
	FrameBinary FrameType = websocket.BinaryMessage
)

func (t FrameType) String() string {
	switch t {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return fmt.Sprintf("frame(%d)", int(t))
	}
}

// Frame is an outbound data frame.
type Frame struct {
	Type FrameType
	Data []byte
}

// Text returns a text frame.
func Text(s string) Frame {
	return Frame{Type: FrameText, Data: []byte(s)}
}

// Binary returns a binary frame.
func Binary(b []byte) Frame {
	return Frame{Type: FrameBinary, Data: b}
}

// Message is an inbound data frame with its receive timestamp.
type Message struct {
	Type       FrameType
	Data       []byte
	ReceivedAt time.Time // Local timestamp when the frame was read
}

// Text returns the payload as a string.
func (m Message) Text() string {
	return string(m.Data)
}

// OpenInfo is the handshake metadata of a session. On failure it carries
// whatever the server answered before the session broke, if anything.
type OpenInfo struct {
	Session    string
	URL        string
	StatusCode int
	Header     http.Header
	OpenedAt   time.Time
}

// Listener receives connection events. All methods are invoked on the
// Manager's executor, one at a time.
//
// With loop.Inline an event raised by a Manager call made from a callback,
// such as the OnClosed(1001) that Stop produces when the close cannot be
// initiated, is delivered before that call returns. With a loop.Loop it is
// queued behind the running callback and delivered after it returns.
type Listener interface {
	OnOpen(info OpenInfo)
	OnMessage(msg Message)
	OnClosing(code int, reason string)
	OnClosed(code int, reason string)
	OnFailure(err error, info OpenInfo)
	OnReconnect()
}

// OfflineListener is implemented by listeners that want to surface a notice
// when the network goes away.
type OfflineListener interface {
	OnOffline()
}

// ListenerFuncs adapts plain functions to Listener and OfflineListener.
// Nil fields are ignored.
type ListenerFuncs struct {
	Open      func(OpenInfo)
	Message   func(Message)
	Closing   func(code int, reason string)
	Closed    func(code int, reason string)
	Failure   func(err error, info OpenInfo)
	Reconnect func()
	Offline   func()
}

func (f ListenerFuncs) OnOpen(info OpenInfo) {
	if f.Open != nil {
		f.Open(info)
	}
}

func (f ListenerFuncs) OnMessage(msg Message) {
	if f.Message != nil {
		f.Message(msg)
	}
}

func (f ListenerFuncs) OnClosing(code int, reason string) {
	if f.Closing != nil {
		f.Closing(code, reason)
	}
}

func (f ListenerFuncs) OnClosed(code int, reason string) {
	if f.Closed != nil {
		f.Closed(code, reason)
	}
}

func (f ListenerFuncs) OnFailure(err error, info OpenInfo) {
	if f.Failure != nil {
		f.Failure(err, info)
	}
}

func (f ListenerFuncs) OnReconnect() {
	if f.Reconnect != nil {
		f.Reconnect()
	}
}

func (f ListenerFuncs) OnOffline() {
	if f.Offline != nil {
		f.Offline()
	}
}

// Observer is notified of manager activity for metrics and auditing.
// Observers are called synchronously, sometimes with internal locks held,
// and must not call back into the Manager.
type Observer interface {
	StatusChanged(url string, from, to Status)
	ReconnectScheduled(url string, attempt int, delay time.Duration)
	SendResult(url string, ok bool)
	EventDispatched(url string, ev Event)
}

// NetworkFunc reports whether a network path is currently available.
type NetworkFunc func() bool

// Registrar is the registry that fans reachability changes out to managers.
type Registrar interface {
	Register(url string, sub reachability.Subscriber) (release func())
}

// Config configures a Manager. It is copied by New and not read afterwards.
type Config struct {
	URL       string    // ws:// or wss:// endpoint
	Reconnect bool      // Reconnect after abnormal termination
	Transport Transport // Opens sessions (required)
	Listener  Listener  // Receives events (required)

	Executor  loop.Executor // Listener context (nil = manager-owned loop.Loop)
	Network   NetworkFunc   // Availability gate (nil = always available)
	Backoff   Backoff       // Zero value = DefaultBackoff()
	Registry  Registrar     // Optional reachability registry
	Observers []Observer
	Logger    *slog.Logger
}

// DefaultConfig returns a Config with reconnection enabled.
func DefaultConfig(url string, transport Transport, listener Listener) Config {
	return Config{
		URL:       url,
		Reconnect: true,
		Transport: transport,
		Listener:  listener,
		Backoff:   DefaultBackoff(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return &ConfigError{Field: "url", Reason: fmt.Sprintf("%q must start with ws:// or wss://", c.URL)}
	}
	if u.Host == "" {
		return &ConfigError{Field: "url", Reason: "missing host"}
	}
	if c.Transport == nil {
		return &ConfigError{Field: "transport", Reason: "is required"}
	}
	if c.Listener == nil {
		return &ConfigError{Field: "listener", Reason: "is required"}
	}
	if err := c.Backoff.validate(); err != nil {
		return &ConfigError{Field: "backoff", Reason: err.Error()}
	}
	return nil
}
