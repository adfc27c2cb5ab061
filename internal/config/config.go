package config

import (
	"log/slog"
	"time"

	"github.com/rickgao/wslink/internal/connection"
	"github.com/rickgao/wslink/internal/reachability"
)

// Config is the root configuration for a wslink daemon.
type Config struct {
	Endpoint     EndpointConfig     `yaml:"endpoint"`
	Transport    TransportConfig    `yaml:"transport"`
	Reachability ReachabilityConfig `yaml:"reachability"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Journal      JournalConfig      `yaml:"journal"`
	Log          LogConfig          `yaml:"log"`
}

// EndpointConfig describes the remote peer and the reconnect policy.
type EndpointConfig struct {
	URL           string         `yaml:"url"`
	Reconnect     *bool          `yaml:"reconnect"`      // nil = enabled
	ReconnectBase *time.Duration `yaml:"reconnect_base"` // nil = default, 0 retries immediately
	ReconnectMax  time.Duration  `yaml:"reconnect_max"`
}

// ReconnectEnabled reports whether automatic reconnection is on.
func (e EndpointConfig) ReconnectEnabled() bool {
	return e.Reconnect == nil || *e.Reconnect
}

// Backoff returns the reconnect backoff policy.
func (e EndpointConfig) Backoff() connection.Backoff {
	return connection.Backoff{Base: e.Base(), Max: e.ReconnectMax}
}

// Base returns the reconnect base interval, or the default when unset.
func (e EndpointConfig) Base() time.Duration {
	return durationOr(e.ReconnectBase, DefaultReconnectBase)
}

// TransportConfig holds WebSocket session settings.
type TransportConfig struct {
	HandshakeTimeout time.Duration  `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration  `yaml:"write_timeout"`
	PingInterval     *time.Duration `yaml:"ping_interval"` // nil = default, 0 disables keepalive
	PongTimeout      time.Duration  `yaml:"pong_timeout"`
	CloseTimeout     time.Duration  `yaml:"close_timeout"`
	SendQueue        int            `yaml:"send_queue"`
}

// ClientConfig converts to the dialer configuration.
func (t TransportConfig) ClientConfig() connection.ClientConfig {
	return connection.ClientConfig{
		HandshakeTimeout: t.HandshakeTimeout,
		WriteTimeout:     t.WriteTimeout,
		PingInterval:     t.Ping(),
		PongTimeout:      t.PongTimeout,
		CloseTimeout:     t.CloseTimeout,
		SendQueue:        t.SendQueue,
	}
}

// Ping returns the keepalive interval, or the default when unset.
func (t TransportConfig) Ping() time.Duration {
	return durationOr(t.PingInterval, DefaultPingInterval)
}

func durationOr(d *time.Duration, def time.Duration) time.Duration {
	if d == nil {
		return def
	}
	return *d
}

// ReachabilityConfig configures the HTTP reachability prober. An empty
// ProbeURL disables probing.
type ReachabilityConfig struct {
	ProbeURL string        `yaml:"probe_url"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Kind     string        `yaml:"kind"` // Reported while reachable: "wifi" or "mobile"
}

// ProberConfig converts to the prober configuration.
func (r ReachabilityConfig) ProberConfig() (reachability.Config, error) {
	kind, err := reachability.ParseKind(r.Kind)
	if err != nil {
		return reachability.Config{}, err
	}
	return reachability.Config{
		URL:      r.ProbeURL,
		Interval: r.Interval,
		Timeout:  r.Timeout,
		Kind:     kind,
	}, nil
}

// MetricsConfig holds the HTTP server settings for /metrics and /health.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// JournalConfig holds settings for the connection event journal.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}
