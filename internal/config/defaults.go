package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultReconnectBase    = 10 * time.Second
	DefaultReconnectMax     = 120 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPongTimeout      = 60 * time.Second
	DefaultCloseTimeout     = 5 * time.Second
	DefaultSendQueue        = 256
	DefaultProbeInterval    = 5 * time.Second
	DefaultProbeTimeout     = 3 * time.Second
	DefaultReachabilityKind = "wifi"
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 1 * time.Second
	DefaultLogLevel         = "info"
)

// applyDefaults fills every unset optional field.
func (c *Config) applyDefaults() {
	// Endpoint defaults
	if c.Endpoint.ReconnectBase == nil {
		base := DefaultReconnectBase
		c.Endpoint.ReconnectBase = &base
	}
	if c.Endpoint.ReconnectMax == 0 {
		c.Endpoint.ReconnectMax = DefaultReconnectMax
	}

	// Transport defaults
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.PingInterval == nil {
		ping := DefaultPingInterval
		c.Transport.PingInterval = &ping
	}
	if c.Transport.PongTimeout == 0 {
		c.Transport.PongTimeout = DefaultPongTimeout
	}
	if c.Transport.CloseTimeout == 0 {
		c.Transport.CloseTimeout = DefaultCloseTimeout
	}
	if c.Transport.SendQueue == 0 {
		c.Transport.SendQueue = DefaultSendQueue
	}

	// Reachability defaults
	if c.Reachability.Interval == 0 {
		c.Reachability.Interval = DefaultProbeInterval
	}
	if c.Reachability.Timeout == 0 {
		c.Reachability.Timeout = DefaultProbeTimeout
	}
	if c.Reachability.Kind == "" {
		c.Reachability.Kind = DefaultReachabilityKind
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
