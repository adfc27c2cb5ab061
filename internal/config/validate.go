package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Endpoint.URL == "" {
		return errors.New("endpoint.url is required")
	}
	u, err := url.Parse(c.Endpoint.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("endpoint.url must be a ws:// or wss:// url, got %q", c.Endpoint.URL)
	}
	base := c.Endpoint.Base()
	if base < 0 {
		return errors.New("endpoint.reconnect_base must be >= 0")
	}
	if c.Endpoint.ReconnectMax < base {
		return fmt.Errorf("endpoint.reconnect_max (%v) cannot be less than reconnect_base (%v)",
			c.Endpoint.ReconnectMax, base)
	}

	if c.Transport.SendQueue < 1 {
		return errors.New("transport.send_queue must be >= 1")
	}
	if c.Transport.WriteTimeout <= 0 {
		return errors.New("transport.write_timeout must be > 0")
	}
	ping := c.Transport.Ping()
	if ping < 0 {
		return errors.New("transport.ping_interval must be >= 0")
	}
	if ping > 0 && c.Transport.PongTimeout < ping {
		return fmt.Errorf("transport.pong_timeout (%v) cannot be less than ping_interval (%v)",
			c.Transport.PongTimeout, ping)
	}

	if c.Reachability.ProbeURL != "" {
		if _, err := url.ParseRequestURI(c.Reachability.ProbeURL); err != nil {
			return fmt.Errorf("reachability.probe_url: %w", err)
		}
		if c.Reachability.Interval <= 0 {
			return errors.New("reachability.interval must be > 0")
		}
	}
	if _, err := c.Reachability.ProberConfig(); err != nil {
		return fmt.Errorf("reachability.kind: %w", err)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
