package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/wslink/internal/reachability"
)

func TestLoad(t *testing.T) {
	yaml := `
endpoint:
  url: ws://localhost:9001/
  reconnect: false
  reconnect_base: 2s
  reconnect_max: 30s
transport:
  ping_interval: 15s
  send_queue: 64
reachability:
  probe_url: http://localhost:9001/health
  kind: mobile
metrics:
  port: 9191
log:
  level: debug
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Endpoint.URL != "ws://localhost:9001/" {
		t.Errorf("Endpoint.URL = %q, want %q", cfg.Endpoint.URL, "ws://localhost:9001/")
	}
	if cfg.Endpoint.ReconnectEnabled() {
		t.Error("Endpoint.ReconnectEnabled() = true, want false")
	}
	if b := cfg.Endpoint.Backoff(); b.Base != 2*time.Second || b.Max != 30*time.Second {
		t.Errorf("Endpoint.Backoff() = %+v, want 2s/30s", b)
	}
	if cfg.Transport.Ping() != 15*time.Second {
		t.Errorf("Transport.Ping() = %v, want 15s", cfg.Transport.Ping())
	}
	if cfg.Transport.SendQueue != 64 {
		t.Errorf("Transport.SendQueue = %d, want 64", cfg.Transport.SendQueue)
	}
	if cfg.Metrics.Port != 9191 {
		t.Errorf("Metrics.Port = %d, want 9191", cfg.Metrics.Port)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_WS_HOST", "peer.internal:9001")
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
endpoint:
  url: wss://${TEST_WS_HOST}/stream
journal:
  enabled: true
  database:
    host: localhost
    name: wslink
    user: wslink
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Endpoint.URL != "wss://peer.internal:9001/stream" {
		t.Errorf("Endpoint.URL = %q, want expanded host", cfg.Endpoint.URL)
	}
	if cfg.Journal.Database.Password != "secret123" {
		t.Errorf("Journal.Database.Password = %q, want %q", cfg.Journal.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "endpoint:\n  url: ws://localhost:9001/\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if !cfg.Endpoint.ReconnectEnabled() {
		t.Error("reconnect should default to enabled")
	}
	if cfg.Endpoint.ReconnectBase == nil || *cfg.Endpoint.ReconnectBase != DefaultReconnectBase {
		t.Errorf("Endpoint.ReconnectBase = %v, want default %v", cfg.Endpoint.Base(), DefaultReconnectBase)
	}
	if cfg.Transport.PingInterval == nil || *cfg.Transport.PingInterval != DefaultPingInterval {
		t.Errorf("Transport.PingInterval = %v, want default %v", cfg.Transport.Ping(), DefaultPingInterval)
	}
	if cfg.Endpoint.ReconnectMax != DefaultReconnectMax {
		t.Errorf("Endpoint.ReconnectMax = %v, want default %v", cfg.Endpoint.ReconnectMax, DefaultReconnectMax)
	}
	if cfg.Transport.SendQueue != DefaultSendQueue {
		t.Errorf("Transport.SendQueue = %d, want default %d", cfg.Transport.SendQueue, DefaultSendQueue)
	}
	if cfg.Journal.Database.Port != DefaultDBPort {
		t.Errorf("Journal.Database.Port = %d, want default %d", cfg.Journal.Database.Port, DefaultDBPort)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want default %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestLoadWithDefaults_ExplicitZero(t *testing.T) {
	yaml := `
endpoint:
  url: ws://localhost:9001/
  reconnect_base: 0s
transport:
  ping_interval: 0s
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if got := cfg.Transport.Ping(); got != 0 {
		t.Errorf("Transport.Ping() = %v, want 0 (keepalive disabled)", got)
	}
	if got := cfg.Transport.ClientConfig().PingInterval; got != 0 {
		t.Errorf("ClientConfig().PingInterval = %v, want 0", got)
	}
	if got := cfg.Endpoint.Backoff(); got.Base != 0 || got.Max != DefaultReconnectMax {
		t.Errorf("Endpoint.Backoff() = %+v, want immediate retries capped at %v", got, DefaultReconnectMax)
	}
	if got := cfg.Endpoint.Backoff().Delay(3); got != 0 {
		t.Errorf("Backoff().Delay(3) = %v, want 0", got)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "endpoint:\n  url: http://localhost:9001/\n")

	_, err := LoadAndValidate(path)
	if err == nil || !strings.Contains(err.Error(), "endpoint.url must be a ws:// or wss:// url") {
		t.Errorf("LoadAndValidate() error = %v, want endpoint.url error", err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}

func validConfig() Config {
	var cfg Config
	cfg.Endpoint.URL = "ws://localhost:9001/"
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing url",
			mutate:  func(c *Config) { c.Endpoint.URL = "" },
			wantErr: "endpoint.url is required",
		},
		{
			name:    "max below base",
			mutate:  func(c *Config) { c.Endpoint.ReconnectMax = time.Second },
			wantErr: "endpoint.reconnect_max (1s) cannot be less than reconnect_base (10s)",
		},
		{
			name:    "pong timeout below ping interval",
			mutate:  func(c *Config) { c.Transport.PongTimeout = time.Second },
			wantErr: "transport.pong_timeout (1s) cannot be less than ping_interval (30s)",
		},
		{
			name:    "zero send queue",
			mutate:  func(c *Config) { c.Transport.SendQueue = 0 },
			wantErr: "transport.send_queue must be >= 1",
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "journal without host",
			mutate:  func(c *Config) { c.Journal.Enabled = true },
			wantErr: "journal.database.host is required",
		},
		{
			name: "journal min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Database = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 2, MinConns: 5}
			},
			wantErr: "journal.database.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name:    "disabled journal is not validated",
			mutate:  func(c *Config) { c.Journal.Database = DBConfig{} },
			wantErr: "",
		},
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestValidate_PrefixedErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		prefix string
	}{
		{"unknown reachability kind", func(c *Config) { c.Reachability.Kind = "satellite" }, "reachability.kind"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"relative probe url", func(c *Config) { c.Reachability.ProbeURL = "health" }, "reachability.probe_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.HasPrefix(err.Error(), tt.prefix) {
				t.Errorf("Validate() error = %v, want prefix %q", err, tt.prefix)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := validConfig()
	cfg.Reachability.ProbeURL = "http://localhost/health"
	cfg.Reachability.Kind = "mobile"
	cfg.Log.Level = "warn"

	cc := cfg.Transport.ClientConfig()
	if cc.SendQueue != DefaultSendQueue || cc.PingInterval != DefaultPingInterval {
		t.Errorf("ClientConfig() = %+v, want defaults carried over", cc)
	}

	var unset TransportConfig
	if got := unset.ClientConfig().PingInterval; got != DefaultPingInterval {
		t.Errorf("unset ping interval = %v, want default %v", got, DefaultPingInterval)
	}
	if got := (EndpointConfig{}).Base(); got != DefaultReconnectBase {
		t.Errorf("unset reconnect base = %v, want default %v", got, DefaultReconnectBase)
	}

	pc, err := cfg.Reachability.ProberConfig()
	if err != nil {
		t.Fatalf("ProberConfig failed: %v", err)
	}
	if pc.Kind != reachability.Mobile || pc.URL != "http://localhost/health" {
		t.Errorf("ProberConfig() = %+v, want mobile probe", pc)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil || level != slog.LevelWarn {
		t.Errorf("SlogLevel() = %v, %v; want WARN", level, err)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
