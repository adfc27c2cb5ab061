// wslink keeps a WebSocket connection to a configured endpoint alive.
// Usage: go run ./cmd/wslink --config configs/wslink.example.yaml
//
// Lines read from stdin are sent as text frames. Inbound messages are
// logged. /health and /metrics are served on metrics.port.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/wslink/internal/config"
	"github.com/rickgao/wslink/internal/connection"
	"github.com/rickgao/wslink/internal/database"
	"github.com/rickgao/wslink/internal/journal"
	"github.com/rickgao/wslink/internal/metrics"
	"github.com/rickgao/wslink/internal/reachability"
	"github.com/rickgao/wslink/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/wslink.example.yaml", "path to config file")
	flag.Parse()

	bootLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Validate already checked the level.
	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting wslink",
		"version", version.String(),
		"config", *configPath,
		"url", cfg.Endpoint.URL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("wslink failed", "error", err)
		os.Exit(1)
	}
	logger.Info("wslink stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	broadcaster := reachability.NewBroadcaster(logger)
	collector := metrics.NewCollector()
	observers := []connection.Observer{collector}

	var writer *journal.Writer
	if cfg.Journal.Enabled {
		w, closeDB, err := startJournal(ctx, cfg.Journal, logger)
		if err != nil {
			return err
		}
		defer closeDB()
		writer = w
		observers = append(observers, writer)
	}

	dialer := connection.NewDialer(cfg.Transport.ClientConfig(), logger)

	mcfg := connection.DefaultConfig(cfg.Endpoint.URL, dialer, newListener(logger))
	mcfg.Reconnect = cfg.Endpoint.ReconnectEnabled()
	mcfg.Backoff = cfg.Endpoint.Backoff()
	mcfg.Network = broadcaster.Available
	mcfg.Registry = broadcaster
	mcfg.Observers = observers
	mcfg.Logger = logger

	manager, err := connection.New(mcfg)
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}

	var prober *reachability.Prober
	if cfg.Reachability.ProbeURL != "" {
		pcfg, err := cfg.Reachability.ProberConfig()
		if err != nil {
			return err
		}
		prober = reachability.NewProber(pcfg, broadcaster, reachability.WithLogger(logger))
		if err := prober.Start(ctx); err != nil {
			return fmt.Errorf("start prober: %w", err)
		}
	}

	server := metrics.NewServer(
		fmt.Sprintf(":%d", cfg.Metrics.Port),
		cfg.Metrics.Path,
		collector.Registry(),
		map[string]http.Handler{"/health": healthHandler(manager, broadcaster)},
		logger,
	)
	if err := server.Start(); err != nil {
		return err
	}

	if err := manager.Start(); err != nil {
		return fmt.Errorf("start manager: %w", err)
	}

	go readStdin(manager, logger)

	logger.Info("wslink running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(shutdownCtx)
	g.Go(func() error {
		if err := manager.Close(gctx); err != nil {
			return fmt.Errorf("close manager: %w", err)
		}
		return manager.Wait(gctx)
	})
	if prober != nil {
		g.Go(func() error { return prober.Stop(gctx) })
	}
	g.Go(func() error { return server.Stop(gctx) })
	err = g.Wait()

	// The writer stops last so the final close is journaled.
	if writer != nil {
		if werr := writer.Stop(shutdownCtx); werr != nil {
			err = errors.Join(err, werr)
		}
	}
	return err
}

// startJournal connects to the journal database and starts the writer.
func startJournal(ctx context.Context, cfg config.JournalConfig, logger *slog.Logger) (*journal.Writer, func(), error) {
	logger.Info("connecting to journal database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect journal database: %w", err)
	}
	if err := journal.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	w := journal.NewWriter(journal.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, pool, logger)
	if err := w.Start(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return w, pool.Close, nil
}

func newListener(logger *slog.Logger) connection.Listener {
	return connection.ListenerFuncs{
		Open: func(info connection.OpenInfo) {
			logger.Info("connected", "session", info.Session, "status_code", info.StatusCode)
		},
		Message: func(msg connection.Message) {
			logger.Info("message", "type", msg.Type, "data", msg.Text())
		},
		Closing: func(code int, reason string) {
			logger.Info("peer closing", "code", code, "reason", reason)
		},
		Closed: func(code int, reason string) {
			logger.Info("closed", "code", code, "reason", reason)
		},
		Failure: func(err error, info connection.OpenInfo) {
			logger.Warn("connection failed", "error", err, "status_code", info.StatusCode)
		},
		Reconnect: func() {
			logger.Info("reconnecting")
		},
		Offline: func() {
			logger.Warn("network unavailable, check your connection")
		},
	}
}

// readStdin sends every stdin line as a text frame until EOF.
func readStdin(m *connection.Manager, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !m.SendText(line) {
			logger.Warn("send failed", "status", m.Status().String())
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("stdin read failed", "error", err)
	}
}

// healthHandler reports connection and network status as JSON.
func healthHandler(m *connection.Manager, b *reachability.Broadcaster) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		network := "unknown"
		if kind, ok := b.Last(); ok {
			network = kind.String()
		}

		health := struct {
			Status     string `json:"status"`
			URL        string `json:"url"`
			Connection string `json:"connection"`
			Attempts   int    `json:"attempts"`
			Network    string `json:"network"`
			Version    string `json:"version"`
		}{
			Status:     "healthy",
			URL:        m.URL(),
			Connection: m.Status().String(),
			Attempts:   m.Attempts(),
			Network:    network,
			Version:    version.Version,
		}
		if !m.IsConnected() {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
