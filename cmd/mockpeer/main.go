// mockpeer serves a WebSocket endpoint that pushes random integers.
// Usage: go run ./cmd/mockpeer --addr :8765
//
// Send SIGUSR1 to close every open connection from the server side.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/wslink/internal/mockpeer"
	"github.com/rickgao/wslink/internal/version"
)

func main() {
	def := mockpeer.DefaultConfig()
	addr := flag.String("addr", ":8765", "listen address")
	interval := flag.Duration("interval", def.Interval, "time between pushed numbers")
	span := flag.Int("span", def.Span, "width of the number window")
	step := flag.Int("step", def.Step, "window slide when a client closes")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting mockpeer",
		"version", version.Version,
		"addr", *addr,
		"interval", *interval,
	)

	peer := mockpeer.NewServer(mockpeer.Config{
		Interval: *interval,
		Span:     *span,
		Step:     *step,
	}, logger)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           peer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closeCh := make(chan os.Signal, 1)
	signal.Notify(closeCh, syscall.SIGUSR1)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-closeCh:
				logger.Info("closing all connections", "conns", peer.Conns())
				peer.CloseAll()
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		peer.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("mockpeer failed", "error", err)
		os.Exit(1)
	}
	logger.Info("mockpeer stopped")
}
