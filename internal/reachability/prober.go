package reachability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ErrNoProbeURL is returned by Start when no probe URL is configured.
var ErrNoProbeURL = errors.New("probe url not configured")

// Notifier receives reachability changes from a Prober.
type Notifier interface {
	Broadcast(kind Kind) int
}

// Config holds prober configuration.
type Config struct {
	URL      string        // Endpoint polled to decide reachability
	Interval time.Duration // Time between probes (default: 5s)
	Timeout  time.Duration // Per-probe timeout (default: 3s)
	Kind     Kind          // Kind reported while the probe succeeds (default: Wifi)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
		Timeout:  3 * time.Second,
		Kind:     Wifi,
	}
}

// Option configures a Prober.
type Option func(*Prober)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Prober) {
		p.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

// Prober polls an HTTP endpoint and reports reachability flips to a
// Notifier. The first observation is only reported if it is NoNetwork,
// since subscribers assume the network is available until told otherwise.
type Prober struct {
	cfg        Config
	target     Notifier
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.Mutex
	last     Kind
	observed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProber creates a new Prober.
func NewProber(cfg Config, target Notifier, opts ...Option) *Prober {
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if !cfg.Kind.Available() {
		cfg.Kind = defaults.Kind
	}

	p := &Prober{
		cfg:        cfg,
		target:     target,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Start begins the probe loop.
func (p *Prober) Start(ctx context.Context) error {
	if p.cfg.URL == "" {
		return ErrNoProbeURL
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("reachability prober started",
		"url", p.cfg.URL,
		"interval", p.cfg.Interval,
	)
	return nil
}

// Stop shuts down the probe loop.
func (p *Prober) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("reachability prober stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Last returns the most recent observation, if any.
func (p *Prober) Last() (Kind, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.observed
}

// Probe runs a single check and reports the result if it changed.
func (p *Prober) Probe(ctx context.Context) Kind {
	kind := NoNetwork
	if p.check(ctx) {
		kind = p.cfg.Kind
	}
	p.observe(kind)
	return kind
}

func (p *Prober) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.Probe(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.Probe(p.ctx)
		}
	}
}

// check reports whether the probe URL answered. Any HTTP response below 500
// counts as reachable.
func (p *Prober) check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		p.logger.Warn("invalid probe request", "url", p.cfg.URL, "error", err)
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", "url", p.cfg.URL, "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode < http.StatusInternalServerError
}

func (p *Prober) observe(kind Kind) {
	p.mu.Lock()
	first := !p.observed
	changed := kind != p.last
	p.last = kind
	p.observed = true
	p.mu.Unlock()

	if first && kind.Available() {
		return
	}
	if first || changed {
		p.target.Broadcast(kind)
	}
}
