package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/wslink/internal/connection"
	"github.com/rickgao/wslink/internal/loop"
)

// Entry kinds.
const (
	KindStatus    = "status"
	KindReconnect = "reconnect"
	KindSend      = "send_rejected"
)

// Config configures batching.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns the default batching configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Metrics tracks writer activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Dropped   int64
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type row struct {
	ID         uuid.UUID
	RecordedAt time.Time
	URL        string
	Session    string
	Kind       string
	Detail     string
}

// Writer journals manager activity. It is safe to share between managers.
type Writer struct {
	cfg    Config
	logger *slog.Logger
	db     batchSender
	now    func() time.Time

	input *loop.Queue[row]

	batch       []row
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx      context.Context
	cancel   context.CancelFunc
	consumer sync.WaitGroup
	flusher  sync.WaitGroup

	metrics Metrics
}

var _ connection.Observer = (*Writer)(nil)

// NewWriter creates a Writer. db is typically a *pgxpool.Pool.
func NewWriter(cfg Config, db batchSender, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Writer{
		cfg:    cfg,
		logger: logger.With("component", "journal"),
		db:     db,
		now:    time.Now,
		input:  loop.NewQueue[row](64),
		batch:  make([]row, 0, cfg.BatchSize),
	}
}

// Start begins consuming observations and writing them to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.consumer.Add(1)
	go w.consumeLoop()

	w.flusher.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued observations and flushes them with ctx.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	w.input.Close()
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.consumer.Wait()
		if w.cancel != nil {
			w.cancel()
		}
		w.flusher.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
		return ctx.Err()
	}

	w.flush(ctx)
	w.logger.Info("journal writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// StatusChanged implements connection.Observer.
func (w *Writer) StatusChanged(url string, from, to connection.Status) {
	w.record(url, "", KindStatus, from.String()+" -> "+to.String())
}

// ReconnectScheduled implements connection.Observer.
func (w *Writer) ReconnectScheduled(url string, attempt int, delay time.Duration) {
	w.record(url, "", KindReconnect, fmt.Sprintf("attempt=%d delay=%s", attempt, delay))
}

// SendResult implements connection.Observer. Only refused frames are kept.
func (w *Writer) SendResult(url string, ok bool) {
	if !ok {
		w.record(url, "", KindSend, "")
	}
}

// EventDispatched implements connection.Observer. Message events are not
// journaled.
func (w *Writer) EventDispatched(url string, ev connection.Event) {
	if ev.Kind == connection.EventMessage {
		return
	}
	w.record(url, ev.Session, ev.Kind.String(), describe(ev))
}

func describe(ev connection.Event) string {
	switch ev.Kind {
	case connection.EventOpened:
		return fmt.Sprintf("status=%d", ev.Info.StatusCode)
	case connection.EventClosing, connection.EventClosed:
		return fmt.Sprintf("code=%d reason=%s", ev.Code, ev.Reason)
	case connection.EventFailed:
		if ev.Err != nil {
			return ev.Err.Error()
		}
	}
	return ""
}

func (w *Writer) record(url, session, kind, detail string) {
	r := row{
		ID:         uuid.New(),
		RecordedAt: w.now(),
		URL:        url,
		Session:    session,
		Kind:       kind,
		Detail:     detail,
	}
	if !w.input.Push(r) {
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
	}
}

// consumeLoop moves queued rows into the batch until the queue closes.
func (w *Writer) consumeLoop() {
	defer w.consumer.Done()

	for {
		r, ok := w.input.Pop()
		if !ok {
			return
		}
		w.add(r)
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.flusher.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *Writer) add(r row) {
	w.batchMu.Lock()
	w.batch = append(w.batch, r)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	batch := w.batch
	w.batch = make([]row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed journal",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []row) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO connection_events (id, recorded_at, url, session, kind, detail)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.RecordedAt, r.URL, r.Session, r.Kind, r.Detail)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
