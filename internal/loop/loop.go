package loop

import (
	"context"
	"log/slog"
	"sync"
)

// Executor runs tasks on a designated execution context.
type Executor interface {
	Execute(task func())
}

// Loop is a single-goroutine executor. Tasks run one at a time in the
// order they were submitted.
type Loop struct {
	logger *slog.Logger
	queue  *Queue[func()]

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a loop goroutine.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Loop{
		logger: logger,
		queue:  NewQueue[func()](64),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Execute queues a task. Tasks submitted after Close are dropped.
func (l *Loop) Execute(task func()) {
	if !l.queue.Push(task) {
		l.logger.Debug("loop closed, dropping task")
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	return l.queue.Len()
}

// Close stops accepting tasks. Already queued tasks still run.
func (l *Loop) Close() {
	l.closeOnce.Do(l.queue.Close)
}

// Wait blocks until the loop has drained after Close.
func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		task, ok := l.queue.Pop()
		if !ok {
			return
		}
		l.invoke(task)
	}
}

// invoke runs a task, keeping the loop alive if it panics.
func (l *Loop) invoke(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked", "panic", r)
		}
	}()
	task()
}

// Inline runs every task synchronously on the caller's goroutine. Use it
// when the caller already serializes calls into the manager.
type Inline struct{}

// Execute runs task immediately.
func (Inline) Execute(task func()) { task() }
