package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type job struct {
	name string
	run  func(ctx context.Context) error
}

// FailureRecorder counts failed external writes by service.
type FailureRecorder interface {
	ExternalFailure(service string)
}

// AsyncWriter runs memory writes on a single background worker so turns never
// wait on storage. Writes beyond the queue capacity are dropped.
type AsyncWriter struct {
	jobs     chan job
	timeout  time.Duration
	recorder FailureRecorder
	logger   *zap.Logger

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsyncWriter starts the worker. recorder may be nil.
func NewAsyncWriter(queueSize int, timeout time.Duration, recorder FailureRecorder, logger *zap.Logger) *AsyncWriter {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &AsyncWriter{
		jobs:     make(chan job, queueSize),
		timeout:  timeout,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "memory_writer")),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *AsyncWriter) loop() {
	defer w.wg.Done()
	for j := range w.jobs {
		ctx := context.Background()
		cancel := func() {}
		if w.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, w.timeout)
		}
		if err := j.run(ctx); err != nil {
			w.failed.Add(1)
			w.record("memory")
			w.logger.Warn("memory write failed", zap.String("job", j.name), zap.Error(err))
		}
		cancel()
	}
}

// Submit queues run. It reports false when the writer is closed or full.
func (w *AsyncWriter) Submit(name string, run func(ctx context.Context) error) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.jobs <- job{name: name, run: run}:
		return true
	default:
		w.dropped.Add(1)
		w.record("memory_queue")
		w.logger.Warn("memory write queue full, dropping", zap.String("job", name))
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (w *AsyncWriter) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *AsyncWriter) record(service string) {
	if w.recorder != nil {
		w.recorder.ExternalFailure(service)
	}
}
