// Package worker drains invalidation signals and triggers recomputes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/pkg/logger"
	"github.com/okian/dropwatch/pkg/metrics"
)

const defaultDebounce = 2 * time.Second

// Queue defines how the worker receives signals.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Invalidation
}

// Recomputer rebuilds the projection.
type Recomputer interface {
	Recompute(ctx context.Context) error
}

// RecomputeFunc adapts a function to Recomputer.
type RecomputeFunc func(ctx context.Context) error

func (f RecomputeFunc) Recompute(ctx context.Context) error { return f(ctx) }

// Worker processes signals until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InvalidationWorker is the single consumer of the invalidation queue.
// Signals arriving within the debounce window of the first one are
// coalesced into one recompute. When a recompute is already running the
// batch is kept and retried after another window.
type InvalidationWorker struct {
	queue      Queue
	recomputer Recomputer
	name       string
	debounce   time.Duration

	mu      sync.Mutex
	pending map[string]struct{}

	shutdownOnce sync.Once
	shutdown     chan struct{}
	done         chan struct{}

	logger logger.Logger
}

// NewInvalidationWorker creates a worker with configuration options.
func NewInvalidationWorker(queue Queue, recomputer Recomputer, opts ...Option) *InvalidationWorker {
	w := &InvalidationWorker{
		queue:      queue,
		recomputer: recomputer,
		name:       "invalidation-worker",
		debounce:   defaultDebounce,
		pending:    make(map[string]struct{}),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop. A closed queue flushes what is pending and
// stops the loop.
func (w *InvalidationWorker) Run(ctx context.Context) {
	defer close(w.done)

	signals := w.queue.Dequeue(ctx)
	var timer *time.Timer
	var fire <-chan time.Time
	arm := func() {
		timer = time.NewTimer(w.debounce)
		fire = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case inv, ok := <-signals:
			if !ok {
				if err := w.flush(ctx); err != nil {
					w.logger.Warn(ctx, "final recompute failed", logger.Error(err))
				}
				return
			}
			w.add(inv)
			if fire == nil {
				arm()
			}
		case <-fire:
			fire = nil
			err := w.flush(ctx)
			if errors.Is(err, model.ErrRecomputeInProgress) {
				arm()
			}
		}
	}
}

// Pending returns the bosses waiting for the next recompute.
func (w *InvalidationWorker) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.pending))
	for b := range w.pending {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Shutdown stops the worker without waiting for the debounce window.
func (w *InvalidationWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InvalidationWorker) Done() <-chan struct{} { return w.done }

func (w *InvalidationWorker) add(inv model.Invalidation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[inv.BossID] = struct{}{}
}

// flush runs one recompute for everything pending. On ErrRecomputeInProgress
// the batch stays pending; on any other failure it is dropped and left to
// the scheduled recompute.
func (w *InvalidationWorker) flush(ctx context.Context) error {
	w.mu.Lock()
	n := len(w.pending)
	w.mu.Unlock()
	if n == 0 {
		return nil
	}

	err := w.recomputer.Recompute(ctx)
	switch {
	case err == nil:
		w.logger.Debug(ctx, "recompute after invalidation", logger.Int("bosses", n))
	case errors.Is(err, model.ErrRecomputeInProgress):
		w.logger.Debug(ctx, "recompute busy, retrying after debounce")
		return err
	default:
		metrics.RecordErrorByComponent("worker", "recompute")
		w.logger.Error(ctx, "recompute after invalidation failed", logger.Int("bosses", n), logger.Error(err))
	}

	w.mu.Lock()
	clear(w.pending)
	w.mu.Unlock()
	return err
}
