// Package scheduler runs the periodic recompute on a cron schedule and
// retries it with exponential backoff when storage is unavailable.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/pkg/logger"
	"github.com/okian/dropwatch/pkg/metrics"
)

const DefaultSpec = "@every 1h"

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler fires a Job on a cron schedule. A firing that overlaps a
// still-running one is skipped.
type Scheduler struct {
	spec    string
	job     Job
	backoff Backoff
	logger  logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// New validates spec and creates a stopped Scheduler.
func New(spec string, job Job, opts ...Option) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSpec, spec, err)
	}
	s := &Scheduler{
		spec:    spec,
		job:     job,
		backoff: DefaultBackoff(),
		logger:  logger.Nop(),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins dispatching. Jobs run with a context derived from ctx that
// is canceled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	cl := cronLogger{l: s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.spec, func() {
		if err := s.RunOnce(runCtx); err != nil {
			s.logger.Error(runCtx, "scheduled recompute failed", logger.Error(err))
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("%w: %q: %w", ErrInvalidSpec, s.spec, err)
	}
	c.Start()
	s.cron, s.cancel = c, cancel
	s.logger.Info(ctx, "scheduler started", logger.String("spec", s.spec))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.cron, s.cancel = nil, nil
	s.logger.Info(context.Background(), "scheduler stopped")
}

// RunOnce runs the job now. Storage failures are retried with backoff;
// a recompute already in flight counts as done.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := s.job(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, model.ErrRecomputeInProgress):
			s.logger.Debug(ctx, "recompute already running, skipping")
			return nil
		case !errors.Is(err, model.ErrStorageUnavailable) || attempt >= s.backoff.MaxAttempts:
			return err
		}

		delay := s.backoff.Delay(attempt)
		metrics.RecordRecomputeRetry()
		s.logger.Warn(ctx, "recompute failed, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err))
		if err := s.sleep(ctx, delay); err != nil {
			return fmt.Errorf("recompute retry: %w", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// cronLogger routes cron's own logging through the service logger.
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(context.Background(), "cron: "+msg, fields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(context.Background(), "cron: "+msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(kv []interface{}) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
