package scheduler

import (
	"errors"

	"github.com/okian/dropwatch/pkg/logger"
)

var (
	ErrInvalidSpec    = errors.New("invalid schedule")
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithBackoff sets the retry policy. MaxAttempts below 1 means no retries.
func WithBackoff(b Backoff) Option {
	return func(s *Scheduler) {
		if b.MaxAttempts < 1 {
			b.MaxAttempts = 1
		}
		s.backoff = b
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
