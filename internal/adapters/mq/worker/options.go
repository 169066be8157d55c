package worker

import (
	"time"

	"github.com/okian/dropwatch/pkg/logger"
)

// Option applies a configuration option to the InvalidationWorker.
type Option func(*InvalidationWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InvalidationWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InvalidationWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets how long signals are coalesced before a recompute.
func WithDebounce(d time.Duration) Option {
	return func(w *InvalidationWorker) {
		if d > 0 {
			w.debounce = d
		}
	}
}
