package clears

import (
	"time"

	"github.com/okian/dropwatch/pkg/logger"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithMaxPartySize caps party size below the per-boss limit.
func WithMaxPartySize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxPartySize = n
		}
	}
}

// WithFutureSkew sets how far past the clock a clear may be dated.
func WithFutureSkew(d time.Duration) Option {
	return func(r *Recorder) {
		if d >= 0 {
			r.futureSkew = d
		}
	}
}

// WithLogger sets the recorder logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}
