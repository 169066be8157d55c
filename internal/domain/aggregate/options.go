package aggregate

import "github.com/okian/dropwatch/pkg/logger"

// Option configures an Engine.
type Option func(*Engine)

// WithPairSource adds declared pairs, such as catalog drop tables, to every fold.
func WithPairSource(p PairSource) Option {
	return func(e *Engine) {
		e.pairs = p
	}
}

// WithConcurrency bounds how many bosses are folded in parallel.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
