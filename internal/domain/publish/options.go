package publish

import (
	"time"

	"github.com/okian/dropwatch/pkg/logger"
)

// Option configures a Publisher.
type Option func(*Publisher)

// WithCache enables result caching.
func WithCache(c Cache) Option {
	return func(p *Publisher) {
		p.cache = c
	}
}

// WithFloor sets the public minimum sample size.
func WithFloor(n int) Option {
	return func(p *Publisher) {
		if n >= 0 {
			p.floor = n
		}
	}
}

// WithMaxRareLimit caps the rare leaderboard length.
func WithMaxRareLimit(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.maxRareLimit = n
		}
	}
}

// WithTTL sets how long cached results live.
func WithTTL(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.ttl = d
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}
