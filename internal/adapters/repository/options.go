package repository

import (
	"github.com/okian/dropwatch/internal/domain/dedupe"
	"github.com/okian/dropwatch/internal/domain/period"
)

// Option applies a configuration option to the MemoryClearStore.
type Option func(*MemoryClearStore)

// WithClock sets the clock used for CreatedAt.
func WithClock(c period.Clock) Option {
	return func(s *MemoryClearStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithClaims replaces the idempotence claim set.
func WithClaims(d dedupe.Deduper) Option {
	return func(s *MemoryClearStore) {
		if d != nil {
			s.claims = d
		}
	}
}
