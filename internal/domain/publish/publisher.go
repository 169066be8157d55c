// Package publish serves the published drop-rate projection to readers.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/pkg/logger"
	"github.com/okian/dropwatch/pkg/metrics"
)

const (
	defaultFloor        = 100
	defaultMaxRareLimit = 100
	defaultRareLimit    = 10
	defaultTTL          = time.Minute
)

// Reader is the read side of the stats projection.
type Reader interface {
	Query(ctx context.Context, q model.StatsQuery) ([]model.DropRateStat, error)
	Rare(ctx context.Context, limit, minSample int) ([]model.DropRateStat, error)
	Summary(ctx context.Context) (model.Summary, error)
	Generation(ctx context.Context) (time.Time, error)
}

// Cache stores JSON-able values under a key for a while. Get reports a miss
// with false and a nil error.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Publisher answers stats queries. It never writes the projection.
type Publisher struct {
	reader       Reader
	cache        Cache
	floor        int
	maxRareLimit int
	ttl          time.Duration
	logger       logger.Logger
}

// New creates a Publisher.
func New(reader Reader, opts ...Option) *Publisher {
	p := &Publisher{
		reader:       reader,
		floor:        defaultFloor,
		maxRareLimit: defaultMaxRareLimit,
		ttl:          defaultTTL,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Floor returns the public minimum sample size.
func (p *Publisher) Floor() int { return p.floor }

// Query returns stats with at least max(floor, q.MinSample) all-time runs.
// Stats below the floor are left out, never zeroed.
func (p *Publisher) Query(ctx context.Context, q model.StatsQuery) ([]model.DropRateStat, error) {
	if q.MinSample < 0 {
		return nil, model.NewValidationError("minSample", "must not be negative")
	}
	q.MinSample = max(p.floor, q.MinSample)

	key := fmt.Sprintf("stats|%s|%s|%d", q.BossID, q.ItemID, q.MinSample)
	return cached(ctx, p, key, func() ([]model.DropRateStat, error) {
		stats, err := p.reader.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("query stats: %w", err)
		}
		return stats, nil
	})
}

// Rare returns the rarest dropped items, ranked from 1. A zero limit uses
// the default.
func (p *Publisher) Rare(ctx context.Context, limit, minSample int) ([]model.RareEntry, error) {
	if limit == 0 {
		limit = min(defaultRareLimit, p.maxRareLimit)
	}
	if limit < 1 || limit > p.maxRareLimit {
		return nil, model.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", p.maxRareLimit))
	}
	if minSample < 0 {
		return nil, model.NewValidationError("minSample", "must not be negative")
	}
	minSample = max(p.floor, minSample)

	key := fmt.Sprintf("rare|%d|%d", limit, minSample)
	return cached(ctx, p, key, func() ([]model.RareEntry, error) {
		stats, err := p.reader.Rare(ctx, limit, minSample)
		if err != nil {
			return nil, fmt.Errorf("rare stats: %w", err)
		}
		out := make([]model.RareEntry, len(stats))
		for i, s := range stats {
			out[i] = model.RareEntry{
				Rank:   i + 1,
				BossID: s.BossID,
				ItemID: s.ItemID,
				Rate:   s.AllTime.RateOr(0),
				Runs:   s.AllTime.Runs,
				Drops:  s.AllTime.Drops,
			}
		}
		return out, nil
	})
}

// Overview returns the community summary of the published generation.
func (p *Publisher) Overview(ctx context.Context) (model.Summary, error) {
	return cached(ctx, p, "overview", func() (model.Summary, error) {
		s, err := p.reader.Summary(ctx)
		if err != nil {
			return model.Summary{}, fmt.Errorf("overview: %w", err)
		}
		return s, nil
	})
}

// cached serves key from the cache when the projection has a generation.
// Keys embed the generation, so a new recompute never serves stale entries.
// Cache failures fall through to the reader.
func cached[T any](ctx context.Context, p *Publisher, key string, load func() (T, error)) (T, error) {
	if p.cache == nil {
		return load()
	}

	gen, err := p.reader.Generation(ctx)
	if err != nil || gen.IsZero() {
		return load()
	}
	key = fmt.Sprintf("dropwatch|%d|%s", gen.UnixNano(), key)

	var hit T
	ok, err := p.cache.Get(ctx, key, &hit)
	switch {
	case err != nil:
		metrics.RecordCacheResult(metrics.CacheError)
		p.logger.Warn(ctx, "stats cache read failed", logger.String("key", key), logger.Error(err))
	case ok:
		metrics.RecordCacheResult(metrics.CacheHit)
		return hit, nil
	default:
		metrics.RecordCacheResult(metrics.CacheMiss)
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if err := p.cache.Set(ctx, key, v, p.ttl); err != nil {
		metrics.RecordCacheResult(metrics.CacheError)
		p.logger.Warn(ctx, "stats cache write failed", logger.String("key", key), logger.Error(err))
	}
	return v, nil
}
