// Package repository defines the event and projection store interfaces and
// their in-memory implementations.
package repository

import (
	"context"
	"time"

	"github.com/okian/dropwatch/internal/domain/model"
)

// ClearStore persists clear events and their drops.
type ClearStore interface {
	// InsertClear stores a clear and its drops atomically. Returns
	// model.ErrDuplicatePeriodClear when (character, boss, period) exists.
	InsertClear(ctx context.Context, c model.ClearEvent) (model.ClearEvent, error)

	// GetClear returns a clear with its drops or model.ErrNotFound.
	GetClear(ctx context.Context, id string) (model.ClearEvent, error)

	// ListClears returns clears matching f, newest first.
	ListClears(ctx context.Context, f model.ClearFilter) ([]model.ClearEvent, error)

	// UpdateClear applies the mutable fields of patch.
	UpdateClear(ctx context.Context, id string, patch model.ClearPatch) (model.ClearEvent, error)

	// DeleteClear removes a clear and its drops, returning what was removed.
	DeleteClear(ctx context.Context, id string) (model.ClearEvent, error)

	// AddDrop attaches a drop to an existing clear.
	AddDrop(ctx context.Context, clearID string, d model.DropEvent) (model.DropEvent, error)

	// Snapshot returns every clear with its drops as of one instant.
	Snapshot(ctx context.Context) (model.Snapshot, error)
}

// StatsStore holds the published drop-rate projection.
type StatsStore interface {
	// Replace swaps in a complete generation. A generation older than the
	// published one is rejected with model.ErrStaleGeneration.
	Replace(ctx context.Context, generation time.Time, stats []model.DropRateStat, summary model.Summary) error

	// Query returns stats with all-time runs >= q.MinSample, filtered by
	// boss and item, ordered by all-time rate desc then item.
	Query(ctx context.Context, q model.StatsQuery) ([]model.DropRateStat, error)

	// Rare returns stats with at least one drop, rarest first.
	Rare(ctx context.Context, limit, minSample int) ([]model.DropRateStat, error)

	// Summary returns the published overview or model.ErrNotFound.
	Summary(ctx context.Context) (model.Summary, error)

	// Generation returns the published generation, zero when none.
	Generation(ctx context.Context) (time.Time, error)
}
