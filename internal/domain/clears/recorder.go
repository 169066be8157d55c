// Package clears records boss clears and their drops, enforcing validation
// and the one-clear-per-period rule, and signals the aggregation side.
package clears

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/period"
	"github.com/okian/dropwatch/pkg/logger"
	"github.com/okian/dropwatch/pkg/metrics"
)

const (
	defaultFutureSkew   = 5 * time.Minute
	defaultMaxPartySize = 6
	defaultListLimit    = 100
	maxListLimit        = 1000
	maxNotesRunes       = 500
)

// Store is the part of the event store the recorder writes through.
type Store interface {
	InsertClear(ctx context.Context, c model.ClearEvent) (model.ClearEvent, error)
	GetClear(ctx context.Context, id string) (model.ClearEvent, error)
	ListClears(ctx context.Context, f model.ClearFilter) ([]model.ClearEvent, error)
	UpdateClear(ctx context.Context, id string, patch model.ClearPatch) (model.ClearEvent, error)
	DeleteClear(ctx context.Context, id string) (model.ClearEvent, error)
	AddDrop(ctx context.Context, clearID string, d model.DropEvent) (model.DropEvent, error)
}

// Catalog looks up boss definitions.
type Catalog interface {
	Boss(ctx context.Context, id string) (model.Boss, error)
}

// Resolver maps an instant to the period key of a cadence.
type Resolver interface {
	Resolve(c period.Cadence, t time.Time) (period.Key, error)
}

// Invalidator receives a signal whenever stored events change.
type Invalidator interface {
	Invalidate(ctx context.Context, inv model.Invalidation)
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(ctx context.Context, inv model.Invalidation)

func (f InvalidatorFunc) Invalidate(ctx context.Context, inv model.Invalidation) { f(ctx, inv) }

// DropInput is an item reported with a clear. Nil Quantity means 1.
type DropInput struct {
	ItemID    string `json:"item_id"`
	Quantity  *int   `json:"quantity,omitempty"`
	SalePrice *int64 `json:"sale_price,omitempty"`
}

// RecordInput is a new clear as reported by a user.
type RecordInput struct {
	CharacterID string      `json:"character_id"`
	BossID      string      `json:"boss_id"`
	OccurredAt  *time.Time  `json:"occurred_at,omitempty"`
	PartySize   *int        `json:"party_size,omitempty"`
	Cleared     *bool       `json:"cleared,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	Drops       []DropInput `json:"drops,omitempty"`
}

// UpdateInput carries the mutable fields of a clear. Nil leaves a field unchanged.
type UpdateInput struct {
	PartySize *int    `json:"party_size,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// Recorder is the write path for clear events.
type Recorder struct {
	store       Store
	catalog     Catalog
	resolver    Resolver
	clock       period.Clock
	invalidator Invalidator

	maxPartySize int
	futureSkew   time.Duration
	logger       logger.Logger
}

// New creates a Recorder. A nil invalidator discards signals.
func New(store Store, catalog Catalog, resolver Resolver, clock period.Clock, invalidator Invalidator, opts ...Option) *Recorder {
	if clock == nil {
		clock = period.SystemClock{}
	}
	if invalidator == nil {
		invalidator = InvalidatorFunc(func(context.Context, model.Invalidation) {})
	}
	r := &Recorder{
		store:        store,
		catalog:      catalog,
		resolver:     resolver,
		clock:        clock,
		invalidator:  invalidator,
		maxPartySize: defaultMaxPartySize,
		futureSkew:   defaultFutureSkew,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record validates and stores a new clear. The period key is resolved from
// the boss's cadence at the clear's occurrence time and never changes after.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (model.ClearEvent, error) {
	boss, err := r.boss(ctx, in.BossID)
	if err != nil {
		return model.ClearEvent{}, err
	}

	now := r.clock.Now()
	c, err := r.buildClear(in, boss, now)
	if err != nil {
		metrics.RecordClearRejected()
		return model.ClearEvent{}, err
	}

	c.PeriodKey, err = r.resolver.Resolve(boss.Cadence, c.OccurredAt)
	if err != nil {
		return model.ClearEvent{}, fmt.Errorf("record clear: %w", err)
	}

	stored, err := r.store.InsertClear(ctx, c)
	if err != nil {
		if errors.Is(err, model.ErrDuplicatePeriodClear) {
			metrics.RecordClearDuplicate()
			r.logger.Debug(ctx, "duplicate period clear",
				logger.String("character_id", c.CharacterID),
				logger.String("boss_id", c.BossID),
				logger.String("period_key", c.PeriodKey.String()))
		}
		return model.ClearEvent{}, fmt.Errorf("record clear: %w", err)
	}

	metrics.RecordClearRecorded()
	metrics.RecordDropsRecorded(len(stored.Drops))
	r.logger.Info(ctx, "clear recorded",
		logger.String("clear_id", stored.ID),
		logger.String("boss_id", stored.BossID),
		logger.String("period_key", stored.PeriodKey.String()),
		logger.Int("drops", len(stored.Drops)))

	r.invalidator.Invalidate(ctx, model.Invalidation{
		BossID:  stored.BossID,
		ItemIDs: stored.ItemIDs(),
		Reason:  model.ReasonRecorded,
		At:      now,
	})
	return stored, nil
}

// Get returns one clear.
func (r *Recorder) Get(ctx context.Context, id string) (model.ClearEvent, error) {
	if id == "" {
		return model.ClearEvent{}, model.NewValidationError("id", "required")
	}
	return r.store.GetClear(ctx, id)
}

// List returns clears matching f, newest first. A zero limit uses the default.
func (r *Recorder) List(ctx context.Context, f model.ClearFilter) ([]model.ClearEvent, error) {
	switch {
	case f.Limit < 0 || f.Limit > maxListLimit:
		return nil, model.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", maxListLimit))
	case f.Limit == 0:
		f.Limit = defaultListLimit
	}
	return r.store.ListClears(ctx, f)
}

// Update changes the party size or notes of a clear. Neither affects
// published stats, so no invalidation is emitted.
func (r *Recorder) Update(ctx context.Context, id string, in UpdateInput) (model.ClearEvent, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return model.ClearEvent{}, err
	}
	if in.PartySize != nil {
		boss, err := r.boss(ctx, current.BossID)
		if err != nil {
			return model.ClearEvent{}, err
		}
		if err := r.validatePartySize(*in.PartySize, boss); err != nil {
			return model.ClearEvent{}, err
		}
	}
	if in.Notes != nil {
		if err := validateNotes(*in.Notes); err != nil {
			return model.ClearEvent{}, err
		}
	}
	updated, err := r.store.UpdateClear(ctx, id, model.ClearPatch{PartySize: in.PartySize, Notes: in.Notes})
	if err != nil {
		return model.ClearEvent{}, fmt.Errorf("update clear: %w", err)
	}
	return updated, nil
}

// Delete removes a clear and its drops and invalidates every pair it
// contributed to.
func (r *Recorder) Delete(ctx context.Context, id string) error {
	if id == "" {
		return model.NewValidationError("id", "required")
	}
	removed, err := r.store.DeleteClear(ctx, id)
	if err != nil {
		return fmt.Errorf("delete clear: %w", err)
	}
	metrics.RecordClearDeleted()
	r.logger.Info(ctx, "clear deleted",
		logger.String("clear_id", removed.ID),
		logger.String("boss_id", removed.BossID))

	r.invalidator.Invalidate(ctx, model.Invalidation{
		BossID:  removed.BossID,
		ItemIDs: removed.ItemIDs(),
		Reason:  model.ReasonDeleted,
		At:      r.clock.Now(),
	})
	return nil
}

// AddDrop attaches a drop to an existing clear.
func (r *Recorder) AddDrop(ctx context.Context, clearID string, in DropInput) (model.DropEvent, error) {
	c, err := r.Get(ctx, clearID)
	if err != nil {
		return model.DropEvent{}, err
	}
	boss, err := r.boss(ctx, c.BossID)
	if err != nil {
		return model.DropEvent{}, err
	}
	d, err := buildDrop("drop", in, boss)
	if err != nil {
		metrics.RecordClearRejected()
		return model.DropEvent{}, err
	}
	stored, err := r.store.AddDrop(ctx, clearID, d)
	if err != nil {
		return model.DropEvent{}, fmt.Errorf("add drop: %w", err)
	}
	metrics.RecordDropsRecorded(1)
	r.invalidator.Invalidate(ctx, model.Invalidation{
		BossID:  c.BossID,
		ItemIDs: []string{stored.ItemID},
		Reason:  model.ReasonDrop,
		At:      r.clock.Now(),
	})
	return stored, nil
}

func (r *Recorder) boss(ctx context.Context, id string) (model.Boss, error) {
	if id == "" {
		return model.Boss{}, model.NewValidationError("boss_id", "required")
	}
	b, err := r.catalog.Boss(ctx, id)
	if err != nil {
		return model.Boss{}, fmt.Errorf("lookup boss: %w", err)
	}
	return b, nil
}
