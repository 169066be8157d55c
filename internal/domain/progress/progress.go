// Package progress reports which bosses a character has cleared in their
// current reset periods.
package progress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/period"
)

// Catalog lists bosses in display order.
type Catalog interface {
	Bosses(ctx context.Context) []model.Boss
}

// Store lists stored clears.
type Store interface {
	ListClears(ctx context.Context, f model.ClearFilter) ([]model.ClearEvent, error)
}

// Resolver maps instants to period keys and keys back to their bounds.
type Resolver interface {
	Resolve(c period.Cadence, t time.Time) (period.Key, error)
	Bounds(c period.Cadence, k period.Key) (time.Time, time.Time, error)
}

// Tracker builds progress views.
type Tracker struct {
	catalog  Catalog
	store    Store
	resolver Resolver
	clock    period.Clock
}

// New creates a Tracker.
func New(catalog Catalog, store Store, resolver Resolver, clock period.Clock) *Tracker {
	if clock == nil {
		clock = period.SystemClock{}
	}
	return &Tracker{catalog: catalog, store: store, resolver: resolver, clock: clock}
}

type slot struct {
	boss model.Boss
	key  period.Key
}

// Progress returns the character's status for the current period of every
// active boss. Only successful clears count; the meso share of a clear is
// the boss crystal value split across the party.
func (t *Tracker) Progress(ctx context.Context, characterID string) (model.Progress, error) {
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return model.Progress{}, model.NewValidationError("character_id", "required")
	}

	now := t.clock.Now()
	out := model.Progress{CharacterID: characterID, AsOf: now.UTC(), Bosses: []model.BossProgress{}}

	var earliest time.Time
	var slots []slot
	for _, b := range t.catalog.Bosses(ctx) {
		if !b.IsActive() {
			continue
		}
		key, err := t.resolver.Resolve(b.Cadence, now)
		if err != nil {
			return model.Progress{}, fmt.Errorf("progress %s: %w", b.ID, err)
		}
		start, end, err := t.resolver.Bounds(b.Cadence, key)
		if err != nil {
			return model.Progress{}, fmt.Errorf("progress %s: %w", b.ID, err)
		}
		if earliest.IsZero() || start.Before(earliest) {
			earliest = start
		}
		slots = append(slots, slot{boss: b, key: key})
		out.Bosses = append(out.Bosses, model.BossProgress{
			BossID:      b.ID,
			Name:        b.Name,
			Difficulty:  b.Difficulty,
			Cadence:     b.Cadence,
			PeriodKey:   key,
			PeriodStart: start.UTC(),
			PeriodEnd:   end.UTC(),
		})
	}
	out.TotalBosses = len(slots)
	if len(slots) == 0 {
		return out, nil
	}

	clears, err := t.store.ListClears(ctx, model.ClearFilter{CharacterID: characterID, Since: earliest})
	if err != nil {
		return model.Progress{}, fmt.Errorf("progress: %w", err)
	}
	type slotKey struct {
		boss string
		key  period.Key
	}
	byKey := make(map[slotKey]model.ClearEvent, len(clears))
	for _, c := range clears {
		if c.Cleared {
			byKey[slotKey{c.BossID, c.PeriodKey}] = c
		}
	}

	for i, s := range slots {
		c, ok := byKey[slotKey{s.boss.ID, s.key}]
		if !ok {
			continue
		}
		bp := &out.Bosses[i]
		at := c.OccurredAt
		bp.Cleared = true
		bp.ClearID = c.ID
		bp.ClearedAt = &at
		bp.PartySize = c.PartySize
		bp.MesoShare = MesoShare(s.boss.CrystalMeso, c.PartySize)
		out.ClearedCount++
		out.TotalMeso += bp.MesoShare
	}
	return out, nil
}

// MesoShare splits a crystal value evenly across a party, rounding down.
func MesoShare(crystal int64, partySize int) int64 {
	if partySize < 1 {
		partySize = 1
	}
	return crystal / int64(partySize)
}
