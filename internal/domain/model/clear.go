// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/dropwatch/internal/domain/period"
)

// ClearEvent is one recorded boss attempt by a character.
// (CharacterID, BossID, PeriodKey) is unique across the store.
type ClearEvent struct {
	ID          string      `json:"id"`
	CharacterID string      `json:"character_id"`
	BossID      string      `json:"boss_id"`
	PeriodKey   period.Key  `json:"period_key"`
	OccurredAt  time.Time   `json:"occurred_at"`
	PartySize   int         `json:"party_size"`
	Cleared     bool        `json:"cleared"`
	Notes       string      `json:"notes,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	Drops       []DropEvent `json:"drops"`
}

// DropEvent is an item obtained from a clear.
type DropEvent struct {
	ID        int64  `json:"id"`
	ClearID   string `json:"clear_id"`
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	SalePrice *int64 `json:"sale_price,omitempty"`
}

// IdempotenceKey returns the (character, boss, period) tuple joined for map use.
func (c ClearEvent) IdempotenceKey() string {
	return c.CharacterID + "\x1f" + c.BossID + "\x1f" + c.PeriodKey.String()
}

// ItemIDs returns the distinct item ids dropped on this clear, in first-seen order.
func (c ClearEvent) ItemIDs() []string {
	seen := make(map[string]struct{}, len(c.Drops))
	out := make([]string, 0, len(c.Drops))
	for _, d := range c.Drops {
		if _, ok := seen[d.ItemID]; ok {
			continue
		}
		seen[d.ItemID] = struct{}{}
		out = append(out, d.ItemID)
	}
	return out
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (c ClearEvent) Clone() ClearEvent {
	out := c
	if c.Drops != nil {
		out.Drops = make([]DropEvent, len(c.Drops))
		for i, d := range c.Drops {
			out.Drops[i] = d.Clone()
		}
	}
	return out
}

// Clone returns a copy that does not share SalePrice.
func (d DropEvent) Clone() DropEvent {
	out := d
	if d.SalePrice != nil {
		p := *d.SalePrice
		out.SalePrice = &p
	}
	return out
}

// ClearPatch carries the mutable fields of a clear. Nil means unchanged.
type ClearPatch struct {
	PartySize *int
	Notes     *string
}

// ClearFilter narrows clear listings. Zero fields match everything.
type ClearFilter struct {
	CharacterID string
	BossID      string
	PeriodKey   period.Key
	Since       time.Time
	Limit       int
}

// Matches reports whether c passes the filter, ignoring Limit.
func (f ClearFilter) Matches(c ClearEvent) bool {
	if f.CharacterID != "" && c.CharacterID != f.CharacterID {
		return false
	}
	if f.BossID != "" && c.BossID != f.BossID {
		return false
	}
	if !f.PeriodKey.IsZero() && c.PeriodKey != f.PeriodKey {
		return false
	}
	if !f.Since.IsZero() && c.OccurredAt.Before(f.Since) {
		return false
	}
	return true
}

// Snapshot is a consistent copy of every clear with its drops.
type Snapshot struct {
	Clears []ClearEvent
}
