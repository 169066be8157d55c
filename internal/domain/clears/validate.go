package clears

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/dropwatch/internal/domain/model"
)

// buildClear validates in against boss and returns the event to store.
// PeriodKey is left for the caller to resolve.
func (r *Recorder) buildClear(in RecordInput, boss model.Boss, now time.Time) (model.ClearEvent, error) {
	characterID := strings.TrimSpace(in.CharacterID)
	if characterID == "" {
		return model.ClearEvent{}, model.NewValidationError("character_id", "required")
	}

	occurred := now
	if in.OccurredAt != nil {
		occurred = *in.OccurredAt
		if occurred.IsZero() {
			return model.ClearEvent{}, model.NewValidationError("occurred_at", "must be set")
		}
		if occurred.After(now.Add(r.futureSkew)) {
			return model.ClearEvent{}, model.NewValidationError("occurred_at", "is in the future")
		}
	}

	partySize := 1
	if in.PartySize != nil {
		partySize = *in.PartySize
	}
	if err := r.validatePartySize(partySize, boss); err != nil {
		return model.ClearEvent{}, err
	}
	if err := validateNotes(in.Notes); err != nil {
		return model.ClearEvent{}, err
	}

	cleared := true
	if in.Cleared != nil {
		cleared = *in.Cleared
	}

	drops := make([]model.DropEvent, 0, len(in.Drops))
	for i, d := range in.Drops {
		drop, err := buildDrop(fmt.Sprintf("drops[%d]", i), d, boss)
		if err != nil {
			return model.ClearEvent{}, err
		}
		drops = append(drops, drop)
	}

	return model.ClearEvent{
		CharacterID: characterID,
		BossID:      boss.ID,
		OccurredAt:  occurred.UTC(),
		PartySize:   partySize,
		Cleared:     cleared,
		Notes:       in.Notes,
		Drops:       drops,
	}, nil
}

func (r *Recorder) validatePartySize(n int, boss model.Boss) error {
	limit := r.maxPartySize
	if boss.PartySize > 0 && boss.PartySize < limit {
		limit = boss.PartySize
	}
	if n < 1 || n > limit {
		return model.NewValidationError("party_size", fmt.Sprintf("must be between 1 and %d", limit))
	}
	return nil
}

func validateNotes(notes string) error {
	if utf8.RuneCountInString(notes) > maxNotesRunes {
		return model.NewValidationError("notes", fmt.Sprintf("must be at most %d characters", maxNotesRunes))
	}
	return nil
}

func buildDrop(field string, in DropInput, boss model.Boss) (model.DropEvent, error) {
	itemID := strings.TrimSpace(in.ItemID)
	if itemID == "" {
		return model.DropEvent{}, model.NewValidationError(field+".item_id", "required")
	}
	if !boss.HasItem(itemID) {
		return model.DropEvent{}, model.NewValidationError(field+".item_id",
			fmt.Sprintf("%q is not in the drop table of %s", itemID, boss.ID))
	}
	qty := 1
	if in.Quantity != nil {
		qty = *in.Quantity
	}
	if qty < 1 {
		return model.DropEvent{}, model.NewValidationError(field+".quantity", "must be at least 1")
	}
	if in.SalePrice != nil && *in.SalePrice < 0 {
		return model.DropEvent{}, model.NewValidationError(field+".sale_price", "must not be negative")
	}
	d := model.DropEvent{ItemID: itemID, Quantity: qty}
	if in.SalePrice != nil {
		p := *in.SalePrice
		d.SalePrice = &p
	}
	return d, nil
}
