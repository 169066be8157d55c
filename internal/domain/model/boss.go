package model

import (
	"time"

	"github.com/okian/dropwatch/internal/domain/period"
)

// Boss is a catalog entry.
type Boss struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Difficulty  string         `json:"difficulty" yaml:"difficulty"`
	Cadence     period.Cadence `json:"cadence" yaml:"cadence"`
	CrystalMeso int64          `json:"crystal_meso" yaml:"crystal_meso"`
	PartySize   int            `json:"party_size" yaml:"party_size"`
	Active      *bool          `json:"active,omitempty" yaml:"active"`
	SortOrder   int            `json:"sort_order" yaml:"sort_order"`
	Drops       []BossItem     `json:"drops" yaml:"drops"`
}

// BossItem is one entry of a boss drop table.
type BossItem struct {
	ItemID     string `json:"item_id" yaml:"item"`
	Name       string `json:"name" yaml:"name"`
	Guaranteed bool   `json:"guaranteed,omitempty" yaml:"guaranteed"`
}

// IsActive reports whether the boss is shown in progress views. Unset means active.
func (b Boss) IsActive() bool { return b.Active == nil || *b.Active }

// HasItem reports whether the drop table lists itemID. An empty table accepts anything.
func (b Boss) HasItem(itemID string) bool {
	if len(b.Drops) == 0 {
		return true
	}
	for _, d := range b.Drops {
		if d.ItemID == itemID {
			return true
		}
	}
	return false
}

// Progress is a character's status for the current period of every active boss.
type Progress struct {
	CharacterID  string         `json:"character_id"`
	Bosses       []BossProgress `json:"bosses"`
	ClearedCount int            `json:"cleared_count"`
	TotalBosses  int            `json:"total_bosses"`
	TotalMeso    int64          `json:"total_meso"`
	AsOf         time.Time      `json:"as_of"`
}

// BossProgress is the status of one boss in its current period.
type BossProgress struct {
	BossID      string         `json:"boss_id"`
	Name        string         `json:"name"`
	Difficulty  string         `json:"difficulty"`
	Cadence     period.Cadence `json:"cadence"`
	PeriodKey   period.Key     `json:"period_key"`
	PeriodStart time.Time      `json:"period_start"`
	PeriodEnd   time.Time      `json:"period_end"`
	Cleared     bool           `json:"cleared"`
	ClearID     string         `json:"clear_id,omitempty"`
	ClearedAt   *time.Time     `json:"cleared_at,omitempty"`
	PartySize   int            `json:"party_size,omitempty"`
	MesoShare   int64          `json:"meso_share"`
}
