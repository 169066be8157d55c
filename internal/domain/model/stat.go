package model

import "time"

// Tier is the confidence bucket of a stat, derived from all-time runs.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Tier thresholds on all-time runs.
const (
	MediumTierRuns = 100
	HighTierRuns   = 1000
)

// TierFor maps an all-time run count to a tier: <100 low, 100..1000 medium, >1000 high.
func TierFor(runs int) Tier {
	switch {
	case runs > HighTierRuns:
		return TierHigh
	case runs >= MediumTierRuns:
		return TierMedium
	default:
		return TierLow
	}
}

// WindowStat is the drop rate of one (boss, item) pair over one window.
// Rate is nil when Runs is zero.
type WindowStat struct {
	Runs     int      `json:"runs"`
	Drops    int      `json:"drops"`
	Quantity int      `json:"quantity"`
	Rate     *float64 `json:"rate"`
}

// NewWindowStat computes Rate from runs and drops.
func NewWindowStat(runs, drops, quantity int) WindowStat {
	w := WindowStat{Runs: runs, Drops: drops, Quantity: quantity}
	if runs > 0 {
		r := float64(drops) / float64(runs)
		w.Rate = &r
	}
	return w
}

// RateOr returns the rate or def when undefined.
func (w WindowStat) RateOr(def float64) float64 {
	if w.Rate == nil {
		return def
	}
	return *w.Rate
}

// DropRateStat is the published community estimate for one (boss, item) pair.
type DropRateStat struct {
	BossID     string     `json:"boss_id"`
	ItemID     string     `json:"item_id"`
	AllTime    WindowStat `json:"all_time"`
	Last7Days  WindowStat `json:"last_7_days"`
	Last30Days WindowStat `json:"last_30_days"`
	Confidence Tier       `json:"confidence"`
	ComputedAt time.Time  `json:"computed_at"`
}

// Pair identifies a (boss, item) combination.
type Pair struct {
	BossID string `json:"boss_id"`
	ItemID string `json:"item_id"`
}

// StatsQuery filters published stats. Empty ids match everything.
type StatsQuery struct {
	BossID    string
	ItemID    string
	MinSample int
}

// RareEntry is one row of the rare-drop leaderboard.
type RareEntry struct {
	Rank   int     `json:"rank"`
	BossID string  `json:"boss_id"`
	ItemID string  `json:"item_id"`
	Rate   float64 `json:"rate"`
	Runs   int     `json:"runs"`
	Drops  int     `json:"drops"`
}

// Summary is the community overview produced alongside the stats.
type Summary struct {
	TotalRuns        int       `json:"total_runs"`
	TotalDrops       int       `json:"total_drops"`
	UniqueCharacters int       `json:"unique_characters"`
	MostTrackedBoss  string    `json:"most_tracked_boss,omitempty"`
	MostDroppedItem  string    `json:"most_dropped_item,omitempty"`
	ComputedAt       time.Time `json:"computed_at"`
}

// Invalidation tells the aggregation side that stats for a boss are stale.
type Invalidation struct {
	BossID  string    `json:"boss_id"`
	ItemIDs []string  `json:"item_ids,omitempty"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// Invalidation reasons.
const (
	ReasonRecorded = "recorded"
	ReasonDeleted  = "deleted"
	ReasonDrop     = "drop_added"
)
