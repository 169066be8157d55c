// Package aggregate folds clear events into per (boss, item) drop-rate
// estimates and publishes them as one generation.
package aggregate

import (
	"sort"
	"time"

	"github.com/okian/dropwatch/internal/domain/model"
)

const day = 24 * time.Hour

// Window lengths of the rolling stats.
const (
	ShortWindow = 7 * day
	LongWindow  = 30 * day
)

const (
	allTime = iota
	short
	long
	windows
)

// Result is the output of a fold.
type Result struct {
	Stats   []model.DropRateStat
	Summary model.Summary
}

type itemCount struct {
	drops    [windows]int
	quantity [windows]int
}

// Fold computes every stat and the summary of snap as of windowNow. Extra
// pairs (usually the catalog drop tables) are reported with zero drops for
// bosses that have at least one run. Output is sorted by boss then item.
func Fold(snap model.Snapshot, windowNow time.Time, pairs []model.Pair) Result {
	byBoss := GroupByBoss(snap.Clears)
	extra := itemsByBoss(pairs)

	var stats []model.DropRateStat
	for _, boss := range sortedKeys(byBoss) {
		stats = append(stats, FoldBoss(boss, byBoss[boss], windowNow, extra[boss])...)
	}
	if stats == nil {
		stats = []model.DropRateStat{}
	}
	return Result{Stats: stats, Summary: Summarize(snap, windowNow)}
}

// FoldBoss computes the stats of one boss. Clears of other bosses, failed
// attempts and clears after windowNow are ignored. A boss without runs
// yields no stats.
func FoldBoss(bossID string, clears []model.ClearEvent, windowNow time.Time, extraItems []string) []model.DropRateStat {
	cutoffs := [windows]time.Time{
		allTime: {},
		short:   windowNow.Add(-ShortWindow),
		long:    windowNow.Add(-LongWindow),
	}

	var runs [windows]int
	items := make(map[string]*itemCount)

	for _, c := range clears {
		if !counts(c, bossID, windowNow) {
			continue
		}
		var in [windows]bool
		for w := range cutoffs {
			in[w] = w == allTime || !c.OccurredAt.Before(cutoffs[w])
			if in[w] {
				runs[w]++
			}
		}

		perClear := make(map[string]int, len(c.Drops))
		for _, d := range c.Drops {
			perClear[d.ItemID] += d.Quantity
		}
		for item, qty := range perClear {
			ic := items[item]
			if ic == nil {
				ic = &itemCount{}
				items[item] = ic
			}
			for w := range in {
				if in[w] {
					ic.drops[w]++
					ic.quantity[w] += qty
				}
			}
		}
	}

	if runs[allTime] == 0 {
		return nil
	}
	for _, item := range extraItems {
		if _, ok := items[item]; !ok {
			items[item] = &itemCount{}
		}
	}

	out := make([]model.DropRateStat, 0, len(items))
	for _, item := range sortedKeys(items) {
		ic := items[item]
		out = append(out, model.DropRateStat{
			BossID:     bossID,
			ItemID:     item,
			AllTime:    model.NewWindowStat(runs[allTime], ic.drops[allTime], ic.quantity[allTime]),
			Last7Days:  model.NewWindowStat(runs[short], ic.drops[short], ic.quantity[short]),
			Last30Days: model.NewWindowStat(runs[long], ic.drops[long], ic.quantity[long]),
			Confidence: model.TierFor(runs[allTime]),
			ComputedAt: windowNow,
		})
	}
	return out
}

// Summarize builds the community overview of snap as of windowNow from the
// same runs the stats count.
func Summarize(snap model.Snapshot, windowNow time.Time) model.Summary {
	s := model.Summary{ComputedAt: windowNow}
	characters := make(map[string]struct{})
	bossRuns := make(map[string]int)
	itemDrops := make(map[string]int)

	for _, c := range snap.Clears {
		if !counts(c, c.BossID, windowNow) {
			continue
		}
		s.TotalRuns++
		s.TotalDrops += len(c.Drops)
		characters[c.CharacterID] = struct{}{}
		bossRuns[c.BossID]++
		for _, d := range c.Drops {
			itemDrops[d.ItemID]++
		}
	}
	s.UniqueCharacters = len(characters)
	s.MostTrackedBoss = argmax(bossRuns)
	s.MostDroppedItem = argmax(itemDrops)
	return s
}

// GroupByBoss buckets clears by boss id.
func GroupByBoss(clears []model.ClearEvent) map[string][]model.ClearEvent {
	out := make(map[string][]model.ClearEvent)
	for _, c := range clears {
		out[c.BossID] = append(out[c.BossID], c)
	}
	return out
}

func counts(c model.ClearEvent, bossID string, windowNow time.Time) bool {
	return c.BossID == bossID && c.Cleared && !c.OccurredAt.After(windowNow)
}

func itemsByBoss(pairs []model.Pair) map[string][]string {
	out := make(map[string][]string)
	for _, p := range pairs {
		out[p.BossID] = append(out[p.BossID], p.ItemID)
	}
	return out
}

// argmax returns the key with the highest count, the smallest key on ties.
func argmax(m map[string]int) string {
	best, n := "", 0
	for _, k := range sortedKeys(m) {
		if m[k] > n {
			best, n = k, m[k]
		}
	}
	return best
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
