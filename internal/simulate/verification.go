package simulate

import (
	"errors"
	"fmt"

	"github.com/okian/dropwatch/internal/domain/model"
)

// ErrMismatch is returned when published stats disagree with the clears
// that were accepted.
var ErrMismatch = errors.New("stats mismatch")

// Verification is the outcome of comparing two stat snapshots.
type Verification struct {
	Verified   int
	Skipped    int
	Mismatches []string
}

// Verify checks that the all-time counts moved from before to after by
// exactly exp. It assumes nobody else wrote clears in between. A pair
// missing from before counts from zero when its boss had no published
// stats at all; otherwise it is skipped.
func Verify(exp Expectation, before, after []model.DropRateStat) Verification {
	base := make(map[model.Pair]model.WindowStat, len(before))
	bossSeen := make(map[string]bool)
	for _, s := range before {
		base[model.Pair{BossID: s.BossID, ItemID: s.ItemID}] = s.AllTime
		bossSeen[s.BossID] = true
	}

	var v Verification
	checked := make(map[model.Pair]bool)
	for _, s := range after {
		p := model.Pair{BossID: s.BossID, ItemID: s.ItemID}
		checked[p] = true
		prev, ok := base[p]
		if !ok && bossSeen[p.BossID] {
			v.Skipped++
			continue
		}
		if got, want := s.AllTime.Runs-prev.Runs, exp.Runs[p.BossID]; got != want {
			v.Mismatches = append(v.Mismatches, fmt.Sprintf("%s/%s: runs moved by %d, want %d", p.BossID, p.ItemID, got, want))
			continue
		}
		if got, want := s.AllTime.Drops-prev.Drops, exp.Drops[p]; got != want {
			v.Mismatches = append(v.Mismatches, fmt.Sprintf("%s/%s: drops moved by %d, want %d", p.BossID, p.ItemID, got, want))
			continue
		}
		v.Verified++
	}

	// Unpublished pairs may sit under the public sample floor.
	for p, n := range exp.Drops {
		if n > 0 && !checked[p] {
			v.Skipped++
		}
	}
	return v
}

// Err returns ErrMismatch listing the first mismatch, or nil.
func (v Verification) Err() error {
	if len(v.Mismatches) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d pairs, first: %s", ErrMismatch, len(v.Mismatches), v.Mismatches[0])
}
