package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/dropwatch/internal/domain/model"
)

// generation is one immutable published projection.
type generation struct {
	at      time.Time
	stats   []model.DropRateStat
	summary model.Summary
	byRate  []int // indexes into stats, all-time rate desc then boss, item
	rare    []int // indexes of stats with drops > 0, rate asc then boss, item
}

// MemoryStatsStore publishes generations by swapping an atomic pointer, so
// readers always see one complete generation.
type MemoryStatsStore struct {
	writeMu sync.Mutex
	current atomic.Pointer[generation]
}

// NewMemoryStatsStore creates an empty projection.
func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{}
}

func (s *MemoryStatsStore) Replace(ctx context.Context, at time.Time, stats []model.DropRateStat, summary model.Summary) error {
	if err := ctx.Err(); err != nil {
		return model.StorageError("replace projection", err)
	}

	g := &generation{
		at:      at,
		stats:   append([]model.DropRateStat(nil), stats...),
		summary: summary,
	}
	g.index()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if cur := s.current.Load(); cur != nil && at.Before(cur.at) {
		return fmt.Errorf("replace projection %s < %s: %w",
			at.Format(time.RFC3339Nano), cur.at.Format(time.RFC3339Nano), model.ErrStaleGeneration)
	}
	s.current.Store(g)
	return nil
}

func (s *MemoryStatsStore) Query(_ context.Context, q model.StatsQuery) ([]model.DropRateStat, error) {
	out := make([]model.DropRateStat, 0)
	g := s.current.Load()
	if g == nil {
		return out, nil
	}
	for _, i := range g.byRate {
		st := g.stats[i]
		if st.AllTime.Runs < q.MinSample {
			continue
		}
		if q.BossID != "" && st.BossID != q.BossID {
			continue
		}
		if q.ItemID != "" && st.ItemID != q.ItemID {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *MemoryStatsStore) Rare(_ context.Context, limit, minSample int) ([]model.DropRateStat, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	out := make([]model.DropRateStat, 0, limit)
	g := s.current.Load()
	if g == nil {
		return out, nil
	}
	for _, i := range g.rare {
		st := g.stats[i]
		if st.AllTime.Runs < minSample {
			continue
		}
		out = append(out, st)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStatsStore) Summary(_ context.Context) (model.Summary, error) {
	g := s.current.Load()
	if g == nil {
		return model.Summary{}, fmt.Errorf("summary: %w", model.ErrNotFound)
	}
	return g.summary, nil
}

func (s *MemoryStatsStore) Generation(_ context.Context) (time.Time, error) {
	g := s.current.Load()
	if g == nil {
		return time.Time{}, nil
	}
	return g.at, nil
}

// Len returns the number of published stats.
func (s *MemoryStatsStore) Len() int {
	g := s.current.Load()
	if g == nil {
		return 0
	}
	return len(g.stats)
}

func (g *generation) index() {
	g.byRate = make([]int, len(g.stats))
	for i := range g.stats {
		g.byRate[i] = i
	}
	sort.SliceStable(g.byRate, func(a, b int) bool {
		x, y := g.stats[g.byRate[a]], g.stats[g.byRate[b]]
		rx, ry := x.AllTime.RateOr(-1), y.AllTime.RateOr(-1)
		if rx != ry {
			return rx > ry
		}
		return pairLess(x, y)
	})

	for i, st := range g.stats {
		if st.AllTime.Drops > 0 {
			g.rare = append(g.rare, i)
		}
	}
	sort.SliceStable(g.rare, func(a, b int) bool {
		x, y := g.stats[g.rare[a]], g.stats[g.rare[b]]
		rx, ry := x.AllTime.RateOr(0), y.AllTime.RateOr(0)
		if rx != ry {
			return rx < ry
		}
		return pairLess(x, y)
	})
}

func pairLess(x, y model.DropRateStat) bool {
	if x.ItemID != y.ItemID {
		return x.ItemID < y.ItemID
	}
	return x.BossID < y.BossID
}
