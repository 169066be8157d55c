package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/dropwatch/internal/domain/dedupe"
	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/period"
	"github.com/okian/dropwatch/pkg/metrics"
)

// MemoryClearStore keeps clears in process memory.
//
// Uniqueness of (character, boss, period) is enforced by the claim set: a
// claim is taken before the row is stored and released when the row goes
// away, so two concurrent inserts of one tuple can never both succeed.
type MemoryClearStore struct {
	mu         sync.RWMutex
	clears     map[string]model.ClearEvent
	nextDropID int64

	claims dedupe.Deduper
	clock  period.Clock
}

// NewMemoryClearStore creates an empty store.
func NewMemoryClearStore(opts ...Option) *MemoryClearStore {
	s := &MemoryClearStore{
		clears: make(map[string]model.ClearEvent),
		claims: dedupe.NewInMemoryDeduper(),
		clock:  period.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryClearStore) InsertClear(ctx context.Context, c model.ClearEvent) (model.ClearEvent, error) {
	if err := ctx.Err(); err != nil {
		return model.ClearEvent{}, model.StorageError("insert clear", err)
	}

	key := c.IdempotenceKey()
	if s.claims.SeenAndRecord(ctx, key) {
		metrics.RecordErrorByComponent("repository", "duplicate")
		return model.ClearEvent{}, fmt.Errorf("insert clear: %w", model.ErrDuplicatePeriodClear)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := s.clears[c.ID]; exists {
		s.claims.Unrecord(ctx, key)
		return model.ClearEvent{}, fmt.Errorf("insert clear %s: id already used: %w", c.ID, model.ErrValidation)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock.Now().UTC()
	}

	stored := c.Clone()
	if stored.Drops == nil {
		stored.Drops = []model.DropEvent{}
	}
	for i := range stored.Drops {
		s.nextDropID++
		stored.Drops[i].ID = s.nextDropID
		stored.Drops[i].ClearID = stored.ID
	}
	s.clears[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *MemoryClearStore) GetClear(_ context.Context, id string) (model.ClearEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clears[id]
	if !ok {
		return model.ClearEvent{}, fmt.Errorf("clear %s: %w", id, model.ErrNotFound)
	}
	return c.Clone(), nil
}

func (s *MemoryClearStore) ListClears(_ context.Context, f model.ClearFilter) ([]model.ClearEvent, error) {
	if f.Limit < 0 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	out := make([]model.ClearEvent, 0)
	for _, c := range s.clears {
		if f.Matches(c) {
			out = append(out, c.Clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryClearStore) UpdateClear(_ context.Context, id string, patch model.ClearPatch) (model.ClearEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clears[id]
	if !ok {
		return model.ClearEvent{}, fmt.Errorf("clear %s: %w", id, model.ErrNotFound)
	}
	if patch.PartySize != nil {
		c.PartySize = *patch.PartySize
	}
	if patch.Notes != nil {
		c.Notes = *patch.Notes
	}
	s.clears[id] = c
	return c.Clone(), nil
}

func (s *MemoryClearStore) DeleteClear(ctx context.Context, id string) (model.ClearEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clears[id]
	if !ok {
		return model.ClearEvent{}, fmt.Errorf("clear %s: %w", id, model.ErrNotFound)
	}
	delete(s.clears, id)
	s.claims.Unrecord(ctx, c.IdempotenceKey())
	return c, nil
}

func (s *MemoryClearStore) AddDrop(_ context.Context, clearID string, d model.DropEvent) (model.DropEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clears[clearID]
	if !ok {
		return model.DropEvent{}, fmt.Errorf("clear %s: %w", clearID, model.ErrNotFound)
	}
	s.nextDropID++
	d = d.Clone()
	d.ID = s.nextDropID
	d.ClearID = clearID

	drops := make([]model.DropEvent, len(c.Drops), len(c.Drops)+1)
	copy(drops, c.Drops)
	c.Drops = append(drops, d)
	s.clears[clearID] = c
	return d.Clone(), nil
}

// Snapshot copies every clear under the read lock.
func (s *MemoryClearStore) Snapshot(ctx context.Context) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, model.StorageError("snapshot", err)
	}

	s.mu.RLock()
	out := make([]model.ClearEvent, 0, len(s.clears))
	for _, c := range s.clears {
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return model.Snapshot{Clears: out}, nil
}

// Count returns the number of stored clears.
func (s *MemoryClearStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clears)
}

func sortNewestFirst(cs []model.ClearEvent) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].OccurredAt.Equal(cs[j].OccurredAt) {
			return cs[i].OccurredAt.After(cs[j].OccurredAt)
		}
		return cs[i].ID < cs[j].ID
	})
}
