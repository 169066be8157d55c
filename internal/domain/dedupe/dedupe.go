// Package dedupe provides an atomic claim set for idempotence keys.
package dedupe

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
)

const keySeparator = "\x1f"

// Deduper records claimed keys so that at most one caller owns each key.
type Deduper interface {
	// SeenAndRecord atomically checks if id was claimed and claims it if not.
	// Returns true if id was already claimed, false if this call claimed it.
	SeenAndRecord(ctx context.Context, id string) bool

	// Seen reports whether id is currently claimed.
	Seen(ctx context.Context, id string) bool

	// Unrecord releases a claim, after a delete or a failed write.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// Key joins the parts of a composite idempotence key.
func Key(parts ...string) string {
	return strings.Join(parts, keySeparator)
}

type shard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// inMemoryDeduper spreads keys over independently locked shards. Each call
// takes exactly one shard lock, so claims on different keys never wait on
// each other beyond a shared shard and can never deadlock.
type inMemoryDeduper struct {
	shards []*shard
	size   atomic.Int64
}

// NewInMemoryDeduper creates an unbounded in-memory claim set.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	n := defaultShards
	for _, opt := range opts {
		opt(&n)
	}
	d.shards = make([]*shard, n)
	for i := range d.shards {
		d.shards[i] = &shard{seen: make(map[string]struct{})}
	}
	return d
}

func (d *inMemoryDeduper) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return d.shards[h.Sum32()%uint32(len(d.shards))]
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	s := d.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[id]; exists {
		return true
	}
	s.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Seen(_ context.Context, id string) bool {
	s := d.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.seen[id]
	return exists
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	s := d.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.seen[id]; exists {
		delete(s.seen, id)
		d.size.Add(-1)
	}
}

// Size returns the number of claimed keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
