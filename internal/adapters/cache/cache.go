// Package cache implements the stats result cache on Redis and in memory.
// Values are stored as JSON so both backends behave the same.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/okian/dropwatch/internal/domain/period"
)

var ErrEncode = errors.New("cache encode")

// Redis caches values in a Redis server.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to addr. The connection is verified with Ping.
func NewRedis(ctx context.Context, addr string, opts ...RedisOption) (*Redis, error) {
	o := redisOptions{prefix: "dropwatch:"}
	for _, opt := range opts {
		opt(&o)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: o.password,
		DB:       o.db,
	})
	r := &Redis{client: client, prefix: o.prefix}
	if err := r.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return r, nil
}

// Ping checks the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if err := r.client.Set(ctx, r.prefix+key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

type redisOptions struct {
	password string
	db       int
	prefix   string
}

// RedisOption configures NewRedis.
type RedisOption func(*redisOptions)

// WithPassword sets the AUTH password.
func WithPassword(p string) RedisOption {
	return func(o *redisOptions) { o.password = p }
}

// WithDB selects a logical database.
func WithDB(db int) RedisOption {
	return func(o *redisOptions) { o.db = db }
}

// WithPrefix namespaces every key.
func WithPrefix(p string) RedisOption {
	return func(o *redisOptions) { o.prefix = p }
}

type entry struct {
	value   []byte
	expires time.Time
}

// minSweep is the entry count at which Set first drops expired entries.
const minSweep = 256

// Memory is a process-local cache with per-entry expiry.
// Expired entries are dropped on Get and swept by Set as the map grows.
type Memory struct {
	mu        sync.Mutex
	entries   map[string]entry
	clock     period.Clock
	nextSweep int
}

// NewMemory creates an empty cache. A nil clock uses the system clock.
func NewMemory(clock period.Clock) *Memory {
	if clock == nil {
		clock = period.SystemClock{}
	}
	return &Memory{entries: make(map[string]entry), clock: clock, nextSweep: minSweep}
}

func (m *Memory) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && !m.clock.Now().Before(e.expires) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.value, dst); err != nil {
		return false, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return true, nil
}

func (m *Memory) Set(_ context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if len(m.entries) >= m.nextSweep {
		m.sweep(now)
	}
	m.entries[key] = entry{value: b, expires: now.Add(ttl)}
	return nil
}

// sweep drops expired entries. The next sweep waits until the live set
// doubles so Set stays amortised constant time.
func (m *Memory) sweep(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
	m.nextSweep = max(minSweep, 2*len(m.entries))
}

// Len returns the number of entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
