// Package service wires the stores, the write path, the aggregation side and
// the read path together and implements the dependencies of the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/okian/dropwatch/internal/adapters/cache"
	eventqueue "github.com/okian/dropwatch/internal/adapters/mq/queue"
	"github.com/okian/dropwatch/internal/adapters/mq/worker"
	"github.com/okian/dropwatch/internal/adapters/repository"
	"github.com/okian/dropwatch/internal/adapters/repository/postgres"
	"github.com/okian/dropwatch/internal/adapters/scheduler"
	"github.com/okian/dropwatch/internal/config"
	"github.com/okian/dropwatch/internal/domain/aggregate"
	"github.com/okian/dropwatch/internal/domain/catalog"
	"github.com/okian/dropwatch/internal/domain/clears"
	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/period"
	"github.com/okian/dropwatch/internal/domain/progress"
	"github.com/okian/dropwatch/internal/domain/publish"
	"github.com/okian/dropwatch/pkg/logger"
)

const (
	storageMemory   = "memory"
	storagePostgres = "postgres"
	cacheNone       = "none"
	cacheMemory     = "memory"
	cacheRedis      = "redis"
)

// Service owns every component of a running dropwatch process.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	clock  period.Clock
	logger logger.Logger

	// Storage
	db          *sqlx.DB
	clearStore  repository.ClearStore
	statsStore  repository.StatsStore
	storageKind string

	// Cache
	cache     publish.Cache
	cacheKind string
	closers   []func() error

	// Domain
	catalog   *catalog.Catalog
	resolver  *period.Resolver
	recorder  *clears.Recorder
	engine    *aggregate.Engine
	publisher *publish.Publisher
	tracker   *progress.Tracker

	// Recompute plumbing
	queue     *eventqueue.InMemoryQueue
	worker    *worker.InvalidationWorker
	scheduler *scheduler.Scheduler

	// State
	started   bool
	startedAt time.Time
	cancel    context.CancelFunc
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c period.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithCatalog replaces the configured boss catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithStores replaces the configured event store and projection.
func WithStores(c repository.ClearStore, st repository.StatsStore) Option {
	return func(s *Service) {
		if c != nil && st != nil {
			s.clearStore, s.statsStore = c, st
			s.storageKind = "custom"
		}
	}
}

// WithCache replaces the configured stats cache.
func WithCache(c publish.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
			s.cacheKind = "custom"
		}
	}
}

// New connects storage and the cache as configured and builds every
// component. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:       cfg,
		clock:     period.SystemClock{},
		cacheKind: cacheNone,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	if err := s.build(ctx); err != nil {
		_ = s.close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build(ctx context.Context) error {
	cfg := s.cfg

	if s.catalog == nil {
		var err error
		if cfg.CatalogPath != "" {
			s.catalog, err = catalog.LoadFile(cfg.CatalogPath)
		} else {
			s.catalog, err = catalog.Default()
		}
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	anchor, err := cfg.Anchor()
	if err != nil {
		return err
	}
	s.resolver = period.NewResolver(period.WithLocation(loc), period.WithAnchor(anchor))

	if err := s.openStorage(ctx); err != nil {
		return err
	}
	if err := s.openCache(ctx); err != nil {
		return err
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(cfg.QueueSize))

	s.engine = aggregate.NewEngine(s.clearStore, s.statsStore,
		aggregate.WithPairSource(s.catalog),
		aggregate.WithConcurrency(cfg.RecomputeConcurrency),
		aggregate.WithLogger(s.logger.Named("aggregate")),
	)

	s.recorder = clears.New(s.clearStore, s.catalog, s.resolver, s.clock, s,
		clears.WithMaxPartySize(cfg.MaxPartySize),
		clears.WithFutureSkew(cfg.FutureSkew()),
		clears.WithLogger(s.logger.Named("clears")),
	)

	pubOpts := []publish.Option{
		publish.WithFloor(cfg.PublicMinSample),
		publish.WithMaxRareLimit(cfg.MaxRareLimit),
		publish.WithTTL(cfg.CacheTTL()),
		publish.WithLogger(s.logger.Named("publish")),
	}
	if s.cache != nil {
		pubOpts = append(pubOpts, publish.WithCache(s.cache))
	}
	s.publisher = publish.New(s.statsStore, pubOpts...)

	s.tracker = progress.New(s.catalog, s.clearStore, s.resolver, s.clock)

	s.worker = worker.NewInvalidationWorker(s.queue, worker.RecomputeFunc(s.recompute),
		worker.WithName("invalidation-worker"),
		worker.WithDebounce(cfg.RecomputeDebounce()),
		worker.WithLogger(s.logger),
	)

	backoff := scheduler.DefaultBackoff()
	backoff.MaxAttempts = cfg.RecomputeMaxRetries
	s.scheduler, err = scheduler.New(cfg.RecomputeSchedule, s.recompute,
		scheduler.WithBackoff(backoff),
		scheduler.WithLogger(s.logger.Named("scheduler")),
	)
	if err != nil {
		return fmt.Errorf("recompute schedule: %w", err)
	}
	return nil
}

func (s *Service) openStorage(ctx context.Context) error {
	if s.clearStore != nil {
		return nil
	}
	if s.cfg.DatabaseURL == "" {
		s.clearStore = repository.NewMemoryClearStore(repository.WithClock(s.clock))
		s.statsStore = repository.NewMemoryStatsStore()
		s.storageKind = storageMemory
		return nil
	}

	db, err := postgres.Open(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	s.db = db
	s.closers = append(s.closers, db.Close)
	if s.cfg.AutoMigrate {
		if err := postgres.Migrate(db, postgres.Up); err != nil {
			return err
		}
	}
	s.clearStore = postgres.NewClearStore(db, s.clock)
	s.statsStore = postgres.NewStatsStore(db)
	s.storageKind = storagePostgres
	return nil
}

// openCache uses Redis when configured. Without Redis, a postgres-backed
// projection still gets an in-process cache. A zero TTL turns caching off.
func (s *Service) openCache(ctx context.Context) error {
	if s.cfg.CacheTTLSeconds == 0 {
		s.cache, s.cacheKind = nil, cacheNone
		return nil
	}
	if s.cache != nil {
		return nil
	}
	switch {
	case s.cfg.RedisAddr != "":
		r, err := cache.NewRedis(ctx, s.cfg.RedisAddr,
			cache.WithPassword(s.cfg.RedisPassword),
			cache.WithDB(s.cfg.RedisDB))
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		s.cache, s.cacheKind = r, cacheRedis
		s.closers = append(s.closers, r.Close)
	case s.storageKind == storagePostgres:
		s.cache, s.cacheKind = cache.NewMemory(s.clock), cacheMemory
	}
	return nil
}

// Start runs the invalidation worker and the recompute scheduler, and kicks
// off one recompute so the projection is populated early.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go s.worker.Run(runCtx)
	if err := s.scheduler.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start scheduler: %w", err)
	}
	go func() {
		if err := s.scheduler.RunOnce(runCtx); err != nil {
			s.logger.Warn(runCtx, "initial recompute failed", logger.Error(err))
		}
	}()

	s.cancel = cancel
	s.started = true
	s.startedAt = s.clock.Now()
	s.logger.Info(ctx, "dropwatch service started",
		logger.String("storage", s.storageKind),
		logger.String("cache", s.cacheKind),
		logger.Int("bosses", s.catalog.Len()),
		logger.Int("queueSize", s.queue.Capacity()),
		logger.String("schedule", s.cfg.RecomputeSchedule),
	)
	return nil
}

// Stop stops the scheduler, drains pending invalidations into a final
// recompute and releases storage. ctx bounds the drain.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.started {
		s.logger.Info(ctx, "stopping dropwatch service...")
		s.scheduler.Stop()
		_ = s.queue.Close()
		select {
		case <-s.worker.Done():
		case <-ctx.Done():
			errs = append(errs, s.worker.Shutdown(ctx))
		}
		s.cancel()
		s.started = false
	}
	errs = append(errs, s.close())
	s.logger.Info(ctx, "dropwatch service stopped")
	return errors.Join(errs...)
}

func (s *Service) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Invalidate queues a recompute signal when write-driven recomputes are on.
func (s *Service) Invalidate(ctx context.Context, inv model.Invalidation) {
	if !s.cfg.RecomputeOnWrite {
		return
	}
	if !s.queue.Enqueue(ctx, inv) {
		s.logger.Warn(ctx, "invalidation dropped",
			logger.String("boss", inv.BossID),
			logger.String("reason", inv.Reason))
	}
}

func (s *Service) recompute(ctx context.Context) error {
	_, err := s.engine.Recompute(ctx, s.clock.Now())
	return err
}

// RecordClear records a new clear.
func (s *Service) RecordClear(ctx context.Context, in clears.RecordInput) (model.ClearEvent, error) {
	return s.recorder.Record(ctx, in)
}

// GetClear returns one clear.
func (s *Service) GetClear(ctx context.Context, id string) (model.ClearEvent, error) {
	return s.recorder.Get(ctx, id)
}

// ListClears returns clears matching f, newest first.
func (s *Service) ListClears(ctx context.Context, f model.ClearFilter) ([]model.ClearEvent, error) {
	return s.recorder.List(ctx, f)
}

// UpdateClear changes the mutable fields of a clear.
func (s *Service) UpdateClear(ctx context.Context, id string, in clears.UpdateInput) (model.ClearEvent, error) {
	return s.recorder.Update(ctx, id, in)
}

// DeleteClear removes a clear and its drops.
func (s *Service) DeleteClear(ctx context.Context, id string) error {
	return s.recorder.Delete(ctx, id)
}

// AddDrop attaches a drop to an existing clear.
func (s *Service) AddDrop(ctx context.Context, clearID string, in clears.DropInput) (model.DropEvent, error) {
	return s.recorder.AddDrop(ctx, clearID, in)
}

// Stats returns published drop-rate stats.
func (s *Service) Stats(ctx context.Context, q model.StatsQuery) ([]model.DropRateStat, error) {
	return s.publisher.Query(ctx, q)
}

// Rare returns the rare-drop leaderboard.
func (s *Service) Rare(ctx context.Context, limit, minSample int) ([]model.RareEntry, error) {
	return s.publisher.Rare(ctx, limit, minSample)
}

// Overview returns the community summary.
func (s *Service) Overview(ctx context.Context) (model.Summary, error) {
	return s.publisher.Overview(ctx)
}

// Progress returns a character's current-period status per boss.
func (s *Service) Progress(ctx context.Context, characterID string) (model.Progress, error) {
	return s.tracker.Progress(ctx, characterID)
}

// Bosses lists the boss catalog.
func (s *Service) Bosses(ctx context.Context) []model.Boss {
	return s.catalog.Bosses(ctx)
}

// Recompute rebuilds the projection now.
func (s *Service) Recompute(ctx context.Context) (aggregate.Report, error) {
	return s.engine.Recompute(ctx, s.clock.Now())
}

// Status reports the operational state.
func (s *Service) Status(ctx context.Context) model.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := model.Status{
		Started:       s.started,
		Storage:       s.storageKind,
		Cache:         s.cacheKind,
		Bosses:        s.catalog.Len(),
		QueueLength:   s.queue.Len(ctx),
		QueueCapacity: s.queue.Capacity(),
		PendingBosses: s.worker.Pending(),
		ResetTimezone: s.resolver.Location().String(),
		WeeklyAnchor:  s.resolver.Anchor().String(),
	}
	if s.started {
		at := s.startedAt
		st.StartedAt = &at
	}
	if gen, err := s.statsStore.Generation(ctx); err == nil && !gen.IsZero() {
		st.Generation = &gen
	}
	return st
}
