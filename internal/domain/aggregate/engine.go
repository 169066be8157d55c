package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/pkg/logger"
	"github.com/okian/dropwatch/pkg/metrics"
)

const defaultConcurrency = 4

// SnapshotReader reads every clear as of one instant.
type SnapshotReader interface {
	Snapshot(ctx context.Context) (model.Snapshot, error)
}

// StatsWriter publishes a complete generation of stats.
type StatsWriter interface {
	Replace(ctx context.Context, generation time.Time, stats []model.DropRateStat, summary model.Summary) error
}

// PairSource lists (boss, item) pairs that must be reported even without drops.
type PairSource interface {
	Pairs(ctx context.Context) []model.Pair
}

// Report describes one recompute.
type Report struct {
	Generation time.Time `json:"generation"`
	Stats      int       `json:"stats"`
	Bosses     int       `json:"bosses"`
	Runs       int       `json:"runs"`
	DurationMs float64   `json:"duration_ms"`
	Skipped    bool      `json:"skipped"`
	Reason     string    `json:"reason,omitempty"`
}

// Engine recomputes the projection from the event store. At most one
// recompute runs at a time; a second caller gets model.ErrRecomputeInProgress
// instead of waiting.
type Engine struct {
	mu sync.Mutex

	reader      SnapshotReader
	writer      StatsWriter
	pairs       PairSource
	concurrency int
	logger      logger.Logger
}

// NewEngine creates an Engine.
func NewEngine(reader SnapshotReader, writer StatsWriter, opts ...Option) *Engine {
	e := &Engine{
		reader:      reader,
		writer:      writer,
		concurrency: defaultConcurrency,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recompute folds a fresh snapshot as of windowNow and publishes it with one
// Replace. On any failure the published projection is left as it was. A
// generation older than the published one is reported as skipped.
func (e *Engine) Recompute(ctx context.Context, windowNow time.Time) (Report, error) {
	if !e.mu.TryLock() {
		metrics.RecordRecompute(metrics.RecomputeInProgress, 0)
		return Report{}, fmt.Errorf("recompute: %w", model.ErrRecomputeInProgress)
	}
	defer e.mu.Unlock()

	start := time.Now()
	report := Report{Generation: windowNow}

	snap, err := e.reader.Snapshot(ctx)
	if err != nil {
		return e.fail(ctx, start, model.StorageError("read snapshot", err))
	}

	var pairs []model.Pair
	if e.pairs != nil {
		pairs = e.pairs.Pairs(ctx)
	}
	extra := itemsByBoss(pairs)
	byBoss := GroupByBoss(snap.Clears)
	bosses := sortedKeys(byBoss)

	folded := make([][]model.DropRateStat, len(bosses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, boss := range bosses {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			folded[i] = FoldBoss(boss, byBoss[boss], windowNow, extra[boss])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return e.fail(ctx, start, err)
	}

	stats := make([]model.DropRateStat, 0)
	for _, rows := range folded {
		if len(rows) > 0 {
			report.Bosses++
			report.Runs += rows[0].AllTime.Runs
		}
		stats = append(stats, rows...)
	}
	report.Stats = len(stats)
	summary := Summarize(snap, windowNow)

	err = e.writer.Replace(ctx, windowNow, stats, summary)
	report.DurationMs = float64(time.Since(start).Microseconds()) / 1000
	if errors.Is(err, model.ErrStaleGeneration) {
		report.Skipped = true
		report.Reason = "stale generation"
		metrics.RecordRecompute(metrics.RecomputeStale, report.DurationMs)
		e.logger.Warn(ctx, "recompute skipped, newer generation already published",
			logger.Time("generation", windowNow))
		return report, nil
	}
	if err != nil {
		return e.fail(ctx, start, model.StorageError("publish stats", err))
	}

	metrics.RecordRecompute(metrics.RecomputeOK, report.DurationMs)
	metrics.UpdateProjection(report.Stats, windowNow)
	e.logger.Info(ctx, "recompute published",
		logger.Time("generation", windowNow),
		logger.Int("stats", report.Stats),
		logger.Int("bosses", report.Bosses),
		logger.Int("runs", report.Runs),
		logger.Float64("duration_ms", report.DurationMs))
	return report, nil
}

func (e *Engine) fail(ctx context.Context, start time.Time, err error) (Report, error) {
	metrics.RecordRecompute(metrics.RecomputeError, float64(time.Since(start).Microseconds())/1000)
	metrics.RecordErrorByComponent("aggregate", "recompute")
	e.logger.Error(ctx, "recompute failed", logger.Error(err))
	return Report{}, fmt.Errorf("recompute: %w", err)
}
