package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/dropwatch/internal/domain/clears"
	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/pkg/logger"
)

const (
	directoryPermission = 0750
	recomputeAttempts   = 20
	recomputeRetryDelay = 250 * time.Millisecond
)

// ErrNoBosses is returned when none of the requested bosses exist.
var ErrNoBosses = errors.New("no bosses to simulate")

// Run executes a complete simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("characters", cfg.Characters),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", cfg.Seed))

	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	bosses, err := selectBosses(ctx, client, cfg.Bosses)
	if err != nil {
		return stats, err
	}

	before, err := client.Stats(ctx)
	if err != nil {
		return stats, fmt.Errorf("baseline stats: %w", err)
	}

	plan := Generate(cfg, bosses)
	stats.ClearsGenerated = len(plan.Clears)
	log.Info(ctx, "clears generated",
		logger.Int("clears", len(plan.Clears)),
		logger.Int("duplicates", plan.Duplicates))

	accepted, err := submit(ctx, client, cfg.Workers, plan.Clears, stats)
	if err != nil {
		return stats, fmt.Errorf("clear submission failed: %w", err)
	}
	if stats.Duplicates != plan.Duplicates {
		return stats, fmt.Errorf("%w: %d duplicates rejected, want %d",
			ErrMismatch, stats.Duplicates, plan.Duplicates)
	}

	if err := recompute(ctx, client); err != nil {
		return stats, fmt.Errorf("recompute failed: %w", err)
	}

	after, err := client.Stats(ctx)
	if err != nil {
		return stats, fmt.Errorf("stats after run: %w", err)
	}

	v := Verify(Expect(accepted), before, after)
	stats.PairsVerified, stats.PairsSkipped = v.Verified, v.Skipped
	if err := v.Err(); err != nil {
		return stats, err
	}

	if cfg.OutputFile != "" {
		if err := saveClears(cfg.OutputFile, plan.Clears); err != nil {
			log.Warn(ctx, "failed to save clears to file", logger.Error(err))
		} else {
			log.Info(ctx, "clears saved to file", logger.String("filename", cfg.OutputFile))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logStats(ctx, log, stats)
	return stats, nil
}

func selectBosses(ctx context.Context, client *Client, ids []string) ([]model.Boss, error) {
	all, err := client.Bosses(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch bosses: %w", err)
	}
	var out []model.Boss
	for _, b := range all {
		if !b.IsActive() {
			continue
		}
		if len(ids) == 0 || slices.Contains(ids, b.ID) {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoBosses
	}
	return out, nil
}

// submit posts every clear with at most workers requests in flight and
// returns the accepted ones. A rejected clear aborts the run.
func submit(ctx context.Context, client *Client, workers int, plan []clears.RecordInput, stats *Stats) ([]clears.RecordInput, error) {
	var (
		mu       sync.Mutex
		accepted []clears.RecordInput
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, in := range plan {
		g.Go(func() error {
			outcome, err := client.RecordClear(gctx, in)

			mu.Lock()
			defer mu.Unlock()
			stats.Submitted++
			switch outcome {
			case Accepted:
				stats.Accepted++
				accepted = append(accepted, in)
			case Duplicate:
				stats.Duplicates++
			default:
				stats.Failed++
			}
			return err
		})
	}
	err := g.Wait()
	return accepted, err
}

// recompute forces a fresh generation, waiting out one already running.
func recompute(ctx context.Context, client *Client) error {
	for attempt := 1; attempt <= recomputeAttempts; attempt++ {
		done, err := client.Recompute(ctx)
		if err != nil || done {
			return err
		}
		if err := sleepCtx(ctx, recomputeRetryDelay); err != nil {
			return err
		}
	}
	return fmt.Errorf("recompute still in progress after %d attempts", recomputeAttempts)
}

func saveClears(filename string, plan []clears.RecordInput) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("encode clears: %w", err)
	}
	return os.WriteFile(filename, append(data, '\n'), 0o600)
}

func logStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var clearsPerSecond float64
	if stats.Duration > 0 {
		clearsPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("clearsGenerated", stats.ClearsGenerated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("failed", stats.Failed),
		logger.Int("pairsVerified", stats.PairsVerified),
		logger.Int("pairsSkipped", stats.PairsSkipped),
		logger.Duration("duration", stats.Duration),
		logger.Float64("clearsPerSecond", clearsPerSecond))
}
