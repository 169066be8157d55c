package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/okian/dropwatch/internal/adapters/repository"
	"github.com/okian/dropwatch/internal/domain/model"
)

var _ repository.StatsStore = (*StatsStore)(nil)

const insertBatchSize = 500

const statColumns = `boss_id, item_id,
	all_runs, all_drops, all_quantity, all_rate,
	d7_runs, d7_drops, d7_quantity, d7_rate,
	d30_runs, d30_drops, d30_quantity, d30_rate,
	confidence, computed_at`

const insertStat = `INSERT INTO drop_rate_stats (` + statColumns + `) VALUES (
	:boss_id, :item_id,
	:all_runs, :all_drops, :all_quantity, :all_rate,
	:d7_runs, :d7_drops, :d7_quantity, :d7_rate,
	:d30_runs, :d30_drops, :d30_quantity, :d30_rate,
	:confidence, :computed_at)`

type statRow struct {
	BossID      string          `db:"boss_id"`
	ItemID      string          `db:"item_id"`
	AllRuns     int             `db:"all_runs"`
	AllDrops    int             `db:"all_drops"`
	AllQuantity int             `db:"all_quantity"`
	AllRate     sql.NullFloat64 `db:"all_rate"`
	D7Runs      int             `db:"d7_runs"`
	D7Drops     int             `db:"d7_drops"`
	D7Quantity  int             `db:"d7_quantity"`
	D7Rate      sql.NullFloat64 `db:"d7_rate"`
	D30Runs     int             `db:"d30_runs"`
	D30Drops    int             `db:"d30_drops"`
	D30Quantity int             `db:"d30_quantity"`
	D30Rate     sql.NullFloat64 `db:"d30_rate"`
	Confidence  string          `db:"confidence"`
	ComputedAt  time.Time       `db:"computed_at"`
}

func nullRate(r *float64) sql.NullFloat64 {
	if r == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *r, Valid: true}
}

func window(runs, drops, qty int, rate sql.NullFloat64) model.WindowStat {
	w := model.WindowStat{Runs: runs, Drops: drops, Quantity: qty}
	if rate.Valid {
		r := rate.Float64
		w.Rate = &r
	}
	return w
}

func fromStat(s model.DropRateStat) statRow {
	return statRow{
		BossID: s.BossID, ItemID: s.ItemID,
		AllRuns: s.AllTime.Runs, AllDrops: s.AllTime.Drops, AllQuantity: s.AllTime.Quantity, AllRate: nullRate(s.AllTime.Rate),
		D7Runs: s.Last7Days.Runs, D7Drops: s.Last7Days.Drops, D7Quantity: s.Last7Days.Quantity, D7Rate: nullRate(s.Last7Days.Rate),
		D30Runs: s.Last30Days.Runs, D30Drops: s.Last30Days.Drops, D30Quantity: s.Last30Days.Quantity, D30Rate: nullRate(s.Last30Days.Rate),
		Confidence: string(s.Confidence),
		ComputedAt: s.ComputedAt.UTC(),
	}
}

func (r statRow) toModel() model.DropRateStat {
	return model.DropRateStat{
		BossID:     r.BossID,
		ItemID:     r.ItemID,
		AllTime:    window(r.AllRuns, r.AllDrops, r.AllQuantity, r.AllRate),
		Last7Days:  window(r.D7Runs, r.D7Drops, r.D7Quantity, r.D7Rate),
		Last30Days: window(r.D30Runs, r.D30Drops, r.D30Quantity, r.D30Rate),
		Confidence: model.Tier(r.Confidence),
		ComputedAt: r.ComputedAt.UTC(),
	}
}

type generationRow struct {
	Generation       sql.NullTime `db:"generation"`
	TotalRuns        int          `db:"total_runs"`
	TotalDrops       int          `db:"total_drops"`
	UniqueCharacters int          `db:"unique_characters"`
	MostTrackedBoss  string       `db:"most_tracked_boss"`
	MostDroppedItem  string       `db:"most_dropped_item"`
}

// StatsStore keeps the published projection in PostgreSQL. Replace runs as
// one transaction holding the generation row lock, so readers outside the
// transaction see either the old or the new generation in full.
type StatsStore struct {
	db *sqlx.DB
}

// NewStatsStore wraps an open database.
func NewStatsStore(db *sqlx.DB) *StatsStore {
	return &StatsStore{db: db}
}

func (s *StatsStore) Replace(ctx context.Context, at time.Time, stats []model.DropRateStat, summary model.Summary) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.StorageError("replace projection", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current sql.NullTime
	err = tx.GetContext(ctx, &current, `SELECT generation FROM stats_generation WHERE id = 1 FOR UPDATE`)
	if err != nil {
		return model.StorageError("lock generation", err)
	}
	if current.Valid && at.Before(current.Time) {
		return fmt.Errorf("replace projection %s < %s: %w",
			at.UTC().Format(time.RFC3339Nano), current.Time.UTC().Format(time.RFC3339Nano), model.ErrStaleGeneration)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM drop_rate_stats`); err != nil {
		return model.StorageError("clear projection", err)
	}

	rows := make([]statRow, len(stats))
	for i, st := range stats {
		rows[i] = fromStat(st)
	}
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if _, err = tx.NamedExecContext(ctx, insertStat, rows[start:end]); err != nil {
			return model.StorageError("insert projection", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE stats_generation
		SET generation = $1, total_runs = $2, total_drops = $3, unique_characters = $4,
		    most_tracked_boss = $5, most_dropped_item = $6
		WHERE id = 1`,
		at.UTC(), summary.TotalRuns, summary.TotalDrops, summary.UniqueCharacters,
		summary.MostTrackedBoss, summary.MostDroppedItem)
	if err != nil {
		return model.StorageError("update generation", err)
	}

	if err = tx.Commit(); err != nil {
		return model.StorageError("commit projection", err)
	}
	return nil
}

func (s *StatsStore) Query(ctx context.Context, q model.StatsQuery) ([]model.DropRateStat, error) {
	var rows []statRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+statColumns+`
		FROM drop_rate_stats
		WHERE all_runs >= $1
		  AND ($2 = '' OR boss_id = $2)
		  AND ($3 = '' OR item_id = $3)
		ORDER BY all_rate DESC NULLS LAST, item_id, boss_id`,
		q.MinSample, q.BossID, q.ItemID)
	if err != nil {
		return nil, model.StorageError("query stats", err)
	}
	return toStats(rows), nil
}

func (s *StatsStore) Rare(ctx context.Context, limit, minSample int) ([]model.DropRateStat, error) {
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	var rows []statRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+statColumns+`
		FROM drop_rate_stats
		WHERE all_runs >= $1 AND all_drops > 0
		ORDER BY all_rate ASC, item_id, boss_id
		LIMIT $2`,
		minSample, limit)
	if err != nil {
		return nil, model.StorageError("rare stats", err)
	}
	return toStats(rows), nil
}

func (s *StatsStore) Summary(ctx context.Context) (model.Summary, error) {
	var row generationRow
	err := s.db.GetContext(ctx, &row, `
		SELECT generation, total_runs, total_drops, unique_characters, most_tracked_boss, most_dropped_item
		FROM stats_generation WHERE id = 1`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.Summary{}, model.StorageError("summary", err)
	}
	if err != nil || !row.Generation.Valid {
		return model.Summary{}, fmt.Errorf("summary: %w", model.ErrNotFound)
	}
	return model.Summary{
		TotalRuns:        row.TotalRuns,
		TotalDrops:       row.TotalDrops,
		UniqueCharacters: row.UniqueCharacters,
		MostTrackedBoss:  row.MostTrackedBoss,
		MostDroppedItem:  row.MostDroppedItem,
		ComputedAt:       row.Generation.Time.UTC(),
	}, nil
}

func (s *StatsStore) Generation(ctx context.Context) (time.Time, error) {
	var gen sql.NullTime
	err := s.db.GetContext(ctx, &gen, `SELECT generation FROM stats_generation WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, model.StorageError("generation", err)
	}
	if !gen.Valid {
		return time.Time{}, nil
	}
	return gen.Time.UTC(), nil
}

func toStats(rows []statRow) []model.DropRateStat {
	out := make([]model.DropRateStat, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out
}
