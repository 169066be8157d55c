package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/okian/dropwatch/internal/adapters/repository"
	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/period"
)

var _ repository.ClearStore = (*ClearStore)(nil)

const clearColumns = `id, character_id, boss_id, period_key, occurred_at, party_size, cleared, notes, created_at`

const dropColumns = `id, clear_id, item_id, quantity, sale_price`

type clearRow struct {
	ID          string     `db:"id"`
	CharacterID string     `db:"character_id"`
	BossID      string     `db:"boss_id"`
	PeriodKey   period.Key `db:"period_key"`
	OccurredAt  time.Time  `db:"occurred_at"`
	PartySize   int        `db:"party_size"`
	Cleared     bool       `db:"cleared"`
	Notes       string     `db:"notes"`
	CreatedAt   time.Time  `db:"created_at"`
}

func (r clearRow) toModel() model.ClearEvent {
	return model.ClearEvent{
		ID:          r.ID,
		CharacterID: r.CharacterID,
		BossID:      r.BossID,
		PeriodKey:   r.PeriodKey,
		OccurredAt:  r.OccurredAt.UTC(),
		PartySize:   r.PartySize,
		Cleared:     r.Cleared,
		Notes:       r.Notes,
		CreatedAt:   r.CreatedAt.UTC(),
		Drops:       []model.DropEvent{},
	}
}

type dropRow struct {
	ID        int64         `db:"id"`
	ClearID   string        `db:"clear_id"`
	ItemID    string        `db:"item_id"`
	Quantity  int           `db:"quantity"`
	SalePrice sql.NullInt64 `db:"sale_price"`
}

func (r dropRow) toModel() model.DropEvent {
	d := model.DropEvent{ID: r.ID, ClearID: r.ClearID, ItemID: r.ItemID, Quantity: r.Quantity}
	if r.SalePrice.Valid {
		p := r.SalePrice.Int64
		d.SalePrice = &p
	}
	return d
}

func nullPrice(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

// ClearStore persists clears in PostgreSQL. The (character, boss, period)
// unique constraint is the source of truth for duplicate detection.
type ClearStore struct {
	db    *sqlx.DB
	clock period.Clock
}

// NewClearStore wraps an open database.
func NewClearStore(db *sqlx.DB, clock period.Clock) *ClearStore {
	if clock == nil {
		clock = period.SystemClock{}
	}
	return &ClearStore{db: db, clock: clock}
}

func (s *ClearStore) InsertClear(ctx context.Context, c model.ClearEvent) (out model.ClearEvent, err error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.ClearEvent{}, model.StorageError("insert clear", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO clears (`+clearColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.CharacterID, c.BossID, c.PeriodKey, c.OccurredAt.UTC(), c.PartySize, c.Cleared, c.Notes, c.CreatedAt)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return model.ClearEvent{}, fmt.Errorf("insert clear: %w", model.ErrDuplicatePeriodClear)
		}
		return model.ClearEvent{}, model.StorageError("insert clear", err)
	}

	drops := make([]model.DropEvent, 0, len(c.Drops))
	for _, d := range c.Drops {
		d.ClearID = c.ID
		if d.ID, err = insertDrop(ctx, tx, d); err != nil {
			return model.ClearEvent{}, model.StorageError("insert drop", err)
		}
		drops = append(drops, d)
	}

	if err = tx.Commit(); err != nil {
		return model.ClearEvent{}, model.StorageError("commit clear", err)
	}

	c.Drops = drops
	c.OccurredAt = c.OccurredAt.UTC()
	return c, nil
}

func insertDrop(ctx context.Context, q sqlx.QueryerContext, d model.DropEvent) (int64, error) {
	var id int64
	err := q.QueryRowxContext(ctx, `
		INSERT INTO drops (clear_id, item_id, quantity, sale_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		d.ClearID, d.ItemID, d.Quantity, nullPrice(d.SalePrice)).Scan(&id)
	return id, err
}

func (s *ClearStore) GetClear(ctx context.Context, id string) (model.ClearEvent, error) {
	var row clearRow
	err := s.db.GetContext(ctx, &row, `SELECT `+clearColumns+` FROM clears WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ClearEvent{}, fmt.Errorf("clear %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.ClearEvent{}, model.StorageError("get clear", err)
	}

	c := row.toModel()
	if err := s.attachDrops(ctx, s.db, []*model.ClearEvent{&c}); err != nil {
		return model.ClearEvent{}, err
	}
	return c, nil
}

func (s *ClearStore) ListClears(ctx context.Context, f model.ClearFilter) ([]model.ClearEvent, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CharacterID != "" {
		add("character_id = $%d", f.CharacterID)
	}
	if f.BossID != "" {
		add("boss_id = $%d", f.BossID)
	}
	if !f.PeriodKey.IsZero() {
		add("period_key = $%d", f.PeriodKey)
	}
	if !f.Since.IsZero() {
		add("occurred_at >= $%d", f.Since.UTC())
	}

	query := `SELECT ` + clearColumns + ` FROM clears`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY occurred_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	var rows []clearRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, model.StorageError("list clears", err)
	}

	out := make([]model.ClearEvent, len(rows))
	ptrs := make([]*model.ClearEvent, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
		ptrs[i] = &out[i]
	}
	if err := s.attachDrops(ctx, s.db, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ClearStore) UpdateClear(ctx context.Context, id string, patch model.ClearPatch) (model.ClearEvent, error) {
	var (
		party sql.NullInt64
		notes sql.NullString
	)
	if patch.PartySize != nil {
		party = sql.NullInt64{Int64: int64(*patch.PartySize), Valid: true}
	}
	if patch.Notes != nil {
		notes = sql.NullString{String: *patch.Notes, Valid: true}
	}

	var row clearRow
	err := s.db.QueryRowxContext(ctx, `
		UPDATE clears
		SET party_size = COALESCE($2, party_size), notes = COALESCE($3, notes)
		WHERE id = $1
		RETURNING `+clearColumns, id, party, notes).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ClearEvent{}, fmt.Errorf("clear %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.ClearEvent{}, model.StorageError("update clear", err)
	}

	c := row.toModel()
	if err := s.attachDrops(ctx, s.db, []*model.ClearEvent{&c}); err != nil {
		return model.ClearEvent{}, err
	}
	return c, nil
}

func (s *ClearStore) DeleteClear(ctx context.Context, id string) (out model.ClearEvent, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.ClearEvent{}, model.StorageError("delete clear", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var row clearRow
	err = tx.GetContext(ctx, &row, `SELECT `+clearColumns+` FROM clears WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ClearEvent{}, fmt.Errorf("clear %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.ClearEvent{}, model.StorageError("delete clear", err)
	}

	out = row.toModel()
	if err = s.attachDrops(ctx, tx, []*model.ClearEvent{&out}); err != nil {
		return model.ClearEvent{}, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM clears WHERE id = $1`, id); err != nil {
		return model.ClearEvent{}, model.StorageError("delete clear", err)
	}
	if err = tx.Commit(); err != nil {
		return model.ClearEvent{}, model.StorageError("commit delete", err)
	}
	return out, nil
}

func (s *ClearStore) AddDrop(ctx context.Context, clearID string, d model.DropEvent) (model.DropEvent, error) {
	d.ClearID = clearID
	id, err := insertDrop(ctx, s.db, d)
	if err != nil {
		if pqCode(err) == foreignKeyViolation {
			return model.DropEvent{}, fmt.Errorf("clear %s: %w", clearID, model.ErrNotFound)
		}
		return model.DropEvent{}, model.StorageError("add drop", err)
	}
	d.ID = id
	return d, nil
}

// Snapshot reads every clear and drop inside one repeatable-read transaction.
func (s *ClearStore) Snapshot(ctx context.Context) (model.Snapshot, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return model.Snapshot{}, model.StorageError("snapshot", err)
	}
	defer func() { _ = tx.Rollback() }()

	var rows []clearRow
	if err := tx.SelectContext(ctx, &rows, `SELECT `+clearColumns+` FROM clears ORDER BY id`); err != nil {
		return model.Snapshot{}, model.StorageError("snapshot clears", err)
	}
	var drops []dropRow
	if err := tx.SelectContext(ctx, &drops, `SELECT `+dropColumns+` FROM drops ORDER BY clear_id, id`); err != nil {
		return model.Snapshot{}, model.StorageError("snapshot drops", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Snapshot{}, model.StorageError("snapshot commit", err)
	}

	byClear := make(map[string][]model.DropEvent, len(rows))
	for _, d := range drops {
		byClear[d.ClearID] = append(byClear[d.ClearID], d.toModel())
	}
	out := make([]model.ClearEvent, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
		if ds, ok := byClear[r.ID]; ok {
			out[i].Drops = ds
		}
	}
	return model.Snapshot{Clears: out}, nil
}

func (s *ClearStore) attachDrops(ctx context.Context, q sqlx.QueryerContext, clears []*model.ClearEvent) error {
	if len(clears) == 0 {
		return nil
	}
	ids := make([]string, len(clears))
	index := make(map[string]*model.ClearEvent, len(clears))
	for i, c := range clears {
		ids[i] = c.ID
		index[c.ID] = c
	}

	var rows []dropRow
	if err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT `+dropColumns+` FROM drops WHERE clear_id = ANY($1) ORDER BY id`, pq.Array(ids)); err != nil {
		return model.StorageError("load drops", err)
	}
	for _, r := range rows {
		if c, ok := index[r.ClearID]; ok {
			c.Drops = append(c.Drops, r.toModel())
		}
	}
	return nil
}
