package history

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/factory-bot/internal/infra/db"
)

// Repo — журнал производства. Только добавление и чтение.
type Repo struct{ db db.DBTX }

func NewRepo(conn db.DBTX) *Repo { return &Repo{db: conn} }

const recordCols = `id, created_at, operator, product, multiplier, planned_cost, actual_cost, variance, status, COALESCE(request_key,'')`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	if err := row.Scan(
		&rec.ID,
		&rec.CreatedAt,
		&rec.Operator,
		&rec.Product,
		&rec.Multiplier,
		&rec.PlannedCost,
		&rec.ActualCost,
		&rec.Variance,
		&rec.Status,
		&rec.RequestKey,
	); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

// Append пишет запись и её позиции; id выдаёт база (BIGSERIAL, строго растёт).
func (r *Repo) Append(ctx context.Context, rec Record) (*Record, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var key any
	if rec.RequestKey != "" {
		key = rec.RequestKey
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO production_history
			(created_at, operator, product, multiplier, planned_cost, actual_cost, variance, status, request_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING `+recordCols,
		rec.CreatedAt.UTC(), rec.Operator, rec.Product, rec.Multiplier,
		rec.PlannedCost, rec.ActualCost, rec.Variance, string(rec.Status), key)
	out, err := scanRecord(row)
	if err != nil {
		return nil, err
	}

	for i, it := range rec.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO production_items (record_id, position, ingredient, unit, planned_qty, actual_qty, unit_cost)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, out.ID, i, it.Ingredient, string(it.Unit), it.PlannedQty, it.ActualQty, it.UnitCost); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	out.Items = rec.Items
	return out, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, `SELECT `+recordCols+` FROM production_history WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if rec.Items, err = r.items(ctx, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Repo) GetByRequestKey(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, nil
	}
	rec, err := scanRecord(r.db.QueryRow(ctx, `SELECT `+recordCols+` FROM production_history WHERE request_key=$1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if rec.Items, err = r.items(ctx, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

// List — последние записи, новые сверху. Позиции не подгружаются.
func (r *Repo) List(ctx context.Context, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+recordCols+`
		FROM production_history
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *Repo) items(ctx context.Context, recordID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ingredient, unit, planned_qty, actual_qty, unit_cost
		FROM production_items
		WHERE record_id = $1
		ORDER BY position
	`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Ingredient, &it.Unit, &it.PlannedQty, &it.ActualQty, &it.UnitCost); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
