package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/infra/db"
)

// Repo — складской учёт: остаток живёт в materials.on_hand,
// каждое изменение дублируется строкой в stock_movements.
type Repo struct{ db db.DBTX }

func NewRepo(conn db.DBTX) *Repo { return &Repo{db: conn} }

// LockBalances читает остатки и блокирует строки до конца транзакции.
// Имена сортируются, чтобы параллельные партии брали блокировки в одном порядке.
func (r *Repo) LockBalances(ctx context.Context, names []string) (map[string]decimal.Decimal, error) {
	return r.balances(ctx, names, " FOR UPDATE")
}

// Balances — тот же снимок без блокировки (для предварительного расчёта).
func (r *Repo) Balances(ctx context.Context, names []string) (map[string]decimal.Decimal, error) {
	return r.balances(ctx, names, "")
}

func (r *Repo) balances(ctx context.Context, names []string, suffix string) (map[string]decimal.Decimal, error) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	rows, err := r.db.Query(ctx, `
		SELECT name, on_hand FROM materials
		WHERE name = ANY($1)
		ORDER BY name`+suffix, sorted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal, len(names))
	for rows.Next() {
		var name string
		var qty decimal.Decimal
		if err := rows.Scan(&name, &qty); err != nil {
			return nil, err
		}
		out[name] = qty
	}
	return out, rows.Err()
}

// Deduct списывает всё или ничего. Декремент «слепой»: пола в нуле нет,
// достаточность остатков проверяет вызывающий под блокировкой.
func (r *Repo) Deduct(ctx context.Context, actor string, recordID *int64, items []Deduction, note string) error {
	for _, it := range items {
		if it.Qty.IsNegative() {
			return fmt.Errorf("%w: %s", ErrNegativeQty, it.Material)
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range items {
		if err := apply(ctx, tx, actor, it.Material, it.Qty.Neg(), MoveOut, note, recordID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Receive — приход (поставка). Если передана цена, она становится новой ценой материала.
func (r *Repo) Receive(ctx context.Context, actor, material string, qty decimal.Decimal, unitCost *decimal.Decimal, note string) error {
	if !qty.IsPositive() {
		return ErrNonPositiveQty
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := apply(ctx, tx, actor, material, qty, MoveIn, note, nil); err != nil {
		return err
	}
	if unitCost != nil {
		if unitCost.IsNegative() {
			return fmt.Errorf("unit cost must be >= 0")
		}
		if _, err := tx.Exec(ctx, `UPDATE materials SET unit_cost=$2, updated_at=now() WHERE name=$1`, material, *unitCost); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Adjust выставляет остаток по инвентаризации; разница с текущим
// остатком пишется движением adjust. Возвращает эту разницу.
func (r *Repo) Adjust(ctx context.Context, actor, material string, target decimal.Decimal, note string) (decimal.Decimal, error) {
	if target.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNegativeQty, material)
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur decimal.Decimal
	if err := tx.QueryRow(ctx, `SELECT on_hand FROM materials WHERE name=$1 FOR UPDATE`, material).Scan(&cur); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownMaterial, material)
		}
		return decimal.Zero, err
	}
	delta := target.Sub(cur)
	if delta.IsZero() {
		return delta, nil
	}
	if err := apply(ctx, tx, actor, material, delta, MoveAdjust, note, nil); err != nil {
		return decimal.Zero, err
	}
	return delta, tx.Commit(ctx)
}

// delta > 0 => приход; delta < 0 => списание (может увести остаток в минус)
func apply(ctx context.Context, conn db.DBTX, actor, material string, delta decimal.Decimal, mtype MoveType, note string, recordID *int64) error {
	tag, err := conn.Exec(ctx, `
		UPDATE materials SET on_hand = on_hand + $2, updated_at = now()
		WHERE name = $1
	`, material, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownMaterial, material)
	}

	// Логируем движение
	if _, err = conn.Exec(ctx, `
		INSERT INTO stock_movements (actor, material, qty, type, note, record_id)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, actor, material, delta, string(mtype), note, recordID); err != nil {
		return err
	}
	return nil
}

func (r *Repo) Movements(ctx context.Context, material string, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, created_at, actor, material, qty, type, note, record_id
		FROM stock_movements
		WHERE material = $1
		ORDER BY id DESC
		LIMIT $2
	`, material, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.CreatedAt, &m.Actor, &m.Material, &m.Qty, &m.Type, &m.Note, &m.RecordID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
