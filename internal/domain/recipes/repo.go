package recipes

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/infra/db"
)

type Repo struct{ db db.DBTX }

func NewRepo(conn db.DBTX) *Repo { return &Repo{db: conn} }

// Lookup возвращает рецептуру в порядке добавления строк.
// Неизвестный продукт — пустой результат, не ошибка.
func (r *Repo) Lookup(ctx context.Context, product string) ([]Line, error) {
	rows, err := r.db.Query(ctx, `
		SELECT l.product, l.ingredient, l.planned_qty, m.unit_cost, m.unit
		FROM recipe_lines l
		JOIN materials m ON m.name = l.ingredient
		WHERE l.product = $1
		ORDER BY l.id
	`, strings.TrimSpace(product))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.Product, &l.Ingredient, &l.PlannedQty, &l.UnitCost, &l.Unit); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repo) Products(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT product FROM recipe_lines ORDER BY product`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertLine: повторное добавление той же пары (продукт, ингредиент)
// перезаписывает плановое количество, позиция строки сохраняется.
func (r *Repo) UpsertLine(ctx context.Context, product, ingredient string, plannedQty decimal.Decimal) error {
	product = strings.TrimSpace(product)
	ingredient = strings.TrimSpace(ingredient)
	if product == "" {
		return ErrEmptyProduct
	}
	if !plannedQty.IsPositive() {
		return ErrNonPositiveQty
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO recipe_lines (product, ingredient, planned_qty)
		VALUES ($1,$2,$3)
		ON CONFLICT (product, ingredient)
		DO UPDATE SET planned_qty = EXCLUDED.planned_qty
	`, product, ingredient, plannedQty)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrUnknownIngredient
		}
		return err
	}
	return nil
}

// DeleteLine возвращает false, если такой строки не было.
func (r *Repo) DeleteLine(ctx context.Context, product, ingredient string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM recipe_lines WHERE product=$1 AND ingredient=$2
	`, strings.TrimSpace(product), strings.TrimSpace(ingredient))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
