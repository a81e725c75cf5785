package materials

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Spok95/factory-bot/internal/infra/db"
)

type Repo struct{ db db.DBTX }

func NewRepo(conn db.DBTX) *Repo { return &Repo{db: conn} }

const selectCols = `name, unit_cost, on_hand, unit, min_threshold, cas_ref, hazard_text, created_at, updated_at`

func scanMaterial(row pgx.Row) (*Material, error) {
	var m Material
	if err := row.Scan(
		&m.Name,
		&m.UnitCost,
		&m.OnHand,
		&m.Unit,
		&m.MinThreshold,
		&m.CASRef,
		&m.HazardText,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

/* Materials CRUD */

// Create регистрирует новый материал. Повтор имени — ErrDuplicate.
func (r *Repo) Create(ctx context.Context, m Material) (*Material, error) {
	m.Name = strings.TrimSpace(m.Name)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	unit, _ := ParseUnit(string(m.Unit))

	row := r.db.QueryRow(ctx, `
		INSERT INTO materials (name, unit_cost, on_hand, unit, min_threshold, cas_ref, hazard_text)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+selectCols,
		m.Name, m.UnitCost, m.OnHand, string(unit), m.MinThreshold, m.CASRef, m.HazardText)

	out, err := scanMaterial(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return out, nil
}

// Upsert используется при загрузке справочника из Excel: новый материал
// заводится с нулевым остатком, у существующего меняются только поля из файла.
func (r *Repo) Upsert(ctx context.Context, e Entry) (*Material, error) {
	m := e.Material()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	unit, _ := ParseUnit(string(m.Unit))

	row := r.db.QueryRow(ctx, `
		INSERT INTO materials (name, unit_cost, unit, min_threshold, cas_ref, hazard_text)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (name) DO UPDATE SET
			unit_cost     = EXCLUDED.unit_cost,
			unit          = CASE WHEN $7 THEN EXCLUDED.unit ELSE materials.unit END,
			min_threshold = CASE WHEN $8 THEN EXCLUDED.min_threshold ELSE materials.min_threshold END,
			cas_ref       = CASE WHEN $9 THEN EXCLUDED.cas_ref ELSE materials.cas_ref END,
			hazard_text   = CASE WHEN $10 THEN EXCLUDED.hazard_text ELSE materials.hazard_text END,
			updated_at    = now()
		RETURNING `+selectCols,
		m.Name, m.UnitCost, string(unit), m.MinThreshold, m.CASRef, m.HazardText,
		e.Unit != nil, e.MinThreshold != nil, e.CASRef != nil, e.HazardText != nil)
	return scanMaterial(row)
}

func (r *Repo) GetByName(ctx context.Context, name string) (*Material, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectCols+` FROM materials WHERE name = $1`, strings.TrimSpace(name))
	m, err := scanMaterial(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (r *Repo) List(ctx context.Context) ([]Material, error) {
	rows, err := r.db.Query(ctx, `SELECT `+selectCols+` FROM materials ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Update — явное редактирование карточки (цена, ед. изм., порог, CAS, опасность).
// Остаток здесь не меняется: только через складские движения.
func (r *Repo) Update(ctx context.Context, name string, p Patch) (*Material, error) {
	cur, err := r.GetByName(ctx, name)
	if err != nil || cur == nil {
		return nil, err
	}
	if p.UnitCost != nil {
		cur.UnitCost = *p.UnitCost
	}
	if p.Unit != nil {
		cur.Unit = *p.Unit
	}
	if p.MinThreshold != nil {
		cur.MinThreshold = *p.MinThreshold
	}
	if p.CASRef != nil {
		cur.CASRef = *p.CASRef
	}
	if p.HazardText != nil {
		cur.HazardText = *p.HazardText
	}
	if err := cur.Validate(); err != nil {
		return nil, err
	}
	unit, _ := ParseUnit(string(cur.Unit))

	row := r.db.QueryRow(ctx, `
		UPDATE materials
		SET unit_cost=$2, unit=$3, min_threshold=$4, cas_ref=$5, hazard_text=$6, updated_at=now()
		WHERE name=$1
		RETURNING `+selectCols,
		cur.Name, cur.UnitCost, string(unit), cur.MinThreshold, cur.CASRef, cur.HazardText)
	return scanMaterial(row)
}

// SearchByName ищет материалы по части названия, без учёта регистра.
func (r *Repo) SearchByName(ctx context.Context, q string) ([]Material, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+selectCols+`
		FROM materials
		WHERE LOWER(name) LIKE $1 OR LOWER(cas_ref) LIKE $1
		ORDER BY name
	`, "%"+strings.ToLower(q)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
