package safety

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/factory-bot/internal/infra/db"
)

type Repo struct{ db db.DBTX }

func NewRepo(conn db.DBTX) *Repo { return &Repo{db: conn} }

func (r *Repo) UpsertPhrase(ctx context.Context, p Phrase) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO safety_phrases (kind, code, text)
		VALUES ($1,$2,$3)
		ON CONFLICT (kind, code) DO UPDATE SET text = EXCLUDED.text
	`, string(p.Kind), NormalizeCode(p.Code), strings.TrimSpace(p.Text))
	return err
}

func (r *Repo) Phrases(ctx context.Context, kind Kind) ([]Phrase, error) {
	rows, err := r.db.Query(ctx, `SELECT kind, code, text FROM safety_phrases WHERE kind = $1 ORDER BY code`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Phrase
	for rows.Next() {
		var p Phrase
		if err := rows.Scan(&p.Kind, &p.Code, &p.Text); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) UpsertProduct(ctx context.Context, p Product) error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return ErrEmptyProduct
	}
	raw, err := json.Marshal(p.Fields)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO safety_products (name, fields, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (name) DO UPDATE SET fields = EXCLUDED.fields, updated_at = now()
	`, name, raw)
	return err
}

// Product — nil, если паспортных данных нет.
func (r *Repo) Product(ctx context.Context, name string) (*Product, error) {
	var p Product
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT name, fields, updated_at FROM safety_products WHERE name = $1`, strings.TrimSpace(name)).
		Scan(&p.Name, &raw, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &p.Fields); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) Products(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT name FROM safety_products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
