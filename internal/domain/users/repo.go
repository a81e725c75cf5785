package users

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/factory-bot/internal/infra/db"
)

type Repo struct {
	db db.DBTX
}

func NewRepo(conn db.DBTX) *Repo { return &Repo{db: conn} }

const userCols = `id, COALESCE(telegram_id,0), COALESCE(login,''), name, password_hash, role, status, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Login, &u.Name, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func nullable[T comparable](v T) any {
	var zero T
	if v == zero {
		return nil
	}
	return v
}

func (r *Repo) GetByTelegramID(ctx context.Context, tgID int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE telegram_id = $1`, tgID))
}

func (r *Repo) GetByLogin(ctx context.Context, login string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE login = $1`, strings.ToLower(strings.TrimSpace(login))))
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

// RegisterTelegram — заявка на доступ из бота. Если пользователь уже
// подтверждён, статус и роль не трогаем, обновляем только имя.
func (r *Repo) RegisterTelegram(ctx context.Context, tgID int64, name string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `
		INSERT INTO users (telegram_id, name, role, status)
		VALUES ($1,$2,'operator','pending')
		ON CONFLICT (telegram_id)
		DO UPDATE SET
			name       = EXCLUDED.name,
			status     = CASE WHEN users.status = 'approved' THEN users.status ELSE 'pending' END,
			updated_at = now()
		RETURNING `+userCols,
		tgID, strings.TrimSpace(name)))
}

// Approve подтверждает (или создаёт подтверждённым) пользователя Telegram.
func (r *Repo) Approve(ctx context.Context, tgID int64, role Role) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `
		INSERT INTO users (telegram_id, name, role, status)
		VALUES ($1,'',$2,'approved')
		ON CONFLICT (telegram_id)
		DO UPDATE SET role=EXCLUDED.role, status='approved', updated_at=now()
		RETURNING `+userCols,
		tgID, string(role)))
}

func (r *Repo) Reject(ctx context.Context, tgID int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `
		UPDATE users SET status='rejected', updated_at=now()
		WHERE telegram_id=$1
		RETURNING `+userCols, tgID))
}

// CreateWithPassword заводит учётную запись для входа в HTTP API (сразу подтверждённую).
func (r *Repo) CreateWithPassword(ctx context.Context, login, name, password string, role Role, tgID int64) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return scanUser(r.db.QueryRow(ctx, `
		INSERT INTO users (telegram_id, login, name, password_hash, role, status)
		VALUES ($1,$2,$3,$4,$5,'approved')
		ON CONFLICT (login)
		DO UPDATE SET name=EXCLUDED.name, password_hash=EXCLUDED.password_hash, role=EXCLUDED.role, updated_at=now()
		RETURNING `+userCols,
		nullable(tgID), strings.ToLower(strings.TrimSpace(login)), strings.TrimSpace(name), hash, string(role)))
}

func (r *Repo) ListByRole(ctx context.Context, role Role, status Status) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userCols+` FROM users WHERE role=$1 AND status=$2 ORDER BY name`, string(role), string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// Authenticate — вход по логину и паролю.
func (r *Repo) Authenticate(ctx context.Context, login, password string) (*User, error) {
	u, err := r.GetByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := CheckPassword(u.PasswordHash, password); err != nil {
		return nil, err
	}
	if !u.Approved() {
		return nil, ErrNotApproved
	}
	return u, nil
}
