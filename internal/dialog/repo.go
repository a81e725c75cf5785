package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/factory-bot/internal/infra/db"
)

type Repo struct {
	db db.DBTX
}

func NewRepo(conn db.DBTX) *Repo { return &Repo{db: conn} }

func (r *Repo) Get(ctx context.Context, chatID int64) (*Item, error) {
	row := r.db.QueryRow(ctx, `SELECT state, payload FROM dialog_states WHERE chat_id = $1`, chatID)
	var state string
	var raw []byte
	if err := row.Scan(&state, &raw); err != nil {
		// если строки нет — считаем, что состояния пока нет
		if errors.Is(err, pgx.ErrNoRows) {
			return &Item{ChatID: chatID, State: StateIdle, Payload: Payload{}}, nil
		}
		return nil, err
	}
	p := Payload{}
	_ = json.Unmarshal(raw, &p)
	return &Item{ChatID: chatID, State: State(state), Payload: p}, nil
}

func (r *Repo) Set(ctx context.Context, chatID int64, state State, payload Payload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO dialog_states (chat_id, state, payload, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (chat_id) DO UPDATE SET
		  state=$2, payload=$3, updated_at=now()
	`, chatID, string(state), raw)
	return err
}

func (r *Repo) Reset(ctx context.Context, chatID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM dialog_states WHERE chat_id = $1`, chatID)
	return err
}

// MemRepo — те же операции в памяти; payload проходит через JSON,
// чтобы типы значений совпадали с теми, что отдаёт Postgres.
type MemRepo struct {
	mu    sync.Mutex
	items map[int64]memItem
}

type memItem struct {
	state State
	raw   []byte
}

func NewMemRepo() *MemRepo { return &MemRepo{items: map[int64]memItem{}} }

func (r *MemRepo) Get(_ context.Context, chatID int64) (*Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[chatID]
	if !ok {
		return &Item{ChatID: chatID, State: StateIdle, Payload: Payload{}}, nil
	}
	p := Payload{}
	_ = json.Unmarshal(it.raw, &p)
	return &Item{ChatID: chatID, State: it.state, Payload: p}, nil
}

func (r *MemRepo) Set(_ context.Context, chatID int64, state State, payload Payload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[chatID] = memItem{state: state, raw: raw}
	return nil
}

func (r *MemRepo) Reset(_ context.Context, chatID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, chatID)
	return nil
}
