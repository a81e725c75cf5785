package production

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/domain/history"
	"github.com/Spok95/factory-bot/internal/domain/inventory"
	"github.com/Spok95/factory-bot/internal/domain/materials"
	"github.com/Spok95/factory-bot/internal/domain/recipes"
	"github.com/Spok95/factory-bot/internal/domain/safety"
	"github.com/Spok95/factory-bot/internal/infra/db"
)

type MaterialStore interface {
	Create(ctx context.Context, m materials.Material) (*materials.Material, error)
	Upsert(ctx context.Context, e materials.Entry) (*materials.Material, error)
	GetByName(ctx context.Context, name string) (*materials.Material, error)
	List(ctx context.Context) ([]materials.Material, error)
	Update(ctx context.Context, name string, p materials.Patch) (*materials.Material, error)
}

type RecipeStore interface {
	Lookup(ctx context.Context, product string) ([]recipes.Line, error)
	Products(ctx context.Context) ([]string, error)
	UpsertLine(ctx context.Context, product, ingredient string, plannedQty decimal.Decimal) error
	DeleteLine(ctx context.Context, product, ingredient string) (bool, error)
}

type StockLedger interface {
	Balances(ctx context.Context, names []string) (map[string]decimal.Decimal, error)
	LockBalances(ctx context.Context, names []string) (map[string]decimal.Decimal, error)
	Deduct(ctx context.Context, actor string, recordID *int64, items []inventory.Deduction, note string) error
	Receive(ctx context.Context, actor, material string, qty decimal.Decimal, unitCost *decimal.Decimal, note string) error
	Adjust(ctx context.Context, actor, material string, target decimal.Decimal, note string) (decimal.Decimal, error)
	Movements(ctx context.Context, material string, limit int) ([]inventory.Movement, error)
}

type Journal interface {
	Append(ctx context.Context, rec history.Record) (*history.Record, error)
	GetByID(ctx context.Context, id int64) (*history.Record, error)
	GetByRequestKey(ctx context.Context, key string) (*history.Record, error)
	List(ctx context.Context, limit, offset int) ([]history.Record, error)
}

type SafetyStore interface {
	UpsertPhrase(ctx context.Context, p safety.Phrase) error
	Phrases(ctx context.Context, kind safety.Kind) ([]safety.Phrase, error)
	UpsertProduct(ctx context.Context, p safety.Product) error
	Product(ctx context.Context, name string) (*safety.Product, error)
	Products(ctx context.Context) ([]string, error)
}

// Store — единая точка доступа к данным. InTx выполняет fn в одной
// транзакции: изменения, сделанные через tx, фиксируются вместе или никак.
type Store interface {
	Materials() MaterialStore
	Recipes() RecipeStore
	Stock() StockLedger
	Journal() Journal
	Safety() SafetyStore
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// PgStore собирает репозитории поверх пула или транзакции.
type PgStore struct{ conn db.DBTX }

func NewPgStore(conn db.DBTX) *PgStore { return &PgStore{conn: conn} }

var _ Store = (*PgStore)(nil)

func (s *PgStore) Materials() MaterialStore { return materials.NewRepo(s.conn) }
func (s *PgStore) Recipes() RecipeStore     { return recipes.NewRepo(s.conn) }
func (s *PgStore) Stock() StockLedger       { return inventory.NewRepo(s.conn) }
func (s *PgStore) Journal() Journal         { return history.NewRepo(s.conn) }
func (s *PgStore) Safety() SafetyStore      { return safety.NewRepo(s.conn) }

func (s *PgStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewPgStore(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
