package production

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/domain/history"
	"github.com/Spok95/factory-bot/internal/domain/inventory"
	"github.com/Spok95/factory-bot/internal/domain/materials"
	"github.com/Spok95/factory-bot/internal/domain/recipes"
	"github.com/Spok95/factory-bot/internal/domain/safety"
)

// MemStore — хранилище в памяти с теми же правилами, что и Postgres:
// транзакции сериализуются, откат — это отброшенная копия состояния.
// Нужен только тестам: рабочий бинарник всегда ходит в Postgres.
type MemStore struct {
	txMu *sync.Mutex
	mu   *sync.Mutex
	st   *memState
	inTx bool
	now  func() time.Time
}

type recipeRow struct {
	id         int64
	product    string
	ingredient string
	qty        decimal.Decimal
}

type memState struct {
	materials map[string]materials.Material
	lines     []recipeRow
	lineSeq   int64
	records   []history.Record
	movements []inventory.Movement
	moveSeq   int64
	phrases   map[string]safety.Phrase // kind+code
	sheets    map[string]safety.Product
}

func (st *memState) clone() *memState {
	c := &memState{
		materials: make(map[string]materials.Material, len(st.materials)),
		lines:     append([]recipeRow(nil), st.lines...),
		lineSeq:   st.lineSeq,
		records:   append([]history.Record(nil), st.records...),
		movements: append([]inventory.Movement(nil), st.movements...),
		moveSeq:   st.moveSeq,
		phrases:   make(map[string]safety.Phrase, len(st.phrases)),
		sheets:    make(map[string]safety.Product, len(st.sheets)),
	}
	for k, v := range st.materials {
		c.materials[k] = v
	}
	for k, v := range st.phrases {
		c.phrases[k] = v
	}
	for k, v := range st.sheets {
		c.sheets[k] = v
	}
	return c
}

func NewMemStore() *MemStore {
	return &MemStore{
		txMu: &sync.Mutex{},
		mu:   &sync.Mutex{},
		st: &memState{
			materials: map[string]materials.Material{},
			phrases:   map[string]safety.Phrase{},
			sheets:    map[string]safety.Product{},
		},
		now: time.Now,
	}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) Materials() MaterialStore { return memMaterials{s} }
func (s *MemStore) Recipes() RecipeStore     { return memRecipes{s} }
func (s *MemStore) Stock() StockLedger       { return memStock{s} }
func (s *MemStore) Journal() Journal         { return memJournal{s} }
func (s *MemStore) Safety() SafetyStore      { return memSafety{s} }

func (s *MemStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	view := &MemStore{txMu: s.txMu, mu: &sync.Mutex{}, st: snapshot, inTx: true, now: s.now}
	if err := fn(view); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = snapshot
	s.mu.Unlock()
	return nil
}

// write применяет изменение атомарно: внутри транзакции — сразу, вне — как мини-транзакция.
func (s *MemStore) write(ctx context.Context, fn func(st *memState) error) error {
	if s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn(s.st)
	}
	return s.InTx(ctx, func(tx Store) error {
		v := tx.(*MemStore)
		v.mu.Lock()
		defer v.mu.Unlock()
		return fn(v.st)
	})
}

func (s *MemStore) read(fn func(st *memState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

/* materials */

type memMaterials struct{ s *MemStore }

func (m memMaterials) Create(ctx context.Context, in materials.Material) (*materials.Material, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in.Unit, _ = materials.ParseUnit(string(in.Unit))
	var out materials.Material
	err := m.s.write(ctx, func(st *memState) error {
		if _, ok := st.materials[in.Name]; ok {
			return materials.ErrDuplicate
		}
		in.CreatedAt = m.s.now().UTC()
		in.UpdatedAt = in.CreatedAt
		st.materials[in.Name] = in
		out = in
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m memMaterials) Upsert(ctx context.Context, e materials.Entry) (*materials.Material, error) {
	in := e.Material()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out materials.Material
	err := m.s.write(ctx, func(st *memState) error {
		now := m.s.now().UTC()
		if cur, ok := st.materials[in.Name]; ok {
			in = e.Apply(cur)
		} else {
			in.CreatedAt = now
		}
		in.Unit, _ = materials.ParseUnit(string(in.Unit))
		in.UpdatedAt = now
		st.materials[in.Name] = in
		out = in
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m memMaterials) GetByName(_ context.Context, name string) (*materials.Material, error) {
	var out *materials.Material
	m.s.read(func(st *memState) {
		if v, ok := st.materials[strings.TrimSpace(name)]; ok {
			out = &v
		}
	})
	return out, nil
}

func (m memMaterials) List(_ context.Context) ([]materials.Material, error) {
	var out []materials.Material
	m.s.read(func(st *memState) {
		for _, v := range st.materials {
			out = append(out, v)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memMaterials) Update(ctx context.Context, name string, p materials.Patch) (*materials.Material, error) {
	var out *materials.Material
	err := m.s.write(ctx, func(st *memState) error {
		cur, ok := st.materials[strings.TrimSpace(name)]
		if !ok {
			return nil
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
			return err
		}
		cur.Unit, _ = materials.ParseUnit(string(cur.Unit))
		cur.UpdatedAt = m.s.now().UTC()
		st.materials[cur.Name] = cur
		out = &cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

/* recipes */

type memRecipes struct{ s *MemStore }

func (r memRecipes) Lookup(_ context.Context, product string) ([]recipes.Line, error) {
	product = strings.TrimSpace(product)
	out := []recipes.Line{}
	r.s.read(func(st *memState) {
		for _, row := range st.lines {
			if row.product != product {
				continue
			}
			m := st.materials[row.ingredient]
			out = append(out, recipes.Line{
				Product:    row.product,
				Ingredient: row.ingredient,
				PlannedQty: row.qty,
				UnitCost:   m.UnitCost,
				Unit:       m.Unit,
			})
		}
	})
	return out, nil
}

func (r memRecipes) Products(_ context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	r.s.read(func(st *memState) {
		for _, row := range st.lines {
			if _, ok := seen[row.product]; !ok {
				seen[row.product] = struct{}{}
				out = append(out, row.product)
			}
		}
	})
	sort.Strings(out)
	return out, nil
}

func (r memRecipes) UpsertLine(ctx context.Context, product, ingredient string, qty decimal.Decimal) error {
	product = strings.TrimSpace(product)
	ingredient = strings.TrimSpace(ingredient)
	if product == "" {
		return recipes.ErrEmptyProduct
	}
	if !qty.IsPositive() {
		return recipes.ErrNonPositiveQty
	}
	return r.s.write(ctx, func(st *memState) error {
		if _, ok := st.materials[ingredient]; !ok {
			return recipes.ErrUnknownIngredient
		}
		for i, row := range st.lines {
			if row.product == product && row.ingredient == ingredient {
				st.lines[i].qty = qty
				return nil
			}
		}
		st.lineSeq++
		st.lines = append(st.lines, recipeRow{id: st.lineSeq, product: product, ingredient: ingredient, qty: qty})
		return nil
	})
}

func (r memRecipes) DeleteLine(ctx context.Context, product, ingredient string) (bool, error) {
	var deleted bool
	err := r.s.write(ctx, func(st *memState) error {
		for i, row := range st.lines {
			if row.product == strings.TrimSpace(product) && row.ingredient == strings.TrimSpace(ingredient) {
				st.lines = append(st.lines[:i:i], st.lines[i+1:]...)
				deleted = true
				return nil
			}
		}
		return nil
	})
	return deleted, err
}

/* stock */

type memStock struct{ s *MemStore }

func (k memStock) Balances(_ context.Context, names []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(names))
	k.s.read(func(st *memState) {
		for _, n := range names {
			if m, ok := st.materials[n]; ok {
				out[n] = m.OnHand
			}
		}
	})
	return out, nil
}

// LockBalances: транзакции в памяти и так сериализованы.
func (k memStock) LockBalances(ctx context.Context, names []string) (map[string]decimal.Decimal, error) {
	return k.Balances(ctx, names)
}

func (k memStock) Deduct(ctx context.Context, actor string, recordID *int64, items []inventory.Deduction, note string) error {
	for _, it := range items {
		if it.Qty.IsNegative() {
			return fmt.Errorf("%w: %s", inventory.ErrNegativeQty, it.Material)
		}
	}
	return k.s.write(ctx, func(st *memState) error {
		for _, it := range items {
			if _, ok := st.materials[it.Material]; !ok {
				return fmt.Errorf("%w: %s", inventory.ErrUnknownMaterial, it.Material)
			}
		}
		for _, it := range items {
			k.apply(st, actor, it.Material, it.Qty.Neg(), inventory.MoveOut, note, recordID)
		}
		return nil
	})
}

func (k memStock) Receive(ctx context.Context, actor, material string, qty decimal.Decimal, unitCost *decimal.Decimal, note string) error {
	if !qty.IsPositive() {
		return inventory.ErrNonPositiveQty
	}
	if unitCost != nil && unitCost.IsNegative() {
		return fmt.Errorf("unit cost must be >= 0")
	}
	return k.s.write(ctx, func(st *memState) error {
		m, ok := st.materials[material]
		if !ok {
			return fmt.Errorf("%w: %s", inventory.ErrUnknownMaterial, material)
		}
		if unitCost != nil {
			m.UnitCost = *unitCost
			st.materials[material] = m
		}
		k.apply(st, actor, material, qty, inventory.MoveIn, note, nil)
		return nil
	})
}

func (k memStock) Adjust(ctx context.Context, actor, material string, target decimal.Decimal, note string) (decimal.Decimal, error) {
	if target.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", inventory.ErrNegativeQty, material)
	}
	var delta decimal.Decimal
	err := k.s.write(ctx, func(st *memState) error {
		m, ok := st.materials[material]
		if !ok {
			return fmt.Errorf("%w: %s", inventory.ErrUnknownMaterial, material)
		}
		delta = target.Sub(m.OnHand)
		if !delta.IsZero() {
			k.apply(st, actor, material, delta, inventory.MoveAdjust, note, nil)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return delta, nil
}

func (k memStock) apply(st *memState, actor, material string, delta decimal.Decimal, t inventory.MoveType, note string, recordID *int64) {
	now := k.s.now().UTC()
	m := st.materials[material]
	m.OnHand = m.OnHand.Add(delta)
	m.UpdatedAt = now
	st.materials[material] = m

	st.moveSeq++
	st.movements = append(st.movements, inventory.Movement{
		ID:        st.moveSeq,
		CreatedAt: now,
		Actor:     actor,
		Material:  material,
		Qty:       delta,
		Type:      t,
		Note:      note,
		RecordID:  recordID,
	})
}

func (k memStock) Movements(_ context.Context, material string, limit int) ([]inventory.Movement, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []inventory.Movement
	k.s.read(func(st *memState) {
		for i := len(st.movements) - 1; i >= 0 && len(out) < limit; i-- {
			if st.movements[i].Material == material {
				out = append(out, st.movements[i])
			}
		}
	})
	return out, nil
}

/* journal */

type memJournal struct{ s *MemStore }

func (j memJournal) Append(ctx context.Context, rec history.Record) (*history.Record, error) {
	var out history.Record
	err := j.s.write(ctx, func(st *memState) error {
		if rec.RequestKey != "" {
			for _, r := range st.records {
				if r.RequestKey == rec.RequestKey {
					return fmt.Errorf("duplicate request key %q", rec.RequestKey)
				}
			}
		}
		rec.ID = int64(len(st.records)) + 1
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.Items = append([]history.Item(nil), rec.Items...)
		st.records = append(st.records, rec)
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (j memJournal) GetByID(_ context.Context, id int64) (*history.Record, error) {
	var out *history.Record
	j.s.read(func(st *memState) {
		if id >= 1 && id <= int64(len(st.records)) {
			r := st.records[id-1]
			out = &r
		}
	})
	return out, nil
}

func (j memJournal) GetByRequestKey(_ context.Context, key string) (*history.Record, error) {
	if key == "" {
		return nil, nil
	}
	var out *history.Record
	j.s.read(func(st *memState) {
		for _, r := range st.records {
			if r.RequestKey == key {
				r := r
				out = &r
				return
			}
		}
	})
	return out, nil
}

func (j memJournal) List(_ context.Context, limit, offset int) ([]history.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []history.Record
	j.s.read(func(st *memState) {
		for i := len(st.records) - 1 - offset; i >= 0 && len(out) < limit; i-- {
			r := st.records[i]
			r.Items = nil
			out = append(out, r)
		}
	})
	return out, nil
}

/* safety */

type memSafety struct{ s *MemStore }

func (m memSafety) UpsertPhrase(ctx context.Context, p safety.Phrase) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Code = safety.NormalizeCode(p.Code)
	p.Text = strings.TrimSpace(p.Text)
	return m.s.write(ctx, func(st *memState) error {
		st.phrases[string(p.Kind)+p.Code] = p
		return nil
	})
}

func (m memSafety) Phrases(_ context.Context, kind safety.Kind) ([]safety.Phrase, error) {
	var out []safety.Phrase
	m.s.read(func(st *memState) {
		for _, p := range st.phrases {
			if p.Kind == kind {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m memSafety) UpsertProduct(ctx context.Context, p safety.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return safety.ErrEmptyProduct
	}
	p.Fields = append([]safety.Field(nil), p.Fields...)
	return m.s.write(ctx, func(st *memState) error {
		p.UpdatedAt = m.s.now().UTC()
		st.sheets[p.Name] = p
		return nil
	})
}

func (m memSafety) Product(_ context.Context, name string) (*safety.Product, error) {
	var out *safety.Product
	m.s.read(func(st *memState) {
		if p, ok := st.sheets[strings.TrimSpace(name)]; ok {
			out = &p
		}
	})
	return out, nil
}

func (m memSafety) Products(_ context.Context) ([]string, error) {
	var out []string
	m.s.read(func(st *memState) {
		for n := range st.sheets {
			out = append(out, n)
		}
	})
	sort.Strings(out)
	return out, nil
}
