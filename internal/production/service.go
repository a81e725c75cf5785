package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/domain/costing"
	"github.com/Spok95/factory-bot/internal/domain/history"
	"github.com/Spok95/factory-bot/internal/domain/inventory"
	"github.com/Spok95/factory-bot/internal/domain/materials"
	"github.com/Spok95/factory-bot/internal/domain/recipes"
	"github.com/Spok95/factory-bot/internal/domain/safety"
	"github.com/Spok95/factory-bot/internal/infra/metrics"
)

var (
	ErrInsufficientStock = costing.ErrInsufficientStock
	ErrInvalidMultiplier = costing.ErrInvalidMultiplier
	ErrNegativeQuantity  = costing.ErrNegativeQuantity
	ErrUnknownIngredient = costing.ErrUnknownIngredient
	ErrEmptyRecipe       = costing.ErrEmptyRecipe
	ErrRequestInFlight   = errors.New("request with the same key is already being processed")
)

// ShortageError перечисляет ингредиенты, которых не хватает на партию.
type ShortageError = costing.ShortageError

// Guard не даёт двум одинаковым запросам проводиться одновременно.
type Guard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Service struct {
	store     Store
	guard     Guard
	metrics   *metrics.Production
	log       *slog.Logger
	now       func() time.Time
	lowFactor decimal.Decimal
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithMetrics(m *metrics.Production) Option { return func(s *Service) { s.metrics = m } }

func WithLowStockFactor(f decimal.Decimal) Option { return func(s *Service) { s.lowFactor = f } }

func NewService(store Store, guard Guard, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		guard:     guard,
		log:       log,
		now:       time.Now,
		lowFactor: materials.DefaultLowFactor,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Store() Store { return s.store }

/* Рецептуры */

// Recipe — рецептура продукта с текущими ценами материалов.
func (s *Service) Recipe(ctx context.Context, product string) ([]recipes.Line, error) {
	return s.store.Recipes().Lookup(ctx, product)
}

func (s *Service) Products(ctx context.Context) ([]string, error) {
	return s.store.Recipes().Products(ctx)
}

func (s *Service) SetRecipeLine(ctx context.Context, product, ingredient string, qty decimal.Decimal) error {
	return s.store.Recipes().UpsertLine(ctx, product, ingredient, qty)
}

func (s *Service) RemoveRecipeLine(ctx context.Context, product, ingredient string) (bool, error) {
	return s.store.Recipes().DeleteLine(ctx, product, ingredient)
}

/* Материалы и склад */

func (s *Service) Materials(ctx context.Context) ([]materials.Material, error) {
	return s.store.Materials().List(ctx)
}

func (s *Service) Material(ctx context.Context, name string) (*materials.Material, error) {
	return s.store.Materials().GetByName(ctx, name)
}

func (s *Service) RegisterMaterial(ctx context.Context, m materials.Material) (*materials.Material, error) {
	if m.OnHand.IsNegative() {
		return nil, inventory.ErrNegativeQty
	}
	return s.store.Materials().Create(ctx, m)
}

func (s *Service) EditMaterial(ctx context.Context, name string, p materials.Patch) (*materials.Material, error) {
	return s.store.Materials().Update(ctx, name, p)
}

func (s *Service) Receive(ctx context.Context, actor, material string, qty decimal.Decimal, unitCost *decimal.Decimal, note string) error {
	return s.store.Stock().Receive(ctx, actor, material, qty, unitCost, note)
}

func (s *Service) Movements(ctx context.Context, material string, limit int) ([]inventory.Movement, error) {
	return s.store.Stock().Movements(ctx, material, limit)
}

// Alerts — материалы ниже минимального остатка (только для отображения).
func (s *Service) Alerts(ctx context.Context) ([]materials.Alert, error) {
	list, err := s.store.Materials().List(ctx)
	if err != nil {
		return nil, err
	}
	return materials.Alerts(list, s.lowFactor), nil
}

func (s *Service) Classify(m materials.Material) materials.Level {
	return materials.Classify(m, s.lowFactor)
}

func (s *Service) LowStockFactor() decimal.Decimal { return s.lowFactor }

/* Журнал */

func (s *Service) History(ctx context.Context, limit, offset int) ([]history.Record, error) {
	return s.store.Journal().List(ctx, limit, offset)
}

func (s *Service) Record(ctx context.Context, id int64) (*history.Record, error) {
	return s.store.Journal().GetByID(ctx, id)
}

/* Паспорта безопасности */

func (s *Service) SafetyPhrases(ctx context.Context, kind safety.Kind) ([]safety.Phrase, error) {
	return s.store.Safety().Phrases(ctx, kind)
}

// SafetyProducts — продукты, для которых можно выпустить ФДС:
// с паспортными данными или хотя бы с рецептурой.
func (s *Service) SafetyProducts(ctx context.Context) ([]string, error) {
	withData, err := s.store.Safety().Products(ctx)
	if err != nil {
		return nil, err
	}
	withRecipe, err := s.store.Recipes().Products(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, n := range append(withData, withRecipe...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

// SafetySheet собирает паспорт безопасности: данные листа «Produtos»,
// состав из рецептуры и выбранные фразы H и P в порядке выбора.
func (s *Service) SafetySheet(ctx context.Context, product string, hazards, precautions []string) (*safety.Sheet, error) {
	product = strings.TrimSpace(product)
	info, err := s.store.Safety().Product(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("load safety data: %w", err)
	}
	lines, err := s.store.Recipes().Lookup(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("lookup recipe: %w", err)
	}
	if info == nil && len(lines) == 0 {
		return nil, fmt.Errorf("%w: %s", safety.ErrUnknownProduct, product)
	}

	sheet := &safety.Sheet{Product: product}
	if info != nil {
		sheet.Fields = info.Fields
	}
	if sheet.Components, err = s.composition(ctx, lines); err != nil {
		return nil, err
	}
	for _, sel := range []struct {
		kind  safety.Kind
		codes []string
		dst   *[]safety.Phrase
	}{
		{safety.KindHazard, hazards, &sheet.Hazards},
		{safety.KindPrecaution, precautions, &sheet.Precautions},
	} {
		all, err := s.store.Safety().Phrases(ctx, sel.kind)
		if err != nil {
			return nil, fmt.Errorf("load phrases: %w", err)
		}
		if *sel.dst, err = safety.Pick(all, sel.codes); err != nil {
			return nil, err
		}
	}
	return sheet, nil
}

// composition — доли ингредиентов по массе рецептуры, в процентах.
func (s *Service) composition(ctx context.Context, lines []recipes.Line) ([]safety.Component, error) {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.PlannedQty)
	}
	out := make([]safety.Component, 0, len(lines))
	for _, l := range lines {
		m, err := s.store.Materials().GetByName(ctx, l.Ingredient)
		if err != nil {
			return nil, fmt.Errorf("load material: %w", err)
		}
		c := safety.Component{Name: l.Ingredient}
		if m != nil {
			c.CASRef, c.HazardText = m.CASRef, m.HazardText
		}
		if total.IsPositive() {
			c.Share = l.PlannedQty.Div(total).Mul(decimal.NewFromInt(100)).Round(2)
		}
		out = append(out, c)
	}
	return out, nil
}

/* Партии */

type QuoteRequest struct {
	Product    string
	Multiplier decimal.Decimal
	Actual     map[string]decimal.Decimal
}

type Quote struct {
	Costing   costing.Costing
	Shortages []costing.Shortage
}

func (q Quote) CanFinalize() bool { return len(q.Shortages) == 0 }

// Quote — расчёт без записи: стоимость и нехватка по текущему снимку склада.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	lines, err := s.store.Recipes().Lookup(ctx, req.Product)
	if err != nil {
		return Quote{}, fmt.Errorf("lookup recipe: %w", err)
	}
	if len(lines) == 0 {
		return Quote{}, ErrEmptyRecipe
	}
	c, err := costing.Compute(strings.TrimSpace(req.Product), lines, req.Multiplier, req.Actual)
	if err != nil {
		return Quote{}, err
	}
	bal, err := s.store.Stock().Balances(ctx, ingredientNames(lines))
	if err != nil {
		return Quote{}, fmt.Errorf("read stock: %w", err)
	}
	return Quote{Costing: c, Shortages: costing.CheckStock(c.Items, bal)}, nil
}

type FinalizeRequest struct {
	Operator   string
	Product    string
	Multiplier decimal.Decimal
	Actual     map[string]decimal.Decimal
	// RequestKey — ключ подтверждения от клиента; повтор с тем же ключом
	// возвращает уже проведённую партию без повторного списания.
	RequestKey string
}

type Result struct {
	Record   *history.Record
	Replayed bool
}

// Finalize проводит партию: рецептура → блокировка остатков → проверка →
// запись в журнал → списание. Всё в одной транзакции; при любой ошибке
// склад и журнал остаются как были.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (Result, error) {
	req.Product = strings.TrimSpace(req.Product)
	req.Operator = strings.TrimSpace(req.Operator)
	key := strings.TrimSpace(req.RequestKey)

	if key != "" {
		ok, err := s.guard.Acquire(ctx, key)
		if err != nil {
			return Result{}, fmt.Errorf("acquire request key: %w", err)
		}
		if !ok {
			if rec, _ := s.store.Journal().GetByRequestKey(ctx, key); rec != nil {
				s.metrics.ObserveReplayed()
				return Result{Record: rec, Replayed: true}, nil
			}
			s.metrics.ObserveRejected("in_flight")
			return Result{}, ErrRequestInFlight
		}
		defer func() {
			if err := s.guard.Release(context.WithoutCancel(ctx), key); err != nil {
				s.log.Warn("release request key failed", "key", key, "err", err)
			}
		}()

		rec, err := s.store.Journal().GetByRequestKey(ctx, key)
		if err != nil {
			return Result{}, fmt.Errorf("lookup request key: %w", err)
		}
		if rec != nil {
			s.metrics.ObserveReplayed()
			s.log.Info("batch replayed", "record_id", rec.ID, "key", key)
			return Result{Record: rec, Replayed: true}, nil
		}
	}

	var out *history.Record
	err := s.store.InTx(ctx, func(tx Store) error {
		lines, err := tx.Recipes().Lookup(ctx, req.Product)
		if err != nil {
			return fmt.Errorf("lookup recipe: %w", err)
		}
		if len(lines) == 0 {
			return ErrEmptyRecipe
		}
		c, err := costing.Compute(req.Product, lines, req.Multiplier, req.Actual)
		if err != nil {
			return err
		}

		bal, err := tx.Stock().LockBalances(ctx, ingredientNames(lines))
		if err != nil {
			return fmt.Errorf("lock stock: %w", err)
		}
		if shortages := costing.CheckStock(c.Items, bal); len(shortages) > 0 {
			return &costing.ShortageError{Product: req.Product, Shortages: shortages}
		}

		rec, err := tx.Journal().Append(ctx, history.FromCosting(req.Operator, c, s.now(), key))
		if err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		deductions := make([]inventory.Deduction, 0, len(c.Items))
		for _, it := range c.Items {
			deductions = append(deductions, inventory.Deduction{Material: it.Ingredient, Qty: it.ActualQty})
		}
		note := fmt.Sprintf("batch #%d %s", rec.ID, req.Product)
		if err := tx.Stock().Deduct(ctx, req.Operator, &rec.ID, deductions, note); err != nil {
			return fmt.Errorf("deduct stock: %w", err)
		}
		out = rec
		return nil
	})
	if err != nil {
		// гонка двух экземпляров без общего Redis: уникальный ключ в базе
		// не даст провести вторую партию, отдаём первую
		if key != "" {
			if rec, _ := s.store.Journal().GetByRequestKey(ctx, key); rec != nil {
				s.metrics.ObserveReplayed()
				return Result{Record: rec, Replayed: true}, nil
			}
		}
		s.metrics.ObserveRejected(rejectReason(err))
		s.log.Info("batch rejected", "product", req.Product, "operator", req.Operator, "err", err)
		return Result{}, err
	}

	s.metrics.ObserveFinalized(out.Product, string(out.Status), out.Variance)
	s.log.Info("batch finalized",
		"record_id", out.ID,
		"product", out.Product,
		"operator", out.Operator,
		"planned", costing.Money(out.PlannedCost),
		"actual", costing.Money(out.ActualCost),
		"status", out.Status,
	)
	return Result{Record: out}, nil
}

func ingredientNames(lines []recipes.Line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Ingredient)
	}
	return out
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrEmptyRecipe):
		return "empty_recipe"
	case errors.Is(err, ErrInvalidMultiplier), errors.Is(err, ErrNegativeQuantity), errors.Is(err, ErrUnknownIngredient):
		return "invalid_input"
	default:
		return "error"
	}
}

// IsValidation — ошибка ввода, которую пользователь может исправить сам.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidMultiplier) ||
		errors.Is(err, ErrNegativeQuantity) ||
		errors.Is(err, ErrUnknownIngredient) ||
		errors.Is(err, ErrEmptyRecipe) ||
		errors.Is(err, materials.ErrEmptyName) ||
		errors.Is(err, materials.ErrNegativeCost) ||
		errors.Is(err, materials.ErrNegativeThreshold) ||
		errors.Is(err, materials.ErrUnknownUnit) ||
		errors.Is(err, materials.ErrDuplicate) ||
		errors.Is(err, recipes.ErrEmptyProduct) ||
		errors.Is(err, recipes.ErrNonPositiveQty) ||
		errors.Is(err, recipes.ErrUnknownIngredient) ||
		errors.Is(err, inventory.ErrNonPositiveQty) ||
		errors.Is(err, inventory.ErrNegativeQty) ||
		errors.Is(err, inventory.ErrUnknownMaterial) ||
		errors.Is(err, safety.ErrUnknownProduct) ||
		errors.Is(err, safety.ErrUnknownPhrase) ||
		errors.Is(err, safety.ErrEmptyProduct) ||
		errors.Is(err, safety.ErrEmptyCode) ||
		errors.Is(err, safety.ErrBadKind)
}
