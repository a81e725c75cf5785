package costing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/domain/recipes"
)

// StatusFor: variance ≥ 0 — ok, иначе loss.
func StatusFor(variance decimal.Decimal) Status {
	if variance.IsNegative() {
		return StatusLoss
	}
	return StatusOK
}

// Defaults — предзаполнение фактических количеств: план × множитель.
func Defaults(lines []recipes.Line, multiplier decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(lines))
	for _, l := range lines {
		out[l.Ingredient] = l.PlannedQty.Mul(multiplier)
	}
	return out
}

// Compute считает плановую и фактическую стоимость партии.
// Отсутствующие в actual ингредиенты берутся по плану × множитель.
func Compute(product string, lines []recipes.Line, multiplier decimal.Decimal, actual map[string]decimal.Decimal) (Costing, error) {
	if !multiplier.IsPositive() {
		return Costing{}, ErrInvalidMultiplier
	}

	known := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		known[l.Ingredient] = struct{}{}
	}
	for name, q := range actual {
		if _, ok := known[name]; !ok {
			return Costing{}, fmt.Errorf("%w: %s", ErrUnknownIngredient, name)
		}
		if q.IsNegative() {
			return Costing{}, fmt.Errorf("%w: %s = %s", ErrNegativeQuantity, name, q.String())
		}
	}

	c := Costing{
		Product:    product,
		Multiplier: multiplier,
		Items:      make([]Item, 0, len(lines)),
		Planned:    decimal.Zero,
		Actual:     decimal.Zero,
	}
	for _, l := range lines {
		planned := l.PlannedQty.Mul(multiplier)
		act, ok := actual[l.Ingredient]
		if !ok {
			act = planned
		}
		it := Item{
			Ingredient:  l.Ingredient,
			Unit:        l.Unit,
			UnitCost:    l.UnitCost,
			PlannedQty:  planned,
			ActualQty:   act,
			PlannedCost: planned.Mul(l.UnitCost),
			ActualCost:  act.Mul(l.UnitCost),
		}
		c.Items = append(c.Items, it)
		c.Planned = c.Planned.Add(it.PlannedCost)
		c.Actual = c.Actual.Add(it.ActualCost)
	}
	c.Variance = c.Planned.Sub(c.Actual)
	c.Status = StatusFor(c.Variance)
	return c, nil
}

// CheckStock — предикат над снимком остатков. Требование по позиции —
// большее из плана и факта, чтобы проверенный путь не уводил склад в минус.
// Пустой результат — партию можно проводить.
func CheckStock(items []Item, onHand map[string]decimal.Decimal) []Shortage {
	var out []Shortage
	for _, it := range items {
		required := decimal.Max(it.PlannedQty, it.ActualQty)
		have := onHand[it.Ingredient]
		if required.GreaterThan(have) {
			out = append(out, Shortage{
				Ingredient: it.Ingredient,
				Unit:       it.Unit,
				Required:   required,
				OnHand:     have,
			})
		}
	}
	return out
}

// Consumption — сколько списать со склада по каждой позиции (факт).
func (c Costing) Consumption() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(c.Items))
	for _, it := range c.Items {
		out[it.Ingredient] = it.ActualQty
	}
	return out
}
