package history

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/domain/costing"
	"github.com/Spok95/factory-bot/internal/domain/materials"
)

// Record — неизменяемая запись о проведённой партии.
// Стоимость зафиксирована на момент проведения и не пересчитывается.
type Record struct {
	ID          int64
	CreatedAt   time.Time // UTC
	Operator    string
	Product     string
	Multiplier  decimal.Decimal
	PlannedCost decimal.Decimal
	ActualCost  decimal.Decimal
	Variance    decimal.Decimal
	Status      costing.Status
	RequestKey  string
	Items       []Item
}

type Item struct {
	Ingredient string
	Unit       materials.Unit
	PlannedQty decimal.Decimal
	ActualQty  decimal.Decimal
	UnitCost   decimal.Decimal
}

func (i Item) ActualCost() decimal.Decimal { return i.ActualQty.Mul(i.UnitCost) }

// FromCosting собирает запись из расчёта партии.
func FromCosting(operator string, c costing.Costing, at time.Time, requestKey string) Record {
	rec := Record{
		CreatedAt:   at.UTC(),
		Operator:    operator,
		Product:     c.Product,
		Multiplier:  c.Multiplier,
		PlannedCost: c.Planned,
		ActualCost:  c.Actual,
		Variance:    c.Variance,
		Status:      c.Status,
		RequestKey:  requestKey,
		Items:       make([]Item, 0, len(c.Items)),
	}
	for _, it := range c.Items {
		rec.Items = append(rec.Items, Item{
			Ingredient: it.Ingredient,
			Unit:       it.Unit,
			PlannedQty: it.PlannedQty,
			ActualQty:  it.ActualQty,
			UnitCost:   it.UnitCost,
		})
	}
	return rec
}

// StatusLabel — подпись для людей.
func StatusLabel(s costing.Status) string {
	if s == costing.StatusLoss {
		return "перерасход"
	}
	return "ок / экономия"
}
