package costing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/domain/materials"
)

type Status string

const (
	StatusOK   Status = "ok"   // экономия или ровно по плану
	StatusLoss Status = "loss" // перерасход
)

// Item — одна позиция партии. Цена зафиксирована на момент расчёта.
type Item struct {
	Ingredient  string
	Unit        materials.Unit
	UnitCost    decimal.Decimal
	PlannedQty  decimal.Decimal // план × множитель
	ActualQty   decimal.Decimal
	PlannedCost decimal.Decimal
	ActualCost  decimal.Decimal
}

type Costing struct {
	Product    string
	Multiplier decimal.Decimal
	Items      []Item
	Planned    decimal.Decimal
	Actual     decimal.Decimal
	Variance   decimal.Decimal // план − факт; < 0 — перерасход
	Status     Status
}

type Shortage struct {
	Ingredient string
	Unit       materials.Unit
	Required   decimal.Decimal
	OnHand     decimal.Decimal
}

func (s Shortage) Missing() decimal.Decimal { return s.Required.Sub(s.OnHand) }

var (
	ErrInvalidMultiplier = errors.New("multiplier must be > 0")
	ErrNegativeQuantity  = errors.New("actual quantity must be >= 0")
	ErrUnknownIngredient = errors.New("ingredient is not part of the recipe")
	ErrEmptyRecipe       = errors.New("product has no recipe")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ShortageError — ожидаемое бизнес-условие: партия заблокирована целиком.
type ShortageError struct {
	Product   string
	Shortages []Shortage
}

func (e *ShortageError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s: need %s %s, have %s",
			s.Ingredient, s.Required.String(), s.Unit, s.OnHand.String()))
	}
	return fmt.Sprintf("insufficient stock for %s (%s)", e.Product, strings.Join(parts, "; "))
}

func (e *ShortageError) Is(target error) bool { return target == ErrInsufficientStock }

// Money — два знака после запятой для отображения; внутри считаем без округления.
func Money(d decimal.Decimal) string { return d.StringFixed(2) }
