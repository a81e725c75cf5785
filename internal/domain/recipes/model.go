package recipes

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/domain/materials"
)

// Line — строка рецептуры продукта. Цена и единица подтягиваются
// из карточки материала в момент запроса, а не замораживаются в рецепте.
type Line struct {
	Product    string
	Ingredient string
	PlannedQty decimal.Decimal // на одну партию (множитель 1)
	UnitCost   decimal.Decimal
	Unit       materials.Unit
}

var (
	ErrEmptyProduct      = errors.New("product is empty")
	ErrNonPositiveQty    = errors.New("planned qty must be > 0")
	ErrUnknownIngredient = errors.New("ingredient is not a registered material")
)
