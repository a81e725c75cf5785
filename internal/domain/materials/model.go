package materials

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Unit string

const (
	UnitKg  Unit = "kg"
	UnitG   Unit = "g"
	UnitL   Unit = "l"
	UnitMl  Unit = "ml"
	UnitPcs Unit = "pcs"
)

// ParseUnit принимает и варианты из старых таблиц ("KG", "un", "litro").
func ParseUnit(s string) (Unit, bool) {
	switch normalize(s) {
	case "kg", "кг", "quilo":
		return UnitKg, true
	case "g", "г", "gr", "grama":
		return UnitG, true
	case "l", "л", "lt", "litro":
		return UnitL, true
	case "ml", "мл":
		return UnitMl, true
	case "pcs", "шт", "un", "und", "unidade":
		return UnitPcs, true
	}
	return "", false
}

type Material struct {
	Name         string
	UnitCost     decimal.Decimal // за единицу измерения
	OnHand       decimal.Decimal // может уйти в минус только в обход проверки остатков
	Unit         Unit
	MinThreshold decimal.Decimal
	CASRef       string
	HazardText   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Patch — частичное редактирование карточки; nil-поля не трогаем.
type Patch struct {
	UnitCost     *decimal.Decimal
	Unit         *Unit
	MinThreshold *decimal.Decimal
	CASRef       *string
	HazardText   *string
}

// Entry — строка справочника из Excel. nil — колонки нет или ячейка пустая:
// у существующего материала такое поле остаётся прежним.
// Остаток сюда не входит, он меняется только складским движением.
type Entry struct {
	Name         string
	UnitCost     decimal.Decimal
	Unit         *Unit
	MinThreshold *decimal.Decimal
	CASRef       *string
	HazardText   *string
}

// Material — карточка, которую получит новый материал из этой строки.
func (e Entry) Material() Material {
	m := Material{Name: strings.TrimSpace(e.Name), UnitCost: e.UnitCost, Unit: UnitKg}
	if e.Unit != nil {
		m.Unit = *e.Unit
	}
	if e.MinThreshold != nil {
		m.MinThreshold = *e.MinThreshold
	}
	if e.CASRef != nil {
		m.CASRef = *e.CASRef
	}
	if e.HazardText != nil {
		m.HazardText = *e.HazardText
	}
	return m
}

// Apply накладывает на существующую карточку только заданные поля.
func (e Entry) Apply(cur Material) Material {
	cur.UnitCost = e.UnitCost
	if e.Unit != nil {
		cur.Unit = *e.Unit
	}
	if e.MinThreshold != nil {
		cur.MinThreshold = *e.MinThreshold
	}
	if e.CASRef != nil {
		cur.CASRef = *e.CASRef
	}
	if e.HazardText != nil {
		cur.HazardText = *e.HazardText
	}
	return cur
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Validate проверяет инварианты карточки материала.
func (m Material) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	if m.UnitCost.IsNegative() {
		return ErrNegativeCost
	}
	if m.MinThreshold.IsNegative() {
		return ErrNegativeThreshold
	}
	if _, ok := ParseUnit(string(m.Unit)); !ok {
		return ErrUnknownUnit
	}
	return nil
}

var (
	ErrEmptyName         = errors.New("material name is empty")
	ErrNegativeCost      = errors.New("unit cost must be >= 0")
	ErrNegativeThreshold = errors.New("min threshold must be >= 0")
	ErrUnknownUnit       = errors.New("unknown unit of measure")
	ErrDuplicate         = errors.New("material already exists")
)
