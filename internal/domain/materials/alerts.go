package materials

import (
	"sort"

	"github.com/shopspring/decimal"
)

type Level string

const (
	LevelNormal   Level = "normal"
	LevelLow      Level = "low"
	LevelCritical Level = "critical"
)

// DefaultLowFactor: «мало», пока остаток ниже 1.2 × минимального.
var DefaultLowFactor = decimal.RequireFromString("1.2")

type Alert struct {
	Material Material
	Level    Level
}

// Classify — чисто справочная оценка остатка, ни на что не влияет.
// Нулевой порог тревоги не даёт, кроме ухода остатка в минус.
func Classify(m Material, lowFactor decimal.Decimal) Level {
	if m.OnHand.IsNegative() {
		return LevelCritical
	}
	if !m.MinThreshold.IsPositive() {
		return LevelNormal
	}
	if m.OnHand.LessThan(m.MinThreshold) {
		return LevelCritical
	}
	if lowFactor.LessThan(decimal.NewFromInt(1)) {
		lowFactor = DefaultLowFactor
	}
	if m.OnHand.LessThan(m.MinThreshold.Mul(lowFactor)) {
		return LevelLow
	}
	return LevelNormal
}

// Alerts возвращает только проблемные позиции: сначала critical, затем low, внутри — по имени.
func Alerts(list []Material, lowFactor decimal.Decimal) []Alert {
	out := make([]Alert, 0)
	for _, m := range list {
		if lvl := Classify(m, lowFactor); lvl != LevelNormal {
			out = append(out, Alert{Material: m, Level: lvl})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level == LevelCritical
		}
		return out[i].Material.Name < out[j].Material.Name
	})
	return out
}

// Badge — цветной индикатор для бота и Excel.
func (l Level) Badge() string {
	switch l {
	case LevelCritical:
		return "🔴"
	case LevelLow:
		return "🟡"
	default:
		return "🟢"
	}
}
