package dialog

import (
	"strconv"

	"github.com/shopspring/decimal"
)

type State string

const (
	// Регистрация
	StateIdle         State = "idle"
	StateAwaitName    State = "await_name"
	StateAwaitConfirm State = "await_confirm"

	// Производство партии
	StateBatchProduct    State = "batch_product"     // выбор продукта
	StateBatchMultiplier State = "batch_multiplier"  // ввод множителя
	StateBatchReview     State = "batch_review"      // расчёт показан, ждём подтверждения
	StateBatchActualPick State = "batch_actual_pick" // выбор ингредиента для правки факта
	StateBatchActualQty  State = "batch_actual_qty"  // ввод фактического расхода

	// Приход на склад (админ)
	StateReceivePick State = "receive_pick"
	StateReceiveQty  State = "receive_qty"

	// Загрузка справочника (админ)
	StateImportFile State = "import_file"

	// Паспорт безопасности (ФДС)
	StateSafetyProduct     State = "safety_product"
	StateSafetyHazards     State = "safety_hazards"     // ввод кодов H
	StateSafetyPrecautions State = "safety_precautions" // ввод кодов P
)

type Payload map[string]any

type Item struct {
	ChatID  int64
	State   State
	Payload Payload
}

// GetString Helper для безопасного чтения строк из payload
func GetString(p Payload, key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt64 — числа после JSONB приходят как float64.
func GetInt64(p Payload, key string) (int64, bool) {
	switch v := p[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// GetDecimal — количества храним строкой, чтобы не терять точность в JSON.
func GetDecimal(p Payload, key string) (decimal.Decimal, bool) {
	s, ok := GetString(p, key)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	return d, err == nil
}

func GetStrings(p Payload, key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// GetDecimalMap читает map[string]string с количествами.
func GetDecimalMap(p Payload, key string) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	switch v := p[key].(type) {
	case map[string]string:
		for k, s := range v {
			if d, err := decimal.NewFromString(s); err == nil {
				out[k] = d
			}
		}
	case map[string]any:
		for k, e := range v {
			if s, ok := e.(string); ok {
				if d, err := decimal.NewFromString(s); err == nil {
					out[k] = d
				}
			}
		}
	}
	return out
}

// SetDecimalMap кладёт количества в payload в виде, переживающем JSON.
func SetDecimalMap(p Payload, key string, m map[string]decimal.Decimal) {
	raw := make(map[string]any, len(m))
	for k, v := range m {
		raw[k] = v.String()
	}
	p[key] = raw
}
