package safety

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// Kind — класс фразы СГС: H (опасность) или P (меры предосторожности).
type Kind string

const (
	KindHazard     Kind = "H"
	KindPrecaution Kind = "P"
)

type Phrase struct {
	Kind Kind
	Code string
	Text string
}

// Field — колонка листа «Produtos» в порядке файла.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Product — паспортные данные продукта для ФДС.
type Product struct {
	Name      string
	Fields    []Field
	UpdatedAt time.Time
}

// Component — ингредиент рецептуры в разделе «Composição».
type Component struct {
	Name       string
	CASRef     string
	HazardText string
	Share      decimal.Decimal // % по массе рецептуры
}

// Sheet — всё, что попадает в PDF паспорта безопасности.
type Sheet struct {
	Product     string
	Fields      []Field
	Components  []Component
	Hazards     []Phrase
	Precautions []Phrase
}

var (
	ErrEmptyProduct   = errors.New("product name is empty")
	ErrUnknownProduct = errors.New("product has no safety data")
	ErrUnknownPhrase  = errors.New("unknown safety phrase")
	ErrEmptyCode      = errors.New("phrase code is empty")
	ErrBadKind        = errors.New("phrase kind must be H or P")
)

// NormalizeCode: " h 317 " -> "H317", "p301+p310" -> "P301+P310".
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// ParseCodes разбирает ввод вида "H226, h317 P210" в список кодов без повторов.
// "-" или пустая строка — ничего не выбрано.
func ParseCodes(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';'
	})
	seen := map[string]bool{}
	var out []string
	for _, p := range parts {
		c := NormalizeCode(p)
		if c == "" || c == "-" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Pick выбирает фразы по кодам в порядке выбора. Неизвестный код — ошибка.
func Pick(all []Phrase, codes []string) ([]Phrase, error) {
	byCode := make(map[string]Phrase, len(all))
	for _, p := range all {
		byCode[p.Code] = p
	}
	out := make([]Phrase, 0, len(codes))
	for _, c := range codes {
		p, ok := byCode[NormalizeCode(c)]
		if !ok {
			return nil, &UnknownPhraseError{Code: NormalizeCode(c)}
		}
		out = append(out, p)
	}
	return out, nil
}

type UnknownPhraseError struct{ Code string }

func (e *UnknownPhraseError) Error() string { return ErrUnknownPhrase.Error() + ": " + e.Code }

func (e *UnknownPhraseError) Unwrap() error { return ErrUnknownPhrase }

// Validate проверяет фразу перед записью.
func (p Phrase) Validate() error {
	if p.Kind != KindHazard && p.Kind != KindPrecaution {
		return ErrBadKind
	}
	if NormalizeCode(p.Code) == "" {
		return ErrEmptyCode
	}
	return nil
}
