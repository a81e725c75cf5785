package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/factory-bot/internal/domain/materials"
	"github.com/Spok95/factory-bot/internal/domain/safety"
	"github.com/Spok95/factory-bot/internal/production"
)

const (
	SheetMaterials = "Materiais"
	SheetRecipes   = "Receitas"

	// Листы для паспортов безопасности, необязательные.
	SheetProducts    = "Produtos"
	SheetHazards     = "FrasesH"
	SheetPrecautions = "FrasesP"
)

var (
	ErrMissingSheet = errors.New("workbook sheet not found")
	ErrBadWorkbook  = errors.New("file is not a readable xlsx workbook")
)

// Summary — итог загрузки справочника.
type Summary struct {
	Materials int
	Lines     int
	Products  int
	Adjusted  int // материалы, у которых остаток изменён по файлу
	Sheets    int // продукты с паспортными данными
	Phrases   int
}

// RowError — ошибка в конкретной строке файла (нумерация как в Excel).
type RowError struct {
	Sheet string
	Row   int
	Err   error
}

func (e *RowError) Error() string { return fmt.Sprintf("%s row %d: %v", e.Sheet, e.Row, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// ImportFile читает справочник с диска.
func ImportFile(ctx context.Context, store production.Store, path, actor string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	return Import(ctx, store, bytes.NewReader(data), actor)
}

// Import загружает справочник одной транзакцией: ошибка в любой строке —
// ничего не меняется. Пустая ячейка или отсутствующая колонка оставляет
// поле материала как было. Остаток из файла проводится движением adjust
// от имени actor.
func Import(ctx context.Context, store production.Store, r io.Reader, actor string) (Summary, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrBadWorkbook, err)
	}
	defer func() { _ = f.Close() }()

	mats, err := readMaterials(f)
	if err != nil {
		return Summary{}, err
	}
	lines, err := readRecipes(f)
	if err != nil {
		return Summary{}, err
	}
	sheets, err := readSafetyProducts(f)
	if err != nil {
		return Summary{}, err
	}
	phrases, err := readPhrases(f)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	err = store.InTx(ctx, func(tx production.Store) error {
		for _, m := range mats {
			if _, err := tx.Materials().Upsert(ctx, m.Entry); err != nil {
				return &RowError{Sheet: SheetMaterials, Row: m.row, Err: err}
			}
			sum.Materials++
			if m.onHand == nil {
				continue
			}
			delta, err := tx.Stock().Adjust(ctx, actor, m.Name, *m.onHand, "import")
			if err != nil {
				return &RowError{Sheet: SheetMaterials, Row: m.row, Err: err}
			}
			if !delta.IsZero() {
				sum.Adjusted++
			}
		}
		products := map[string]struct{}{}
		for _, l := range lines {
			if err := tx.Recipes().UpsertLine(ctx, l.product, l.ingredient, l.qty); err != nil {
				return &RowError{Sheet: SheetRecipes, Row: l.row, Err: err}
			}
			products[l.product] = struct{}{}
			sum.Lines++
		}
		sum.Products = len(products)
		for _, p := range sheets {
			if err := tx.Safety().UpsertProduct(ctx, p.Product); err != nil {
				return &RowError{Sheet: SheetProducts, Row: p.row, Err: err}
			}
			sum.Sheets++
		}
		for _, p := range phrases {
			if err := tx.Safety().UpsertPhrase(ctx, p.Phrase); err != nil {
				return &RowError{Sheet: p.sheet, Row: p.row, Err: err}
			}
			sum.Phrases++
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

type materialRow struct {
	materials.Entry
	onHand *decimal.Decimal
	row    int
}

type recipeRow struct {
	product    string
	ingredient string
	qty        decimal.Decimal
	row        int
}

func readMaterials(f *excelize.File) ([]materialRow, error) {
	rows, err := sheetRows(f, SheetMaterials)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	h := headerIndex(rows[0])
	name := h.col("name", "nome", "material")
	cost := h.col("unit_cost", "custo", "custo_unitario", "preco")
	if name < 0 || cost < 0 {
		return nil, &RowError{Sheet: SheetMaterials, Row: 1, Err: errors.New("columns name and unit_cost are required")}
	}
	cas := h.col("cas", "cas_ref", "reference", "referencia")
	hazard := h.col("hazard_text", "hazard", "perigo")
	unit := h.col("unit", "unidade")
	onHand := h.col("on_hand", "estoque", "stock")
	minThr := h.col("min_threshold", "estoque_minimo", "min")

	var out []materialRow
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		n := cell(row, name)
		if n == "" {
			continue
		}
		num := i + 1
		m := materialRow{Entry: materials.Entry{Name: n}, row: num}
		if m.UnitCost, err = parseDecimal(cell(row, cost)); err != nil {
			return nil, &RowError{Sheet: SheetMaterials, Row: num, Err: fmt.Errorf("unit_cost: %w", err)}
		}
		if v := cell(row, cas); v != "" {
			m.CASRef = &v
		}
		if v := cell(row, hazard); v != "" {
			m.HazardText = &v
		}
		if u := cell(row, unit); u != "" {
			pu, ok := materials.ParseUnit(u)
			if !ok {
				return nil, &RowError{Sheet: SheetMaterials, Row: num, Err: fmt.Errorf("%w: %q", materials.ErrUnknownUnit, u)}
			}
			m.Unit = &pu
		}
		if m.onHand, err = optionalDecimal(cell(row, onHand)); err != nil {
			return nil, &RowError{Sheet: SheetMaterials, Row: num, Err: fmt.Errorf("on_hand: %w", err)}
		}
		if m.MinThreshold, err = optionalDecimal(cell(row, minThr)); err != nil {
			return nil, &RowError{Sheet: SheetMaterials, Row: num, Err: fmt.Errorf("min_threshold: %w", err)}
		}
		out = append(out, m)
	}
	return out, nil
}

func readRecipes(f *excelize.File) ([]recipeRow, error) {
	rows, err := sheetRows(f, SheetRecipes)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	h := headerIndex(rows[0])
	product := h.col("product", "produto")
	ingredient := h.col("ingredient", "ingrediente", "material")
	qty := h.col("planned_qty", "quantidade", "qty")
	if product < 0 || ingredient < 0 || qty < 0 {
		return nil, &RowError{Sheet: SheetRecipes, Row: 1, Err: errors.New("columns product, ingredient and planned_qty are required")}
	}

	var out []recipeRow
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		p, ing := cell(row, product), cell(row, ingredient)
		if p == "" && ing == "" {
			continue
		}
		q, err := parseDecimal(cell(row, qty))
		if err != nil {
			return nil, &RowError{Sheet: SheetRecipes, Row: i + 1, Err: fmt.Errorf("planned_qty: %w", err)}
		}
		out = append(out, recipeRow{product: p, ingredient: ing, qty: q, row: i + 1})
	}
	return out, nil
}

type productRow struct {
	safety.Product
	row int
}

// readSafetyProducts: колонка с названием обязательна, остальные колонки
// попадают в паспорт как есть, в порядке файла.
func readSafetyProducts(f *excelize.File) ([]productRow, error) {
	rows, err := optionalRows(f, SheetProducts)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	h := headerIndex(rows[0])
	name := h.col("nomeproduto", "nome_produto", "produto", "product", "name")
	if name < 0 {
		return nil, &RowError{Sheet: SheetProducts, Row: 1, Err: errors.New("column NomeProduto is required")}
	}

	var out []productRow
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		n := cell(row, name)
		if n == "" {
			continue
		}
		p := productRow{Product: safety.Product{Name: n}, row: i + 1}
		for c, label := range rows[0] {
			label = strings.TrimSpace(label)
			if c == name || label == "" {
				continue
			}
			if v := cell(row, c); v != "" {
				p.Fields = append(p.Fields, safety.Field{Label: label, Value: v})
			}
		}
		out = append(out, p)
	}
	return out, nil
}

type phraseRow struct {
	safety.Phrase
	sheet string
	row   int
}

func readPhrases(f *excelize.File) ([]phraseRow, error) {
	var out []phraseRow
	for _, src := range []struct {
		sheet string
		kind  safety.Kind
	}{
		{SheetHazards, safety.KindHazard},
		{SheetPrecautions, safety.KindPrecaution},
	} {
		rows, err := optionalRows(f, src.sheet)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		h := headerIndex(rows[0])
		code, text := h.col("codigo", "code"), h.col("texto", "text")
		if code < 0 || text < 0 {
			return nil, &RowError{Sheet: src.sheet, Row: 1, Err: errors.New("columns Codigo and Texto are required")}
		}
		for i := 1; i < len(rows); i++ {
			c := cell(rows[i], code)
			if c == "" {
				continue
			}
			out = append(out, phraseRow{
				Phrase: safety.Phrase{Kind: src.kind, Code: c, Text: cell(rows[i], text)},
				sheet:  src.sheet,
				row:    i + 1,
			})
		}
	}
	return out, nil
}

// optionalRows — как sheetRows, но отсутствие листа не ошибка.
func optionalRows(f *excelize.File, name string) ([][]string, error) {
	rows, err := sheetRows(f, name)
	if errors.Is(err, ErrMissingSheet) {
		return nil, nil
	}
	return rows, err
}

// sheetRows ищет лист без учёта регистра.
func sheetRows(f *excelize.File, name string) ([][]string, error) {
	for _, s := range f.GetSheetList() {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return f.GetRows(s)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMissingSheet, name)
}

type header map[string]int

func headerIndex(row []string) header {
	h := make(header, len(row))
	for i, c := range row {
		key := strings.ToLower(strings.TrimSpace(c))
		key = strings.ReplaceAll(key, " ", "_")
		if _, ok := h[key]; !ok {
			h[key] = i
		}
	}
	return h
}

func (h header) col(names ...string) int {
	for _, n := range names {
		if i, ok := h[n]; ok {
			return i
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// optionalDecimal: пустая ячейка — nil, поле не меняется.
func optionalDecimal(s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := parseDecimal(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseDecimal принимает и запятую, и точку как десятичный разделитель.
func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return decimal.Zero, errors.New("empty value")
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return decimal.NewFromString(s)
}
