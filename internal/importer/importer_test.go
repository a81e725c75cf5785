package importer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/factory-bot/internal/domain/costing"
	"github.com/Spok95/factory-bot/internal/domain/history"
	"github.com/Spok95/factory-bot/internal/domain/inventory"
	"github.com/Spok95/factory-bot/internal/domain/materials"
	"github.com/Spok95/factory-bot/internal/domain/safety"
	"github.com/Spok95/factory-bot/internal/production"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func workbook(t *testing.T, sheets map[string][][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	first := true
	for name, rows := range sheets {
		if first {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				t.Fatal(err)
			}
			first = false
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatal(err)
		}
		for i, r := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			r := r
			if err := f.SetSheetRow(name, cell, &r); err != nil {
				t.Fatal(err)
			}
		}
	}
	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func fabrica(t *testing.T) []byte {
	return workbook(t, map[string][][]interface{}{
		"Materiais": {
			{"Name", "Unit_Cost", "CAS", "Hazard_Text", "Unit", "On_Hand", "Min_Threshold"},
			{"Resina", "15", "9003-01-4", "H317", "kg", "500", "100"},
			{"Solvente", "8,5", "64742-95-6", "H226", "KG", "300", "50"},
			{"Pigmento", 25, "13463-67-7", "", "kg", 100, 20},
			{"", "", "", "", "", "", ""},
		},
		"receitas": {
			{"PRODUCT", "INGREDIENT", "PLANNED_QTY"},
			{"Tinta Base", "Resina", "60"},
			{"Tinta Base", "Solvente", "30"},
			{"Tinta Base", "Pigmento", "10"},
		},
	})
}

func TestImportBootstrap(t *testing.T) {
	store := production.NewMemStore()
	ctx := context.Background()

	sum, err := Import(ctx, store, bytes.NewReader(fabrica(t)), "test")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if sum.Materials != 3 || sum.Lines != 3 || sum.Products != 1 {
		t.Errorf("summary = %+v", sum)
	}

	m, _ := store.Materials().GetByName(ctx, "Solvente")
	if m == nil || !m.UnitCost.Equal(d("8.5")) || !m.OnHand.Equal(d("300")) || m.Unit != materials.UnitKg {
		t.Errorf("Solvente = %+v", m)
	}
	lines, _ := store.Recipes().Lookup(ctx, "Tinta Base")
	if len(lines) != 3 {
		t.Fatalf("lines = %d", len(lines))
	}
	c, err := costing.Compute("Tinta Base", lines, d("1"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if costing.Money(c.Planned) != "1415.00" {
		t.Errorf("planned = %s", costing.Money(c.Planned))
	}
}

func TestImportKeepsStockWithoutColumns(t *testing.T) {
	store := production.NewMemStore()
	ctx := context.Background()
	if _, err := Import(ctx, store, bytes.NewReader(fabrica(t)), "test"); err != nil {
		t.Fatal(err)
	}

	// повторная загрузка прайса без остатков: цена меняется, склад нет
	prices := workbook(t, map[string][][]interface{}{
		"Materiais": {
			{"name", "unit_cost", "cas", "hazard_text"},
			{"Resina", "16", "9003-01-4", "H317"},
		},
		"Receitas": {
			{"product", "ingredient", "planned_qty"},
		},
	})
	if _, err := Import(ctx, store, bytes.NewReader(prices), "test"); err != nil {
		t.Fatalf("Import: %v", err)
	}
	m, _ := store.Materials().GetByName(ctx, "Resina")
	if !m.UnitCost.Equal(d("16")) || !m.OnHand.Equal(d("500")) || !m.MinThreshold.Equal(d("100")) {
		t.Errorf("Resina = %+v", m)
	}
}

func TestImportPartialColumnsKeepFields(t *testing.T) {
	store := production.NewMemStore()
	ctx := context.Background()
	if _, err := store.Materials().Create(ctx, materials.Material{
		Name: "Solvente", UnitCost: d("8.5"), OnHand: d("300"), Unit: materials.UnitL, MinThreshold: d("50"), CASRef: "64742-95-6",
	}); err != nil {
		t.Fatal(err)
	}

	// нет колонок unit и min_threshold, ячейка on_hand пустая
	partial := workbook(t, map[string][][]interface{}{
		"Materiais": {
			{"name", "unit_cost", "on_hand", "cas"},
			{"Solvente", "9", "", ""},
		},
		"Receitas": {{"product", "ingredient", "planned_qty"}},
	})
	sum, err := Import(ctx, store, bytes.NewReader(partial), "chefe")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if sum.Adjusted != 0 {
		t.Errorf("adjusted = %d, want 0", sum.Adjusted)
	}
	m, _ := store.Materials().GetByName(ctx, "Solvente")
	if m.Unit != materials.UnitL || !m.OnHand.Equal(d("300")) || !m.MinThreshold.Equal(d("50")) || !m.UnitCost.Equal(d("9")) || m.CASRef != "64742-95-6" {
		t.Errorf("Solvente = %+v", m)
	}
	if moves, _ := store.Stock().Movements(ctx, "Solvente", 10); len(moves) != 0 {
		t.Errorf("movements = %+v, want none", moves)
	}
}

func TestImportStockGoesThroughLedger(t *testing.T) {
	store := production.NewMemStore()
	ctx := context.Background()
	if _, err := Import(ctx, store, bytes.NewReader(fabrica(t)), "bootstrap"); err != nil {
		t.Fatal(err)
	}

	recount := workbook(t, map[string][][]interface{}{
		"Materiais": {
			{"name", "unit_cost", "on_hand"},
			{"Resina", "15", "480"},
			{"Solvente", "8,5", "300"},
		},
		"Receitas": {{"product", "ingredient", "planned_qty"}},
	})
	sum, err := Import(ctx, store, bytes.NewReader(recount), "chefe")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if sum.Adjusted != 1 {
		t.Errorf("adjusted = %d, want 1", sum.Adjusted)
	}
	moves, _ := store.Stock().Movements(ctx, "Resina", 10)
	if len(moves) != 2 || moves[0].Type != inventory.MoveAdjust || !moves[0].Qty.Equal(d("-20")) || moves[0].Actor != "chefe" {
		t.Errorf("Resina movements = %+v", moves)
	}
	if m, _ := store.Materials().GetByName(ctx, "Resina"); !m.OnHand.Equal(d("480")) {
		t.Errorf("Resina = %s, want 480", m.OnHand)
	}
	if moves, _ := store.Stock().Movements(ctx, "Solvente", 10); len(moves) != 1 {
		t.Errorf("unchanged Solvente movements = %d, want 1", len(moves))
	}
}

func TestImportSafetySheets(t *testing.T) {
	store := production.NewMemStore()
	ctx := context.Background()
	data := workbook(t, map[string][][]interface{}{
		"Materiais": {{"name", "unit_cost"}, {"Resina", "15"}},
		"Receitas":  {{"product", "ingredient", "planned_qty"}, {"Tinta Base", "Resina", "60"}},
		"Produtos": {
			{"NomeProduto", "Uso", "Fornecedor"},
			{"Tinta Base", "Pintura industrial", "Fabrica Ltda"},
		},
		"FrasesH": {{"Codigo", "Texto"}, {" h226", "Líquido e vapores inflamáveis."}, {"H317", "Pode provocar reações alérgicas na pele."}},
		"FrasesP": {{"Codigo", "Texto"}, {"P210", "Mantenha afastado do calor."}},
	})
	sum, err := Import(ctx, store, bytes.NewReader(data), "chefe")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if sum.Sheets != 1 || sum.Phrases != 3 {
		t.Errorf("summary = %+v", sum)
	}
	p, _ := store.Safety().Product(ctx, "Tinta Base")
	if p == nil || len(p.Fields) != 2 || p.Fields[0] != (safety.Field{Label: "Uso", Value: "Pintura industrial"}) {
		t.Errorf("product = %+v", p)
	}
	h, _ := store.Safety().Phrases(ctx, safety.KindHazard)
	if len(h) != 2 || h[0].Code != "H226" {
		t.Errorf("hazards = %+v", h)
	}

	bad := workbook(t, map[string][][]interface{}{
		"Materiais": {{"name", "unit_cost"}},
		"Receitas":  {{"product", "ingredient", "planned_qty"}},
		"FrasesP":   {{"Codigo"}, {"P210"}},
	})
	var rowErr *RowError
	if _, err := Import(ctx, store, bytes.NewReader(bad), "chefe"); !errors.As(err, &rowErr) || rowErr.Sheet != SheetPrecautions {
		t.Errorf("err = %v", err)
	}
}

func TestImportIsAtomic(t *testing.T) {
	store := production.NewMemStore()
	ctx := context.Background()

	bad := workbook(t, map[string][][]interface{}{
		"Materiais": {
			{"name", "unit_cost"},
			{"Resina", "15"},
		},
		"Receitas": {
			{"product", "ingredient", "planned_qty"},
			{"Tinta Base", "Resina", "60"},
			{"Tinta Base", "Agua", "5"},
		},
	})
	_, err := Import(ctx, store, bytes.NewReader(bad), "test")
	var rowErr *RowError
	if !errors.As(err, &rowErr) || rowErr.Sheet != SheetRecipes || rowErr.Row != 3 {
		t.Fatalf("err = %v", err)
	}
	list, _ := store.Materials().List(ctx)
	if len(list) != 0 {
		t.Errorf("materials after failed import: %d", len(list))
	}
}

func TestImportErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		sheets map[string][][]interface{}
		want   error
	}{
		{
			name:   "missing recipes sheet",
			sheets: map[string][][]interface{}{"Materiais": {{"name", "unit_cost"}}},
			want:   ErrMissingSheet,
		},
		{
			name: "unknown unit",
			sheets: map[string][][]interface{}{
				"Materiais": {{"name", "unit_cost", "unit"}, {"Resina", "15", "barril"}},
				"Receitas":  {{"product", "ingredient", "planned_qty"}},
			},
			want: materials.ErrUnknownUnit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(ctx, production.NewMemStore(), bytes.NewReader(workbook(t, tt.sheets)), "test")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := ImportFile(ctx, production.NewMemStore(), "does-not-exist.xlsx", "test"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseDecimal(t *testing.T) {
	for in, want := range map[string]string{
		"8,5":      "8.5",
		"8.5":      "8.5",
		"1.234,56": "1234.56",
		" 12 ":     "12",
	} {
		got, err := parseDecimal(in)
		if err != nil || !got.Equal(d(want)) {
			t.Errorf("parseDecimal(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := parseDecimal("abc"); err == nil {
		t.Error("expected error")
	}
}

func TestStockXLSX(t *testing.T) {
	list := []materials.Material{
		{Name: "Resina", UnitCost: d("15"), OnHand: d("80"), Unit: materials.UnitKg, MinThreshold: d("100")},
		{Name: "Solvente", UnitCost: d("8.5"), OnHand: d("300"), Unit: materials.UnitKg, MinThreshold: d("50")},
	}
	data, err := StockXLSX(list, materials.DefaultLowFactor)
	if err != nil {
		t.Fatalf("StockXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(SheetMaterials)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[1][7] != "critical" || rows[2][7] != "normal" {
		t.Errorf("rows = %v", rows)
	}

	// выгрузку можно загрузить обратно
	store := production.NewMemStore()
	if _, err := f.NewSheet(SheetRecipes); err != nil {
		t.Fatal(err)
	}
	hdr := []interface{}{"product", "ingredient", "planned_qty"}
	if err := f.SetSheetRow(SheetRecipes, "A1", &hdr); err != nil {
		t.Fatal(err)
	}
	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		t.Fatal(err)
	}
	if _, err := Import(context.Background(), store, buf, "test"); err != nil {
		t.Fatalf("round trip import: %v", err)
	}
	m, _ := store.Materials().GetByName(context.Background(), "Resina")
	if m == nil || !m.OnHand.Equal(d("80")) {
		t.Errorf("round trip Resina = %+v", m)
	}
}

func TestHistoryXLSX(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	recs := []history.Record{{
		ID:          7,
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Operator:    "Ana",
		Product:     "Tinta Base",
		Multiplier:  d("1"),
		PlannedCost: d("1415"),
		ActualCost:  d("1490"),
		Variance:    d("-75"),
		Status:      costing.StatusLoss,
		Items: []history.Item{
			{Ingredient: "Resina", Unit: materials.UnitKg, PlannedQty: d("60"), ActualQty: d("65"), UnitCost: d("15")},
		},
	}}
	data, err := HistoryXLSX(recs, loc)
	if err != nil {
		t.Fatalf("HistoryXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	rows, _ := f.GetRows("Historico")
	if len(rows) != 2 || rows[1][1] != "2024-03-01 09:00:00" || rows[1][8] != "loss" {
		t.Errorf("history rows = %v", rows)
	}
	items, _ := f.GetRows("Itens")
	if len(items) != 2 || items[1][6] != "975" {
		t.Errorf("item rows = %v", items)
	}
}
