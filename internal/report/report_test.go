package report

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/domain/costing"
	"github.com/Spok95/factory-bot/internal/domain/history"
	"github.com/Spok95/factory-bot/internal/domain/materials"
	"github.com/Spok95/factory-bot/internal/domain/safety"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func record(items int) *history.Record {
	rec := &history.Record{
		ID:          42,
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Operator:    "João",
		Product:     "Tinta Base",
		Multiplier:  d("1.5"),
		PlannedCost: d("2122.5"),
		ActualCost:  d("2197.5"),
		Variance:    d("-75"),
		Status:      costing.StatusLoss,
	}
	for i := 0; i < items; i++ {
		rec.Items = append(rec.Items, history.Item{
			Ingredient: fmt.Sprintf("Ingrediente %d", i+1),
			Unit:       materials.UnitKg,
			PlannedQty: d("10"),
			ActualQty:  d("10.5"),
			UnitCost:   d("3.25"),
		})
	}
	return rec
}

func TestBatchPDF(t *testing.T) {
	data, err := BatchPDF(record(3), time.FixedZone("BRT", -3*3600))
	if err != nil {
		t.Fatalf("BatchPDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("not a pdf: %q", data[:8])
	}
}

func TestBatchPDFPaginates(t *testing.T) {
	short, err := BatchPDF(record(3), nil)
	if err != nil {
		t.Fatal(err)
	}
	long, err := BatchPDF(record(120), nil)
	if err != nil {
		t.Fatal(err)
	}
	if n := bytes.Count(long, []byte("/Type /Page\n")); n < 2 {
		t.Errorf("pages = %d, want several", n)
	}
	if bytes.Count(short, []byte("/Type /Page\n")) != 1 {
		t.Errorf("short report should fit one page")
	}
}

func TestBatchPDFNilRecord(t *testing.T) {
	if _, err := BatchPDF(nil, nil); err == nil {
		t.Error("expected error")
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(record(0)); got != "lote_42_20240301_120000.pdf" {
		t.Errorf("FileName = %q", got)
	}
}

func safetySheet() *safety.Sheet {
	return &safety.Sheet{
		Product: "Tinta Base",
		Fields:  []safety.Field{{Label: "Uso recomendado", Value: "Pintura industrial"}},
		Components: []safety.Component{
			{Name: "Resina", CASRef: "9003-01-4", HazardText: "H317", Share: d("60")},
			{Name: "Solvente", CASRef: "64742-95-6", HazardText: "H226 H304 H336 e outras frases muito longas para a coluna", Share: d("30")},
		},
		Hazards:     []safety.Phrase{{Kind: safety.KindHazard, Code: "H226", Text: "Líquido e vapores inflamáveis."}},
		Precautions: nil,
	}
}

func TestSafetySheetPDF(t *testing.T) {
	data, err := SafetySheetPDF(safetySheet(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("SafetySheetPDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("not a pdf: %q", data[:8])
	}
	if _, err := SafetySheetPDF(nil, time.Now()); err == nil {
		t.Error("expected error for nil sheet")
	}
}

func TestSafetySheetFileName(t *testing.T) {
	if got := SafetySheetFileName(" Tinta Base "); got != "FDS_Tinta Base.pdf" {
		t.Errorf("name = %q", got)
	}
	if got := SafetySheetFileName("A/B"); got != "FDS_A_B.pdf" {
		t.Errorf("name = %q", got)
	}
}
