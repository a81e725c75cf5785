package costing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/domain/materials"
	"github.com/Spok95/factory-bot/internal/domain/recipes"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tintaBase() []recipes.Line {
	return []recipes.Line{
		{Product: "Tinta Base", Ingredient: "Resina", PlannedQty: d("60"), UnitCost: d("15"), Unit: materials.UnitKg},
		{Product: "Tinta Base", Ingredient: "Solvente", PlannedQty: d("30"), UnitCost: d("8.5"), Unit: materials.UnitKg},
		{Product: "Tinta Base", Ingredient: "Pigmento", PlannedQty: d("10"), UnitCost: d("25"), Unit: materials.UnitKg},
	}
}

func TestComputeExactlyPlanned(t *testing.T) {
	lines := tintaBase()
	c, err := Compute("Tinta Base", lines, d("1"), Defaults(lines, d("1")))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if Money(c.Planned) != "1415.00" || Money(c.Actual) != "1415.00" {
		t.Errorf("planned=%s actual=%s, want 1415.00/1415.00", Money(c.Planned), Money(c.Actual))
	}
	if !c.Variance.IsZero() || c.Status != StatusOK {
		t.Errorf("variance=%s status=%s", c.Variance, c.Status)
	}
}

func TestComputeOverrun(t *testing.T) {
	c, err := Compute("Tinta Base", tintaBase(), d("1"), map[string]decimal.Decimal{"Resina": d("65")})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if Money(c.Actual) != "1490.00" {
		t.Errorf("actual = %s, want 1490.00", Money(c.Actual))
	}
	if Money(c.Variance) != "-75.00" {
		t.Errorf("variance = %s, want -75.00", Money(c.Variance))
	}
	if c.Status != StatusLoss {
		t.Errorf("status = %s, want loss", c.Status)
	}
}

func TestComputeSavingsIsOK(t *testing.T) {
	c, err := Compute("Tinta Base", tintaBase(), d("1"), map[string]decimal.Decimal{"Pigmento": d("9.5")})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if Money(c.Variance) != "12.50" || c.Status != StatusOK {
		t.Errorf("variance=%s status=%s", Money(c.Variance), c.Status)
	}
}

func TestPlannedCostScalesWithMultiplier(t *testing.T) {
	lines := tintaBase()
	base, err := Compute("Tinta Base", lines, d("1"), nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for _, m := range []string{"0.5", "1", "2", "3.75", "0.001", "120"} {
		c, err := Compute("Tinta Base", lines, d(m), nil)
		if err != nil {
			t.Fatalf("Compute(m=%s): %v", m, err)
		}
		if !c.Planned.Equal(base.Planned.Mul(d(m))) {
			t.Errorf("m=%s: planned %s != %s", m, c.Planned, base.Planned.Mul(d(m)))
		}
		// факт по умолчанию = план × m, расхождение ноль
		if !c.Variance.IsZero() {
			t.Errorf("m=%s: variance %s, want 0", m, c.Variance)
		}
	}
}

func TestComputeNoFloatDrift(t *testing.T) {
	lines := []recipes.Line{
		{Ingredient: "Aditivo", PlannedQty: d("0.1"), UnitCost: d("0.2"), Unit: materials.UnitKg},
		{Ingredient: "Água", PlannedQty: d("0.2"), UnitCost: d("0.1"), Unit: materials.UnitL},
	}
	c, err := Compute("Verniz", lines, d("3"), nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !c.Planned.Equal(d("0.12")) {
		t.Errorf("planned = %s, want exactly 0.12", c.Planned)
	}
}

func TestComputeValidation(t *testing.T) {
	lines := tintaBase()
	testCases := []struct {
		name   string
		mult   decimal.Decimal
		actual map[string]decimal.Decimal
		want   error
	}{
		{"zero multiplier", d("0"), nil, ErrInvalidMultiplier},
		{"negative multiplier", d("-1"), nil, ErrInvalidMultiplier},
		{"negative actual", d("1"), map[string]decimal.Decimal{"Resina": d("-0.1")}, ErrNegativeQuantity},
		{"foreign ingredient", d("1"), map[string]decimal.Decimal{"Água": d("1")}, ErrUnknownIngredient},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compute("Tinta Base", lines, tc.mult, tc.actual)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	// ноль разрешён: ингредиент мог не понадобиться
	c, err := Compute("Tinta Base", lines, d("1"), map[string]decimal.Decimal{"Pigmento": d("0")})
	if err != nil {
		t.Fatalf("zero actual rejected: %v", err)
	}
	if Money(c.Actual) != "1155.00" {
		t.Errorf("actual = %s", Money(c.Actual))
	}
}

func TestComputeEmptyRecipe(t *testing.T) {
	c, err := Compute("Nada", nil, d("1"), nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !c.Planned.IsZero() || len(c.Items) != 0 || c.Status != StatusOK {
		t.Errorf("unexpected costing %+v", c)
	}
}

func TestCheckStock(t *testing.T) {
	lines := tintaBase()
	c, err := Compute("Tinta Base", lines, d("1"), nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	enough := map[string]decimal.Decimal{"Resina": d("60"), "Solvente": d("100"), "Pigmento": d("10")}
	if s := CheckStock(c.Items, enough); len(s) != 0 {
		t.Fatalf("unexpected shortages: %+v", s)
	}

	short := map[string]decimal.Decimal{"Resina": d("50"), "Solvente": d("100")}
	s := CheckStock(c.Items, short)
	if len(s) != 2 {
		t.Fatalf("expected 2 shortages, got %+v", s)
	}
	if s[0].Ingredient != "Resina" || !s[0].Missing().Equal(d("10")) {
		t.Errorf("resina shortage = %+v", s[0])
	}
	if s[1].Ingredient != "Pigmento" || !s[1].OnHand.IsZero() {
		t.Errorf("pigmento shortage = %+v", s[1])
	}
}

func TestCheckStockUsesActualWhenHigher(t *testing.T) {
	c, err := Compute("Tinta Base", tintaBase(), d("1"), map[string]decimal.Decimal{"Resina": d("65")})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	onHand := map[string]decimal.Decimal{"Resina": d("62"), "Solvente": d("30"), "Pigmento": d("10")}
	s := CheckStock(c.Items, onHand)
	if len(s) != 1 || !s[0].Required.Equal(d("65")) {
		t.Fatalf("shortages = %+v", s)
	}
}

func TestShortageErrorIs(t *testing.T) {
	err := error(&ShortageError{Product: "Tinta Base", Shortages: []Shortage{
		{Ingredient: "Resina", Unit: materials.UnitKg, Required: d("60"), OnHand: d("50")},
	}})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatal("ShortageError must match ErrInsufficientStock")
	}
	if got := err.Error(); got != "insufficient stock for Tinta Base (Resina: need 60 kg, have 50)" {
		t.Errorf("message = %q", got)
	}
}
