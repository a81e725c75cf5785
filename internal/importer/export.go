package importer

import (
	"bytes"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/factory-bot/internal/domain/costing"
	"github.com/Spok95/factory-bot/internal/domain/history"
	"github.com/Spok95/factory-bot/internal/domain/materials"
)

// HistoryXLSX — журнал партий: лист «Historico» (по строке на партию)
// и лист «Itens» с расходом по ингредиентам, если у записей есть позиции.
func HistoryXLSX(records []history.Record, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := "Historico"
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		return nil, err
	}
	header := []interface{}{"id", "data", "operador", "produto", "multiplicador", "custo_planejado", "custo_real", "variacao", "status"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	row := 2
	for _, r := range records {
		vals := []interface{}{
			r.ID,
			r.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
			r.Operator,
			r.Product,
			num(r.Multiplier),
			money(r.PlannedCost),
			money(r.ActualCost),
			money(r.Variance),
			string(r.Status),
		}
		if err := setRow(f, sheet, row, vals); err != nil {
			return nil, err
		}
		row++
	}

	withItems := false
	for _, r := range records {
		if len(r.Items) > 0 {
			withItems = true
			break
		}
	}
	if withItems {
		items := "Itens"
		if _, err := f.NewSheet(items); err != nil {
			return nil, err
		}
		header := []interface{}{"id", "ingrediente", "unidade", "qtd_planejada", "qtd_real", "custo_unitario", "custo_real"}
		if err := f.SetSheetRow(items, "A1", &header); err != nil {
			return nil, err
		}
		row := 2
		for _, r := range records {
			for _, it := range r.Items {
				vals := []interface{}{
					r.ID, it.Ingredient, string(it.Unit),
					num(it.PlannedQty), num(it.ActualQty), money(it.UnitCost), money(it.ActualCost()),
				}
				if err := setRow(f, items, row, vals); err != nil {
					return nil, err
				}
				row++
			}
		}
	}

	return write(f)
}

// StockXLSX — остатки с уровнем тревоги; формат совместим с листом «Materiais»,
// поэтому выгрузку можно поправить и загрузить обратно.
func StockXLSX(list []materials.Material, lowFactor decimal.Decimal) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := SheetMaterials
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		return nil, err
	}
	header := []interface{}{"name", "unit_cost", "cas", "hazard_text", "unit", "on_hand", "min_threshold", "nivel"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	critical, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{"F8CBAD"}, Pattern: 1}})
	if err != nil {
		return nil, err
	}
	low, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{"FFE699"}, Pattern: 1}})
	if err != nil {
		return nil, err
	}

	for i, m := range list {
		row := i + 2
		lvl := materials.Classify(m, lowFactor)
		vals := []interface{}{
			m.Name, num(m.UnitCost), m.CASRef, m.HazardText, string(m.Unit),
			num(m.OnHand), num(m.MinThreshold), string(lvl),
		}
		if err := setRow(f, sheet, row, vals); err != nil {
			return nil, err
		}
		style := 0
		switch lvl {
		case materials.LevelCritical:
			style = critical
		case materials.LevelLow:
			style = low
		}
		if style != 0 {
			from, _ := excelize.CoordinatesToCellName(1, row)
			to, _ := excelize.CoordinatesToCellName(len(vals), row)
			if err := f.SetCellStyle(sheet, from, to, style); err != nil {
				return nil, err
			}
		}
	}

	return write(f)
}

func setRow(f *excelize.File, sheet string, row int, vals []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	return nil
}

func write(f *excelize.File) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// num пишет число числом, чтобы в Excel по нему можно было считать.
func num(d decimal.Decimal) float64 { return d.InexactFloat64() }

func money(d decimal.Decimal) float64 {
	v, _ := decimal.RequireFromString(costing.Money(d)).Float64()
	return v
}
