package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/Spok95/factory-bot/internal/domain/costing"
	"github.com/Spok95/factory-bot/internal/domain/history"
)

type column struct {
	title string
	width float64
	align string
}

var columns = []column{
	{"Ingrediente", 50, "L"},
	{"Un.", 14, "C"},
	{"Qtd. planejada", 28, "R"},
	{"Qtd. real", 24, "R"},
	{"Custo unit.", 26, "R"},
	{"Custo real", 28, "R"},
}

const rowHeight = 7

// BatchPDF — ордер на партию для цеха и бухгалтерии.
// Встроенные шрифты PDF понимают только cp1252, поэтому текст идёт через транслятор.
func BatchPDF(rec *history.Record, loc *time.Location) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil record")
	}
	if loc == nil {
		loc = time.UTC
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("Lote #%d", rec.ID), true)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Lote #%d  -  pag. %d/{nb}", rec.ID, pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AliasNbPages("")

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for _, c := range columns {
			pdf.CellFormat(c.width, rowHeight, tr(c.title), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("Ordem de produção #%d", rec.ID)), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	meta := [][2]string{
		{"Data", rec.CreatedAt.In(loc).Format("02/01/2006 15:04")},
		{"Operador", rec.Operator},
		{"Produto", rec.Product},
		{"Multiplicador", rec.Multiplier.String()},
	}
	for _, m := range meta {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(35, 6, tr(m[0]+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, tr(m[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	header()
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, it := range rec.Items {
		// перенос вручную, чтобы повторить шапку таблицы на новой странице
		if pdf.GetY()+rowHeight > pageH-bottom-15 {
			pdf.AddPage()
			header()
		}
		cells := []string{
			it.Ingredient,
			string(it.Unit),
			it.PlannedQty.String(),
			it.ActualQty.String(),
			costing.Money(it.UnitCost),
			costing.Money(it.ActualCost()),
		}
		for i, c := range columns {
			pdf.CellFormat(c.width, rowHeight, tr(cells[i]), "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	totals := [][2]string{
		{"Custo planejado", costing.Money(rec.PlannedCost)},
		{"Custo real", costing.Money(rec.ActualCost)},
		{"Variação", costing.Money(rec.Variance)},
		{"Status", statusText(rec.Status)},
	}
	for _, t := range totals {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(120, 6, tr(t[0]), "", 0, "R", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(50, 6, tr(t[1]), "", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func statusText(s costing.Status) string {
	if s == costing.StatusLoss {
		return "PREJUÍZO (consumo acima do planejado)"
	}
	return "OK"
}

// FileName — имя файла для отправки в Telegram и HTTP.
func FileName(rec *history.Record) string {
	return fmt.Sprintf("lote_%d_%s.pdf", rec.ID, rec.CreatedAt.UTC().Format("20060102_150405"))
}
