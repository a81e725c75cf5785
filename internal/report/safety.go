package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/Spok95/factory-bot/internal/domain/safety"
)

var compColumns = []column{
	{"Ingrediente", 55, "L"},
	{"CAS", 30, "C"},
	{"Concentração (%)", 32, "R"},
	{"Perigo", 63, "L"},
}

// SafetySheetPDF — ficha com dados de segurança (FDS) по NBR 14725
// с датой выпуска dd/mm/yyyy.
func SafetySheetPDF(s *safety.Sheet, issued time.Time) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("nil safety sheet")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("FDS "+s.Product, true)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("FDS %s  -  emissão %s  -  pag. %d/{nb}", s.Product, issued.Format("02/01/2006"), pdf.PageNo())),
			"", 0, "C", false, 0, "")
	})
	pdf.AliasNbPages("")

	section := func(title string) {
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetFillColor(230, 230, 230)
		pdf.CellFormat(0, 7, tr(title), "", 1, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 10)
	}
	labeled := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(45, 6, tr(label+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, tr(value), "", "L", false)
	}
	phrases := func(list []safety.Phrase) {
		if len(list) == 0 {
			pdf.CellFormat(0, 6, tr("Não aplicável."), "", 1, "L", false, 0, "")
			return
		}
		for _, p := range list {
			pdf.MultiCell(0, 6, tr(p.Code+" - "+p.Text), "", "L", false)
		}
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 9, tr("FICHA COM DADOS DE SEGURANÇA"), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, tr("Conforme ABNT NBR 14725:2023"), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, tr("Data de emissão: "+issued.Format("02/01/2006")), "", 1, "C", false, 0, "")

	section("1. Identificação do produto")
	labeled("Nome do produto", s.Product)
	for _, f := range s.Fields {
		labeled(f.Label, f.Value)
	}

	section("2. Identificação de perigos")
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, tr("Frases de perigo (H)"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	phrases(s.Hazards)
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, tr("Frases de precaução (P)"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	phrases(s.Precautions)

	section("3. Composição e informações sobre os ingredientes")
	if len(s.Components) == 0 {
		pdf.CellFormat(0, 6, tr("Composição não informada."), "", 1, "L", false, 0, "")
	} else {
		pdf.SetFont("Helvetica", "B", 9)
		for _, c := range compColumns {
			pdf.CellFormat(c.width, rowHeight, tr(c.title), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
		for _, c := range s.Components {
			cells := []string{c.Name, dash(c.CASRef), c.Share.StringFixed(2), dash(c.HazardText)}
			for i, col := range compColumns {
				pdf.CellFormat(col.width, rowHeight, tr(fit(pdf, cells[i], col.width)), "1", 0, col.align, false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SafetySheetFileName — FDS_<produto>.pdf; разделители пути заменяются.
func SafetySheetFileName(product string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(product))
	return "FDS_" + name + ".pdf"
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// fit обрезает текст под ширину ячейки таблицы.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	const pad = 2
	if pdf.GetStringWidth(s) <= width-pad {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width-pad {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
