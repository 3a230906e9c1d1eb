package gofpdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/Mahaseias/sendzap/internal/domain/proposal"
)

var ErrIncompleteProposal = errors.New("proposal is missing required fields")

const (
	marginLeft   = 14.0
	notesWrapLen = 90
	labelMaxLen  = 38
)

type Generator struct {
	now func() time.Time
}

func New() *Generator { return &Generator{now: time.Now} }

func validate(p proposal.Context) error {
	var missing []string
	if strings.TrimSpace(p.Client.Name) == "" {
		missing = append(missing, "client.name")
	}
	if strings.TrimSpace(p.Client.Email) == "" {
		missing = append(missing, "client.email")
	}
	if len(p.Breakdown) == 0 {
		missing = append(missing, "breakdown")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncompleteProposal, strings.Join(missing, ", "))
	}
	return nil
}

func (g *Generator) Render(ctx context.Context, p proposal.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr("Proposta de Automação"), false)
	pdf.SetAuthor(tr(p.CompanyName), false)
	pdf.SetMargins(marginLeft, 18, marginLeft)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	line := func(txt string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 11)
		pdf.CellFormat(0, 6, tr(txt), "", 1, "L", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 7, tr("Proposta de Automação"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, tr(p.CompanyName), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	line("Cliente", true)
	line("Nome: "+p.Client.Name, false)
	line("E-mail: "+p.Client.Email, false)
	line("Telefone: "+p.Client.Phone, false)
	if p.Client.Address != "" {
		line("Endereço: "+p.Client.Address, false)
	}
	pdf.Ln(3)

	if notes := strings.TrimSpace(p.Notes); notes != "" {
		line("Observações da vistoria", true)
		for _, chunk := range splitText(notes, notesWrapLen) {
			line(chunk, false)
		}
		pdf.Ln(3)
	}

	line("Materiais", true)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(95, 6, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(20, 6, "Qtd", "B", 0, "R", false, 0, "")
	pdf.CellFormat(35, 6, "Unit", "B", 0, "R", false, 0, "")
	pdf.CellFormat(35, 6, "Total", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, row := range p.Breakdown {
		pdf.CellFormat(95, 5.5, tr(trim(row.Label, labelMaxLen)), "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 5.5, strconv.Itoa(row.Qty), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 5.5, proposal.Money(row.UnitPrice), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 5.5, proposal.Money(row.Material), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	t := p.Totals
	line("Total materiais: "+proposal.Money(t.MaterialTotal), true)
	line("Mão de obra: "+proposal.Money(t.LaborTotal), true)
	line("Valor total: "+proposal.Money(t.GrandTotal), true)
	pdf.Ln(2)

	line("Condições de pagamento", true)
	line(fmt.Sprintf("À vista (%s%% desconto): %s", t.CashDiscountPercent, proposal.Money(t.CashTotal)), false)
	line(fmt.Sprintf("Cartão: %dx sem juros de %s", t.CardInstallments, proposal.Money(t.CardInstallmentValue)), false)

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 4, tr(fmt.Sprintf("Gerado em %s", g.now().Format("02/01/2006 15:04"))), "", 1, "L", false, 0, "")

	if err := pdf.Error(); err != nil {
		log.Printf("proposal pdf: layout failed: %v", err)
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		log.Printf("proposal pdf: output failed: %v", err)
		return nil, err
	}
	return buf.Bytes(), nil
}

func trim(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// splitText greedily packs words into lines of at most max runes. A single
// word longer than max gets a line of its own.
func splitText(text string, max int) []string {
	var lines []string
	var cur []string
	curLen := 0
	for _, w := range strings.Fields(text) {
		wl := len([]rune(w))
		extra := wl
		if len(cur) > 0 {
			extra++
		}
		if len(cur) > 0 && curLen+extra > max {
			lines = append(lines, strings.Join(cur, " "))
			cur = []string{w}
			curLen = wl
			continue
		}
		cur = append(cur, w)
		curLen += extra
	}
	if len(cur) > 0 {
		lines = append(lines, strings.Join(cur, " "))
	}
	return lines
}
