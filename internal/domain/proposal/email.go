package proposal

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/Mahaseias/sendzap/internal/domain/textnorm"
)

var emailTemplate = template.Must(template.New("proposal").Funcs(template.FuncMap{
	"money": Money,
}).Parse(`<p>Olá, {{.Client.Name}}!</p>
<p>Segue em anexo a proposta de automação{{if .CompanyName}} da {{.CompanyName}}{{end}}.</p>
<table cellpadding="4">
{{- range .Breakdown}}
<tr><td>{{.Label}}</td><td align="right">{{.Qty}}</td><td align="right">{{money .Material}}</td></tr>
{{- end}}
</table>
<p>Total materiais: {{money .Totals.MaterialTotal}}<br>
Mão de obra: {{money .Totals.LaborTotal}}<br>
<strong>Valor total: {{money .Totals.GrandTotal}}</strong></p>
<p>À vista ({{.Totals.CashDiscountPercent}}% desconto): {{money .Totals.CashTotal}}<br>
Cartão: {{.Totals.CardInstallments}}x sem juros de {{money .Totals.CardInstallmentValue}}</p>
{{- if .Notes}}
<p><em>Observações:</em> {{.Notes}}</p>
{{- end}}
<p>Qualquer dúvida, é só responder este e-mail.</p>
`))

func Subject(c Context) string {
	if c.CompanyName == "" {
		return "Proposta de Automação"
	}
	return "Proposta de Automação - " + c.CompanyName
}

func HTMLBody(c Context) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, c); err != nil {
		return "", fmt.Errorf("render email body: %w", err)
	}
	return buf.String(), nil
}

func AttachmentName(c Context) string {
	slug := textnorm.Slug(c.Client.Name)
	if slug == "" {
		return "proposta.pdf"
	}
	return "proposta-" + slug + ".pdf"
}
