package wizard

import (
	"fmt"
	"strings"

	"github.com/Mahaseias/sendzap/internal/domain/catalog"
	"github.com/Mahaseias/sendzap/internal/domain/proposal"
	"github.com/Mahaseias/sendzap/internal/domain/quote"
)

const (
	msgMenu = "Olá! Sou o assistente de propostas.\n" +
		"1 - Nova proposta\n" +
		"2 - Continuar proposta\n" +
		"3 - Cancelar"
	msgCancelled    = "Proposta cancelada."
	msgNoDraft      = "Não há proposta em andamento. Vamos começar uma nova."
	msgAskName      = "Qual o nome do cliente?"
	msgBadName      = "Nome muito curto. Informe pelo menos 2 caracteres."
	msgAskEmail     = "Qual o e-mail do cliente?"
	msgBadEmail     = "E-mail inválido. Exemplo: nome@empresa.com.br"
	msgAskPhone     = "Qual o telefone do cliente? (responda 0 para pular)"
	msgAskNotes     = "Alguma observação da vistoria? (responda 0 para pular)"
	msgEmptyInput   = "Não entendi. Responda com texto."
	msgBadSelection = "Nenhum item válido. Responda com os números dos itens, ex.: 1,3,8"
	msgBadQty       = "Quantidade inválida. Informe um número de 0 a %d (0 remove o item)."
	msgNoItemsLeft  = "Nenhum item ficou selecionado."
	msgSubmitting   = "Gerando e enviando a proposta..."
	msgSummaryHelp  = "Responda 1 para confirmar, 2 para editar os itens ou 3 para cancelar."
	msgSummaryOpts  = "1 - Confirmar e enviar\n2 - Editar itens\n3 - Cancelar"
)

func itemsMenu(c *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString("Quais itens entram na proposta? Responda com os números, ex.: 1,3,8\n")
	category := ""
	for i, e := range c.Entries() {
		if e.Category != "" && e.Category != category {
			category = e.Category
			fmt.Fprintf(&b, "%s:\n", catalog.CategoryTitle(category))
		}
		fmt.Fprintf(&b, "%d - %s (%s)\n", i+1, e.Label, proposal.Money(e.UnitPrice))
	}
	return strings.TrimRight(b.String(), "\n")
}

func qtyPrompt(c *catalog.Catalog, sku string) string {
	e, ok := c.Lookup(sku)
	if !ok {
		return fmt.Sprintf("Quantidade de %s? (0 remove o item)", sku)
	}
	return fmt.Sprintf("Quantidade de %s (%s cada)? (0 remove o item)", e.Label, proposal.Money(e.UnitPrice))
}

func summary(d Draft, q quote.Quote) string {
	var b strings.Builder
	b.WriteString("Resumo da proposta\n")
	fmt.Fprintf(&b, "Cliente: %s\n", d.Client.Name)
	fmt.Fprintf(&b, "E-mail: %s\n", d.Client.Email)
	if d.Client.Phone != "" {
		fmt.Fprintf(&b, "Telefone: %s\n", d.Client.Phone)
	}
	b.WriteString("Itens:\n")
	for _, l := range q.Lines {
		fmt.Fprintf(&b, "- %s x%d = %s\n", l.Label, l.Qty, proposal.Money(l.Material))
	}
	t := q.Totals
	fmt.Fprintf(&b, "Materiais: %s\n", proposal.Money(t.Material))
	fmt.Fprintf(&b, "Mão de obra: %s\n", proposal.Money(t.Labor))
	fmt.Fprintf(&b, "Total: %s\n", proposal.Money(t.Grand))
	fmt.Fprintf(&b, "À vista (%s%% desconto): %s\n", q.Rules.DiscountPercent(), proposal.Money(t.Cash))
	fmt.Fprintf(&b, "Cartão: %dx sem juros de %s\n", t.Installments, proposal.Money(t.InstallmentValue))
	if d.Notes != "" {
		fmt.Fprintf(&b, "Observações: %s\n", d.Notes)
	}
	b.WriteString("\n")
	b.WriteString(msgSummaryOpts)
	return b.String()
}

func join(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
