package proposal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Mahaseias/sendzap/internal/domain/quote"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[A-Za-z]{2,}$`)

// ValidEmail checks the local@domain.tld shape with a TLD of at least two letters.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type Client struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address,omitempty"`
}

type Line struct {
	Label     string          `json:"label"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Material  decimal.Decimal `json:"material"`
}

type Totals struct {
	MaterialTotal        decimal.Decimal `json:"material_total"`
	LaborTotal           decimal.Decimal `json:"labor_total"`
	GrandTotal           decimal.Decimal `json:"grand_total"`
	CashTotal            decimal.Decimal `json:"cash_total"`
	CashDiscountPercent  string          `json:"cash_discount_percent"`
	CardInstallments     int             `json:"card_installments"`
	CardInstallmentValue decimal.Decimal `json:"card_installment_value"`
}

// Context is what the document renderer and the e-mail composer consume.
type Context struct {
	CompanyName string `json:"company_name"`
	Client      Client `json:"client"`
	Notes       string `json:"notes"`
	Breakdown   []Line `json:"breakdown"`
	Totals      Totals `json:"totals"`
}

func Assemble(client Client, notes string, q quote.Quote, companyName string) (Context, error) {
	client.Name = strings.TrimSpace(client.Name)
	client.Email = strings.TrimSpace(client.Email)
	client.Phone = strings.TrimSpace(client.Phone)
	client.Address = strings.TrimSpace(client.Address)

	if client.Name == "" {
		return Context{}, &ValidationError{Field: "client.name", Message: "must not be empty"}
	}
	if !ValidEmail(client.Email) {
		return Context{}, &ValidationError{Field: "client.email", Message: fmt.Sprintf("%q is not a valid e-mail address", client.Email)}
	}
	if len(q.Lines) == 0 {
		return Context{}, &ValidationError{Field: "items", Message: "at least one item with quantity > 0 is required"}
	}

	ctx := Context{
		CompanyName: strings.TrimSpace(companyName),
		Client:      client,
		Notes:       strings.TrimSpace(notes),
		Breakdown:   make([]Line, 0, len(q.Lines)),
		Totals: Totals{
			MaterialTotal:        q.Totals.Material,
			LaborTotal:           q.Totals.Labor,
			GrandTotal:           q.Totals.Grand,
			CashTotal:            q.Totals.Cash,
			CashDiscountPercent:  q.Rules.DiscountPercent(),
			CardInstallments:     q.Totals.Installments,
			CardInstallmentValue: q.Totals.InstallmentValue,
		},
	}
	for _, l := range q.Lines {
		ctx.Breakdown = append(ctx.Breakdown, Line{
			Label:     l.Label,
			Qty:       l.Qty,
			UnitPrice: l.UnitPrice,
			Material:  l.Material,
		})
	}
	return ctx, nil
}

// Money formats an amount the way the proposal prints it: "R$ 1234.50".
func Money(d decimal.Decimal) string {
	return "R$ " + d.StringFixed(2)
}
