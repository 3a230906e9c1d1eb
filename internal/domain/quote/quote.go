package quote

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Mahaseias/sendzap/internal/domain/catalog"
)

const MaxQuantity = 100000

var (
	ErrUnknownSKU         = errors.New("unknown sku")
	ErrQuantityOutOfRange = errors.New("quantity out of range")
	ErrInvalidRules       = errors.New("invalid commercial rules")
)

type Rules struct {
	LaborRate        decimal.Decimal
	CashDiscountRate decimal.Decimal
	Installments     int
}

func DefaultRules() Rules {
	return Rules{
		LaborRate:        decimal.RequireFromString("0.40"),
		CashDiscountRate: decimal.RequireFromString("0.10"),
		Installments:     3,
	}
}

func (r Rules) Validate() error {
	if r.LaborRate.IsNegative() {
		return fmt.Errorf("%w: labor rate %s < 0", ErrInvalidRules, r.LaborRate)
	}
	if r.CashDiscountRate.IsNegative() || r.CashDiscountRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: cash discount rate %s outside [0,1)", ErrInvalidRules, r.CashDiscountRate)
	}
	if r.Installments < 1 {
		return fmt.Errorf("%w: installments %d < 1", ErrInvalidRules, r.Installments)
	}
	return nil
}

type Line struct {
	SKU       string
	Label     string
	Qty       int
	UnitPrice decimal.Decimal
	Material  decimal.Decimal
}

type Totals struct {
	Material         decimal.Decimal
	Labor            decimal.Decimal
	Grand            decimal.Decimal
	Cash             decimal.Decimal
	Installments     int
	InstallmentValue decimal.Decimal
}

type Quote struct {
	Lines  []Line
	Totals Totals
	Rules  Rules
}

func round(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Compute prices q against c. Lines follow the insertion order of q and skip
// zero quantities. Every monetary value is rounded once, where it is produced.
func Compute(q Quantities, c *catalog.Catalog, r Rules) (Quote, error) {
	if err := r.Validate(); err != nil {
		return Quote{}, err
	}
	out := Quote{Rules: r}
	material := decimal.Zero
	for _, sku := range q.SKUs() {
		n, _ := q.Get(sku)
		if n < 0 || n > MaxQuantity {
			return Quote{}, fmt.Errorf("%w: %s=%d", ErrQuantityOutOfRange, sku, n)
		}
		entry, ok := c.Lookup(sku)
		if !ok {
			return Quote{}, fmt.Errorf("%w: %s", ErrUnknownSKU, sku)
		}
		if n == 0 {
			continue
		}
		sub := round(entry.UnitPrice.Mul(decimal.NewFromInt(int64(n))))
		out.Lines = append(out.Lines, Line{
			SKU:       sku,
			Label:     entry.Label,
			Qty:       n,
			UnitPrice: entry.UnitPrice,
			Material:  sub,
		})
		material = material.Add(sub)
	}

	labor := round(material.Mul(r.LaborRate))
	grand := material.Add(labor)
	out.Totals = Totals{
		Material:         material,
		Labor:            labor,
		Grand:            grand,
		Cash:             round(grand.Mul(decimal.NewFromInt(1).Sub(r.CashDiscountRate))),
		Installments:     r.Installments,
		InstallmentValue: round(grand.Div(decimal.NewFromInt(int64(r.Installments)))),
	}
	return out, nil
}

// DiscountPercent renders the cash discount as a whole percentage for display.
func (r Rules) DiscountPercent() string {
	return r.CashDiscountRate.Mul(decimal.NewFromInt(100)).Round(0).String()
}
