package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Entry struct {
	SKU       string
	Label     string
	Category  string
	UnitPrice decimal.Decimal
}

// Catalog is immutable after construction and safe for concurrent reads.
type Catalog struct {
	entries    []Entry
	bySKU      map[string]int
	categories map[string][]string
}

func New(entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, errors.New("catalog is empty")
	}
	c := &Catalog{
		entries:    make([]Entry, 0, len(entries)),
		bySKU:      make(map[string]int, len(entries)),
		categories: map[string][]string{},
	}
	for _, e := range entries {
		e.SKU = strings.TrimSpace(e.SKU)
		if e.SKU == "" {
			return nil, errors.New("catalog entry without sku")
		}
		if _, dup := c.bySKU[e.SKU]; dup {
			return nil, fmt.Errorf("duplicate sku %q", e.SKU)
		}
		if !e.UnitPrice.IsPositive() {
			return nil, fmt.Errorf("sku %q: unit price must be positive", e.SKU)
		}
		if strings.TrimSpace(e.Label) == "" {
			e.Label = e.SKU
		}
		c.bySKU[e.SKU] = len(c.entries)
		c.entries = append(c.entries, e)
		if e.Category != "" {
			c.categories[e.Category] = append(c.categories[e.Category], e.SKU)
		}
	}
	return c, nil
}

func MustNew(entries []Entry) *Catalog {
	c, err := New(entries)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Len() int { return len(c.entries) }

// Entries returns a copy in catalog order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Catalog) Lookup(sku string) (Entry, bool) {
	i, ok := c.bySKU[sku]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// At resolves a 1-based menu index.
func (c *Catalog) At(index int) (Entry, bool) {
	if index < 1 || index > len(c.entries) {
		return Entry{}, false
	}
	return c.entries[index-1], true
}

func (c *Catalog) SKUs() []string {
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.SKU)
	}
	return out
}

func (c *Catalog) Category(name string) []string {
	skus := c.categories[name]
	out := make([]string, len(skus))
	copy(out, skus)
	return out
}

type fileEntry struct {
	SKU      string `yaml:"sku"`
	Label    string `yaml:"label"`
	Category string `yaml:"category"`
	Price    string `yaml:"price"`
}

type fileFormat struct {
	Items []fileEntry `yaml:"items"`
}

// Load reads a YAML catalog:
//
//	items:
//	  - sku: lamp_smart
//	    label: Lâmpada inteligente
//	    category: iluminacao
//	    price: "180.00"
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	entries := make([]Entry, 0, len(f.Items))
	for _, it := range f.Items {
		price, err := decimal.NewFromString(strings.TrimSpace(it.Price))
		if err != nil {
			return nil, fmt.Errorf("sku %q: invalid price %q: %w", it.SKU, it.Price, err)
		}
		entries = append(entries, Entry{
			SKU:       it.SKU,
			Label:     it.Label,
			Category:  it.Category,
			UnitPrice: price,
		})
	}
	return New(entries)
}
