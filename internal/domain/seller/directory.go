package seller

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Seller struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Directory resolves seller identifiers (conversation ids such as
// "wa:+5511..." or free-form ids from the quotes API) to contact data.
type Directory struct {
	sellers map[string]Seller
}

func NewDirectory(sellers map[string]Seller) *Directory {
	d := &Directory{sellers: make(map[string]Seller, len(sellers))}
	for id, s := range sellers {
		d.sellers[normalizeID(id)] = s
	}
	return d
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (d *Directory) Lookup(id string) (Seller, bool) {
	if d == nil {
		return Seller{}, false
	}
	s, ok := d.sellers[normalizeID(id)]
	return s, ok
}

func (d *Directory) Email(id string) (string, bool) {
	s, ok := d.Lookup(id)
	if !ok || strings.TrimSpace(s.Email) == "" {
		return "", false
	}
	return strings.TrimSpace(s.Email), true
}

// CC returns the seller e-mail to copy on a proposal sent to clientEmail, or
// "" when the seller is unknown or is the client.
func (d *Directory) CC(sellerID, clientEmail string) string {
	email, ok := d.Email(sellerID)
	if !ok {
		return ""
	}
	if strings.EqualFold(email, strings.TrimSpace(clientEmail)) {
		return ""
	}
	return email
}

func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.sellers)
}

// Load reads a YAML map of id -> {name, email}:
//
//	sellers:
//	  "wa:+5511999990000":
//	    name: Ana
//	    email: ana@example.com
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sellers: %w", err)
	}
	var f struct {
		Sellers map[string]Seller `yaml:"sellers"`
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sellers: %w", err)
	}
	return NewDirectory(f.Sellers), nil
}
