package wizard

import (
	"time"

	"github.com/Mahaseias/sendzap/internal/domain/proposal"
	"github.com/Mahaseias/sendzap/internal/domain/quote"
)

// Draft is the proposal being collected. Selection holds SKUs in the order
// they were chosen; an item is pending until it has an entry in Quantities.
type Draft struct {
	Client     proposal.Client `json:"client"`
	PhoneSet   bool            `json:"phone_set,omitempty"`
	Selection  []string        `json:"selection,omitempty"`
	Quantities map[string]int  `json:"quantities,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	NotesSet   bool            `json:"notes_set,omitempty"`
}

func (d *Draft) Reset() { *d = Draft{} }

func (d Draft) Empty() bool {
	return d.Client == (proposal.Client{}) && !d.PhoneSet && len(d.Selection) == 0 &&
		len(d.Quantities) == 0 && d.Notes == "" && !d.NotesSet
}

// Pending returns the first selected SKU that still needs a quantity.
func (d Draft) Pending() (string, bool) {
	for _, sku := range d.Selection {
		if _, ok := d.Quantities[sku]; !ok {
			return sku, true
		}
	}
	return "", false
}

func (d *Draft) setQty(sku string, n int) {
	if n == 0 {
		d.drop(sku)
		return
	}
	if d.Quantities == nil {
		d.Quantities = map[string]int{}
	}
	d.Quantities[sku] = n
}

func (d *Draft) drop(sku string) {
	delete(d.Quantities, sku)
	out := d.Selection[:0]
	for _, s := range d.Selection {
		if s != sku {
			out = append(out, s)
		}
	}
	d.Selection = out
}

// QuantityMap lists the quantified items in selection order.
func (d Draft) QuantityMap() quote.Quantities {
	var q quote.Quantities
	for _, sku := range d.Selection {
		if n, ok := d.Quantities[sku]; ok && n > 0 {
			q.Set(sku, n)
		}
	}
	return q
}

func (d Draft) clone() Draft {
	c := d
	if d.Selection != nil {
		c.Selection = append([]string(nil), d.Selection...)
	}
	if d.Quantities != nil {
		c.Quantities = make(map[string]int, len(d.Quantities))
		for k, v := range d.Quantities {
			c.Quantities[k] = v
		}
	}
	return c
}

type Session struct {
	ID    string `json:"id"`
	State State  `json:"state"`
	Draft Draft  `json:"draft"`

	// LastMessageID and LastReply let a redelivered transport message be
	// answered again without stepping the machine twice.
	LastMessageID string `json:"last_message_id,omitempty"`
	LastReply     string `json:"last_reply,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

func NewSession(id string, now time.Time) *Session {
	return &Session{ID: id, State: StateMenu, UpdatedAt: now}
}

// Expired reports whether the session has been idle longer than ttl. A
// non-positive ttl never expires.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(s.UpdatedAt) > ttl
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Draft = s.Draft.clone()
	return &c
}
