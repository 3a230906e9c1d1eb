package quote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Quantities maps SKU to quantity and remembers insertion order.
// The zero value is ready to use.
type Quantities struct {
	order []string
	qty   map[string]int
}

func (q *Quantities) Set(sku string, n int) {
	if q.qty == nil {
		q.qty = map[string]int{}
	}
	if _, ok := q.qty[sku]; !ok {
		q.order = append(q.order, sku)
	}
	q.qty[sku] = n
}

func (q Quantities) Get(sku string) (int, bool) {
	n, ok := q.qty[sku]
	return n, ok
}

func (q Quantities) Len() int { return len(q.order) }

func (q Quantities) SKUs() []string {
	out := make([]string, len(q.order))
	copy(out, q.order)
	return out
}

func (q Quantities) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, sku := range q.order {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(sku)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		fmt.Fprintf(&b, ":%d", q.qty[sku])
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON accepts an object ({"sku": qty}, key order kept) or an
// array of {"sku": "...", "qty": n}.
func (q *Quantities) UnmarshalJSON(data []byte) error {
	*q = Quantities{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '[' {
		var rows []struct {
			SKU string `json:"sku"`
			Qty int    `json:"qty"`
		}
		if err := json.Unmarshal(data, &rows); err != nil {
			return err
		}
		for _, r := range rows {
			q.Set(r.SKU, r.Qty)
		}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("quantities: expected object or array")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		sku, ok := tok.(string)
		if !ok {
			return errors.New("quantities: expected string key")
		}
		var n int
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("quantities: %s: %w", sku, err)
		}
		q.Set(sku, n)
	}
	_, err = dec.Token()
	return err
}
