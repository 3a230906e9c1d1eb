package wizard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Mahaseias/sendzap/internal/domain/catalog"
	"github.com/Mahaseias/sendzap/internal/domain/proposal"
	"github.com/Mahaseias/sendzap/internal/domain/quote"
	"github.com/Mahaseias/sendzap/internal/domain/textnorm"
)

// Mode selects how items are collected. Multi shows the catalog menu and
// asks quantities for the chosen entries; sequential walks every catalog
// entry asking a quantity for each.
type Mode string

const (
	ModeMulti      Mode = "multi"
	ModeSequential Mode = "sequential"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(textnorm.Fold(s)) {
	case "", ModeMulti:
		return ModeMulti, nil
	case ModeSequential:
		return ModeSequential, nil
	}
	return "", fmt.Errorf("wizard: unknown mode %q", s)
}

type Config struct {
	Mode     Mode
	AskPhone bool
	AskNotes bool
}

func DefaultConfig() Config {
	return Config{Mode: ModeMulti, AskPhone: true, AskNotes: true}
}

type Action uint8

const (
	ActionNone Action = iota
	ActionSubmit
)

type Result struct {
	Reply  string
	Action Action
}

// intPattern keeps the sign so "-2" is read as out of range, not as 2.
var intPattern = regexp.MustCompile(`-?\d+`)

var (
	cancelWords  = words("cancelar", "cancel")
	menuWords    = words("menu", "inicio", "start")
	newWords     = words("1", "nova", "novo", "nova proposta")
	resumeWords  = words("2", "continuar", "retomar")
	confirmWords = words("1", "confirmar", "sim", "s", "yes", "y", "ok", "enviar")
	editWords    = words("2", "editar", "edit", "alterar", "nao", "n", "no")
)

func words(ws ...string) map[string]bool {
	m := make(map[string]bool, len(ws))
	for _, w := range ws {
		m[w] = true
	}
	return m
}

// Machine is the transition function of the wizard. Step only mutates the
// session it is given and performs no I/O.
type Machine struct {
	catalog *catalog.Catalog
	rules   quote.Rules
	cfg     Config
}

func NewMachine(c *catalog.Catalog, rules quote.Rules, cfg Config) *Machine {
	if cfg.Mode == "" {
		cfg.Mode = ModeMulti
	}
	return &Machine{catalog: c, rules: rules, cfg: cfg}
}

func (m *Machine) Config() Config { return m.cfg }

func (m *Machine) Step(s *Session, text string) Result {
	in := strings.TrimSpace(text)
	word := textnorm.Fold(in)

	switch {
	case cancelWords[word]:
		return m.cancel(s)
	case menuWords[word]:
		s.State = StateMenu
		return Result{Reply: msgMenu}
	}

	switch s.State {
	case StateMenu:
		return m.onMenu(s, word)
	case StateClientName:
		return m.onName(s, in)
	case StateClientEmail:
		return m.onEmail(s, in)
	case StateClientPhone:
		return m.onPhone(s, in)
	case StateSelectItems:
		return m.onSelect(s, in)
	case StateQty:
		return m.onQty(s, in)
	case StateNotes:
		return m.onNotes(s, text)
	case StateSummary:
		return m.onSummary(s, word)
	}
	s.State = StateMenu
	return Result{Reply: msgMenu}
}

// Prompt is the question for the session's current state.
func (m *Machine) Prompt(s *Session) string {
	switch s.State {
	case StateMenu:
		return msgMenu
	case StateClientName:
		return msgAskName
	case StateClientEmail:
		return msgAskEmail
	case StateClientPhone:
		return msgAskPhone
	case StateSelectItems:
		return itemsMenu(m.catalog)
	case StateQty:
		sku, _ := s.Draft.Pending()
		return qtyPrompt(m.catalog, sku)
	case StateNotes:
		return msgAskNotes
	case StateSummary:
		if q, err := m.quote(s.Draft); err == nil {
			return summary(s.Draft, q)
		}
		return msgSummaryHelp
	}
	return msgMenu
}

func (m *Machine) cancel(s *Session) Result {
	s.Draft.Reset()
	s.State = StateMenu
	return Result{Reply: join(msgCancelled, msgMenu)}
}

func (m *Machine) onMenu(s *Session, word string) Result {
	switch {
	case newWords[word]:
		s.Draft.Reset()
		return m.advance(s, "")
	case resumeWords[word]:
		if s.Draft.Empty() {
			return m.advance(s, msgNoDraft)
		}
		return m.advance(s, "")
	case word == "3":
		return m.cancel(s)
	}
	return Result{Reply: msgMenu}
}

func (m *Machine) onName(s *Session, in string) Result {
	if utf8.RuneCountInString(in) < 2 {
		return Result{Reply: join(msgBadName, msgAskName)}
	}
	s.Draft.Client.Name = in
	return m.advance(s, "")
}

func (m *Machine) onEmail(s *Session, in string) Result {
	if !proposal.ValidEmail(in) {
		return Result{Reply: join(msgBadEmail, msgAskEmail)}
	}
	s.Draft.Client.Email = in
	return m.advance(s, "")
}

func (m *Machine) onPhone(s *Session, in string) Result {
	if in == "" {
		return Result{Reply: join(msgEmptyInput, msgAskPhone)}
	}
	if in == "0" {
		in = ""
	}
	s.Draft.Client.Phone = in
	s.Draft.PhoneSet = true
	return m.advance(s, "")
}

func (m *Machine) onSelect(s *Session, in string) Result {
	skus := m.parseSelection(in)
	if len(skus) == 0 {
		return Result{Reply: join(msgBadSelection, itemsMenu(m.catalog))}
	}
	s.Draft.Selection = skus
	s.Draft.Quantities = nil
	return m.advance(s, "")
}

func (m *Machine) onQty(s *Session, in string) Result {
	sku, ok := s.Draft.Pending()
	if !ok {
		return m.advance(s, "")
	}
	n, ok := parseQty(in)
	if !ok {
		return Result{Reply: join(fmt.Sprintf(msgBadQty, quote.MaxQuantity), qtyPrompt(m.catalog, sku))}
	}
	s.Draft.setQty(sku, n)
	notice := ""
	if len(s.Draft.Selection) == 0 {
		notice = msgNoItemsLeft
	}
	return m.advance(s, notice)
}

// onNotes stores the message as typed; only the empty and skip checks look
// at the trimmed form.
func (m *Machine) onNotes(s *Session, raw string) Result {
	switch strings.TrimSpace(raw) {
	case "":
		return Result{Reply: join(msgEmptyInput, msgAskNotes)}
	case "0":
		raw = ""
	}
	s.Draft.Notes = raw
	s.Draft.NotesSet = true
	return m.advance(s, "")
}

func (m *Machine) onSummary(s *Session, word string) Result {
	switch {
	case confirmWords[word]:
		return Result{Reply: msgSubmitting, Action: ActionSubmit}
	case editWords[word]:
		s.Draft.Selection = nil
		s.Draft.Quantities = nil
		return m.advance(s, "")
	case word == "3":
		return m.cancel(s)
	}
	r := m.advance(s, "")
	if s.State == StateSummary {
		r.Reply = join(r.Reply, msgSummaryHelp)
	}
	return r
}

// next picks the first incomplete field in canonical order:
// name, email, phone, item selection, quantities, notes, summary.
func (m *Machine) next(d *Draft) State {
	switch {
	case d.Client.Name == "":
		return StateClientName
	case d.Client.Email == "":
		return StateClientEmail
	case m.cfg.AskPhone && !d.PhoneSet:
		return StateClientPhone
	}
	if len(d.Selection) == 0 {
		if m.cfg.Mode != ModeSequential {
			return StateSelectItems
		}
		d.Selection = m.catalog.SKUs()
		d.Quantities = nil
	}
	if _, ok := d.Pending(); ok {
		return StateQty
	}
	if m.cfg.AskNotes && !d.NotesSet {
		return StateNotes
	}
	return StateSummary
}

func (m *Machine) advance(s *Session, notice string) Result {
	s.State = m.next(&s.Draft)
	if s.State != StateSummary {
		return Result{Reply: join(notice, m.Prompt(s))}
	}
	q, err := m.quote(s.Draft)
	if err != nil || len(q.Lines) == 0 {
		// Items no longer price (catalog changed under the session): collect again.
		s.Draft.Selection = nil
		s.Draft.Quantities = nil
		s.State = m.next(&s.Draft)
		return Result{Reply: join(notice, msgNoItemsLeft, m.Prompt(s))}
	}
	return Result{Reply: join(notice, summary(s.Draft, q))}
}

func (m *Machine) quote(d Draft) (quote.Quote, error) {
	return quote.Compute(d.QuantityMap(), m.catalog, m.rules)
}

// parseSelection maps every integer in text to a 1-based catalog index,
// keeping first-seen order and ignoring duplicates and out-of-range values.
func (m *Machine) parseSelection(text string) []string {
	seen := map[int]bool{}
	var out []string
	for _, tok := range intPattern.FindAllString(text, -1) {
		i, err := strconv.Atoi(tok)
		if err != nil || seen[i] {
			continue
		}
		e, ok := m.catalog.At(i)
		if !ok {
			continue
		}
		seen[i] = true
		out = append(out, e.SKU)
	}
	return out
}

func parseQty(text string) (int, bool) {
	tok := intPattern.FindString(text)
	if tok == "" {
		return 0, false
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 0 || n > quote.MaxQuantity {
		return 0, false
	}
	return n, true
}
