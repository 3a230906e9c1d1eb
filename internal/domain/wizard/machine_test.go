package wizard

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mahaseias/sendzap/internal/domain/catalog"
	"github.com/Mahaseias/sendzap/internal/domain/proposal"
	"github.com/Mahaseias/sendzap/internal/domain/quote"
)

func newMachine(cfg Config) *Machine {
	return NewMachine(catalog.Default(), quote.DefaultRules(), cfg)
}

func newSession() *Session {
	return NewSession("wa:+5511999990000", time.Now())
}

func drive(t *testing.T, m *Machine, s *Session, inputs ...string) Result {
	t.Helper()
	var r Result
	for _, in := range inputs {
		r = m.Step(s, in)
	}
	return r
}

func filledDraft() Draft {
	return Draft{
		Client:     proposal.Client{Name: "Maria Souza", Email: "maria@example.com", Phone: "11 98888"},
		PhoneSet:   true,
		Selection:  []string{"lamp_smart", "hub_zigbee"},
		Quantities: map[string]int{"lamp_smart": 2},
		Notes:      "sala",
		NotesSet:   true,
	}
}

func TestStateNames(t *testing.T) {
	for _, s := range States() {
		got, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	assert.Equal(t, "State(42)", State(42).String())
	_, err := ParseState("SUBMIT")
	assert.Error(t, err)

	b, err := json.Marshal(map[string]State{"state": StateSummary})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"SUMMARY"}`, string(b))

	var back struct{ State State }
	require.NoError(t, json.Unmarshal([]byte(`{"State":"qty"}`), &back))
	assert.Equal(t, StateQty, back.State)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeMulti, m)
	m, err = ParseMode(" Sequential ")
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, m)
	_, err = ParseMode("graph")
	assert.Error(t, err)
}

func TestHappyPathMultiSelect(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()

	r := m.Step(s, "1")
	assert.Equal(t, StateClientName, s.State)
	assert.Equal(t, msgAskName, r.Reply)

	drive(t, m, s, "Maria Souza", "maria@example.com")
	assert.Equal(t, StateClientPhone, s.State)

	r = m.Step(s, "11 98888-7777")
	assert.Equal(t, StateSelectItems, s.State)
	assert.Contains(t, r.Reply, "8 - Central Zigbee (R$ 480.00)")

	r = m.Step(s, "1,3,8")
	assert.Equal(t, StateQty, s.State)
	assert.Equal(t, []string{"lamp_smart", "plug_smart", "hub_zigbee"}, s.Draft.Selection)
	assert.Contains(t, r.Reply, "Lâmpada inteligente Wi-Fi")

	drive(t, m, s, "2", "0", "1 unidade")
	assert.Equal(t, StateNotes, s.State)
	assert.Equal(t, []string{"lamp_smart", "hub_zigbee"}, s.Draft.Selection)

	r = m.Step(s, "0")
	assert.Equal(t, StateSummary, s.State)
	assert.True(t, s.Draft.NotesSet)
	assert.Empty(t, s.Draft.Notes)
	assert.Contains(t, r.Reply, "Cliente: Maria Souza")
	assert.Contains(t, r.Reply, "Lâmpada inteligente Wi-Fi x2 = R$ 360.00")
	assert.Contains(t, r.Reply, "Central Zigbee x1 = R$ 480.00")
	assert.Contains(t, r.Reply, "Total: R$ 1176.00")
	assert.Contains(t, r.Reply, "À vista (10% desconto): R$ 1058.40")
	assert.Contains(t, r.Reply, "Cartão: 3x sem juros de R$ 392.00")
	assert.NotContains(t, r.Reply, "Observações")

	r = m.Step(s, "Sim")
	assert.Equal(t, ActionSubmit, r.Action)
	assert.Equal(t, StateSummary, s.State)
}

func TestConfirmSynonyms(t *testing.T) {
	m := newMachine(DefaultConfig())
	for _, in := range []string{"1", "confirmar", "SIM", "s", "yes", "Y", "ok", "enviar"} {
		s := newSession()
		s.State = StateSummary
		s.Draft = filledDraft()
		s.Draft.Quantities["hub_zigbee"] = 1
		assert.Equalf(t, ActionSubmit, m.Step(s, in).Action, "input %q", in)
	}
}

func TestSelectionParsing(t *testing.T) {
	m := newMachine(DefaultConfig())
	cases := map[string][]string{
		"1,3,8":                  {"lamp_smart", "plug_smart", "hub_zigbee"},
		"1,1,3":                  {"lamp_smart", "plug_smart"},
		"quero o 2 e o 5":        {"switch_smart", "sensor_motion"},
		"8 0 9 42 8 7":           {"hub_zigbee", "camera_wifi"},
		"03;1":                   {"plug_smart", "lamp_smart"},
		"99999999999999999999 4": {"ir_universal"},
		"-3 8":                   {"hub_zigbee"},
	}
	for in, want := range cases {
		assert.Equalf(t, want, m.parseSelection(in), "input %q", in)
	}
	assert.Empty(t, m.parseSelection("0 9 nenhum"))
	assert.Empty(t, m.parseSelection("-1"))
	assert.Empty(t, m.parseSelection("-3 -8"))
}

func TestSelectItemsRejectsNegativeIndex(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()
	s.State = StateSelectItems
	s.Draft = filledDraft()
	s.Draft.Selection = nil
	s.Draft.Quantities = nil

	r := m.Step(s, "-2")
	assert.Equal(t, StateSelectItems, s.State)
	assert.Empty(t, s.Draft.Selection)
	assert.Contains(t, r.Reply, "1 - Lâmpada inteligente Wi-Fi")
}

func TestSelectItemsRejectsNoValidIndex(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()
	s.State = StateSelectItems
	s.Draft = filledDraft()

	r := m.Step(s, "0, 9, 42")
	assert.Equal(t, StateSelectItems, s.State)
	assert.Contains(t, r.Reply, msgBadSelection)
	assert.Contains(t, r.Reply, "1 - Lâmpada inteligente Wi-Fi")
	assert.Contains(t, r.Reply, "Segurança:\n5 - ")
	assert.Equal(t, filledDraft().Selection, s.Draft.Selection)
}

func TestSelectItemsClearsPreviousQuantities(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()
	s.State = StateSelectItems
	s.Draft = filledDraft()

	m.Step(s, "2")
	assert.Equal(t, StateQty, s.State)
	assert.Equal(t, []string{"switch_smart"}, s.Draft.Selection)
	assert.Empty(t, s.Draft.Quantities)
}

func TestQtyValidation(t *testing.T) {
	m := newMachine(DefaultConfig())
	for _, in := range []string{"abc", "", "-1", "100001", "99999999999999999999"} {
		s := newSession()
		s.State = StateQty
		s.Draft = filledDraft()
		before := s.Draft.clone()

		r := m.Step(s, in)
		assert.Equalf(t, StateQty, s.State, "input %q", in)
		assert.Containsf(t, r.Reply, "Quantidade inválida", "input %q", in)
		assert.Equal(t, before, s.Draft)
	}

	s := newSession()
	s.State = StateQty
	s.Draft = filledDraft()
	m.Step(s, "quero 100000 unidades, ou 3")
	assert.Equal(t, 100000, s.Draft.Quantities["hub_zigbee"])
}

func TestQtyZeroRemovesItem(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()
	s.State = StateQty
	s.Draft = filledDraft()

	m.Step(s, "0")
	assert.Equal(t, []string{"lamp_smart"}, s.Draft.Selection)
	_, ok := s.Draft.Quantities["hub_zigbee"]
	assert.False(t, ok)
	assert.Equal(t, StateSummary, s.State)

	q := s.Draft.QuantityMap()
	assert.Equal(t, []string{"lamp_smart"}, q.SKUs())
}

func TestSetQtyZeroIsIdempotent(t *testing.T) {
	once := filledDraft()
	once.setQty("lamp_smart", 0)
	twice := filledDraft()
	twice.setQty("lamp_smart", 0)
	twice.setQty("lamp_smart", 0)
	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"hub_zigbee"}, once.Selection)
}

func TestAllItemsRemovedReturnsToSelection(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()
	s.State = StateQty
	s.Draft = filledDraft()
	s.Draft.Quantities = nil

	r := drive(t, m, s, "0", "0")
	assert.Equal(t, StateSelectItems, s.State)
	assert.Empty(t, s.Draft.Selection)
	assert.Contains(t, r.Reply, msgNoItemsLeft)
}

func TestCancelFromAnyState(t *testing.T) {
	m := newMachine(DefaultConfig())
	for _, st := range States() {
		for _, word := range []string{"cancelar", " CANCEL ", "Cancelar"} {
			s := newSession()
			s.State = st
			s.Draft = filledDraft()

			r := m.Step(s, word)
			assert.Equalf(t, StateMenu, s.State, "state %s", st)
			assert.Truef(t, s.Draft.Empty(), "state %s", st)
			assert.Contains(t, r.Reply, msgCancelled)
			assert.Equal(t, ActionNone, r.Action)
		}
	}
}

func TestMenuCommandKeepsDraft(t *testing.T) {
	m := newMachine(DefaultConfig())
	for _, word := range []string{"menu", "Início", "START"} {
		s := newSession()
		s.State = StateQty
		s.Draft = filledDraft()

		r := m.Step(s, word)
		assert.Equal(t, StateMenu, s.State)
		assert.Equal(t, msgMenu, r.Reply)
		assert.Equal(t, filledDraft(), s.Draft)

		r = m.Step(s, "2")
		assert.Equal(t, StateQty, s.State)
		assert.Contains(t, r.Reply, "Central Zigbee")
	}
}

func TestMenuResumeRoutesToFirstIncompleteField(t *testing.T) {
	m := newMachine(DefaultConfig())

	s := newSession()
	r := m.Step(s, "continuar")
	assert.Equal(t, StateClientName, s.State)
	assert.Contains(t, r.Reply, msgNoDraft)

	s = newSession()
	s.Draft.Client.Name = "Maria"
	m.Step(s, "2")
	assert.Equal(t, StateClientEmail, s.State)

	s = newSession()
	s.Draft = filledDraft()
	s.Draft.Selection = nil
	s.Draft.Quantities = nil
	m.Step(s, "2")
	assert.Equal(t, StateSelectItems, s.State)

	s = newSession()
	s.Draft = filledDraft()
	s.Draft.Quantities["hub_zigbee"] = 1
	r = m.Step(s, "retomar")
	assert.Equal(t, StateSummary, s.State)
	assert.Contains(t, r.Reply, "Resumo da proposta")
}

func TestMenuNewClearsDraft(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()
	s.Draft = filledDraft()
	m.Step(s, "nova")
	assert.Equal(t, StateClientName, s.State)
	assert.True(t, s.Draft.Empty())
}

func TestMenuRepromptsOnUnknownInput(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()
	s.Draft = filledDraft()
	for i := 0; i < 2; i++ {
		r := m.Step(s, "oi, tudo bem?")
		assert.Equal(t, msgMenu, r.Reply)
		assert.Equal(t, StateMenu, s.State)
		assert.Equal(t, filledDraft(), s.Draft)
	}

	m.Step(s, "3")
	assert.True(t, s.Draft.Empty())
}

func TestNameAndEmailValidation(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()
	s.State = StateClientName

	r := m.Step(s, " A ")
	assert.Equal(t, StateClientName, s.State)
	assert.Contains(t, r.Reply, msgBadName)

	m.Step(s, "Jô")
	assert.Equal(t, StateClientEmail, s.State)
	assert.Equal(t, "Jô", s.Draft.Client.Name)

	for _, bad := range []string{"jo", "jo@", "jo@mail", "jo@mail.c", "jo @mail.com"} {
		r = m.Step(s, bad)
		assert.Equalf(t, StateClientEmail, s.State, "input %q", bad)
		assert.Contains(t, r.Reply, msgBadEmail)
	}
	m.Step(s, " jo@mail.com.br ")
	assert.Equal(t, "jo@mail.com.br", s.Draft.Client.Email)
}

func TestPhoneAndNotesSkip(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()
	s.State = StateClientPhone
	s.Draft.Client = proposal.Client{Name: "Maria", Email: "maria@example.com"}

	r := m.Step(s, "  ")
	assert.Equal(t, StateClientPhone, s.State)
	assert.Contains(t, r.Reply, msgEmptyInput)

	m.Step(s, "0")
	assert.True(t, s.Draft.PhoneSet)
	assert.Empty(t, s.Draft.Client.Phone)
	assert.Equal(t, StateSelectItems, s.State)

	s.State = StateNotes
	s.Draft.Selection = []string{"lamp_smart"}
	s.Draft.Quantities = map[string]int{"lamp_smart": 1}
	r = m.Step(s, "Trocar o quadro, 0 pendências")
	assert.Equal(t, "Trocar o quadro, 0 pendências", s.Draft.Notes)
	assert.Contains(t, r.Reply, "Observações: Trocar o quadro")
}

func TestNotesKeepRawText(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()
	s.State = StateNotes
	s.Draft = filledDraft()
	s.Draft.Quantities["hub_zigbee"] = 1
	s.Draft.Notes, s.Draft.NotesSet = "", false

	m.Step(s, "  Sala:\n- trocar tomadas\n")
	assert.Equal(t, "  Sala:\n- trocar tomadas\n", s.Draft.Notes)
	assert.Equal(t, StateSummary, s.State)

	s.State = StateNotes
	m.Step(s, " 0 ")
	assert.Empty(t, s.Draft.Notes)
	assert.True(t, s.Draft.NotesSet)
}

func TestSummaryEditKeepsClient(t *testing.T) {
	m := newMachine(DefaultConfig())
	for _, in := range []string{"2", "editar", "Não", "n"} {
		s := newSession()
		s.State = StateSummary
		s.Draft = filledDraft()
		s.Draft.Quantities["hub_zigbee"] = 1

		r := m.Step(s, in)
		assert.Equalf(t, StateSelectItems, s.State, "input %q", in)
		assert.Equal(t, filledDraft().Client, s.Draft.Client)
		assert.Empty(t, s.Draft.Selection)
		assert.Equal(t, ActionNone, r.Action)
	}
}

func TestSummaryRepromptsOnUnknownInput(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()
	s.State = StateSummary
	s.Draft = filledDraft()
	s.Draft.Quantities["hub_zigbee"] = 1
	before := s.Draft.clone()

	r := m.Step(s, "talvez")
	assert.Equal(t, StateSummary, s.State)
	assert.Equal(t, ActionNone, r.Action)
	assert.Contains(t, r.Reply, msgSummaryHelp)
	assert.Equal(t, before, s.Draft)
}

func TestSummaryWithUnpricedItemsGoesBackToSelection(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()
	s.State = StateMenu
	s.Draft = filledDraft()
	s.Draft.Selection = []string{"retired_sku"}
	s.Draft.Quantities = map[string]int{"retired_sku": 1}

	r := m.Step(s, "2")
	assert.Equal(t, StateSelectItems, s.State)
	assert.Contains(t, r.Reply, msgNoItemsLeft)
}

func TestSequentialMode(t *testing.T) {
	m := newMachine(Config{Mode: ModeSequential, AskNotes: true})
	s := newSession()

	drive(t, m, s, "1", "Maria Souza")
	r := m.Step(s, "maria@example.com")
	assert.Equal(t, StateQty, s.State)
	assert.Equal(t, catalog.Default().SKUs(), s.Draft.Selection)
	assert.Contains(t, r.Reply, "Lâmpada inteligente Wi-Fi")

	drive(t, m, s, "2", "0", "0", "0", "0", "0", "0", "0")
	assert.Equal(t, StateNotes, s.State)
	assert.Equal(t, []string{"lamp_smart"}, s.Draft.Selection)

	r = m.Step(s, "portão eletrônico")
	assert.Equal(t, StateSummary, s.State)
	assert.Contains(t, r.Reply, "Lâmpada inteligente Wi-Fi x2 = R$ 360.00")
	assert.Contains(t, r.Reply, "Total: R$ 504.00")

	m.Step(s, "editar")
	assert.Equal(t, StateQty, s.State)
	assert.Len(t, s.Draft.Selection, catalog.Default().Len())
}

func TestSequentialModeAllZeroStartsOver(t *testing.T) {
	m := newMachine(Config{Mode: ModeSequential})
	s := newSession()
	drive(t, m, s, "1", "Maria Souza", "maria@example.com")
	var r Result
	for i := 0; i < catalog.Default().Len(); i++ {
		r = m.Step(s, "0")
	}
	assert.Equal(t, StateQty, s.State)
	assert.Contains(t, r.Reply, msgNoItemsLeft)
	assert.Len(t, s.Draft.Selection, catalog.Default().Len())
}

func TestOptionalStepsDisabled(t *testing.T) {
	m := newMachine(Config{Mode: ModeMulti})
	s := newSession()
	drive(t, m, s, "1", "Maria Souza", "maria@example.com")
	assert.Equal(t, StateSelectItems, s.State)
	r := drive(t, m, s, "1", "2")
	assert.Equal(t, StateSummary, s.State)
	assert.Contains(t, r.Reply, "Total: R$ 504.00")
	assert.NotContains(t, r.Reply, "Telefone")
}

func TestEveryStateHasHandlerAndPrompt(t *testing.T) {
	m := newMachine(DefaultConfig())
	for _, st := range States() {
		s := newSession()
		s.State = st
		s.Draft = filledDraft()
		assert.NotEmptyf(t, m.Prompt(s), "state %s", st)
		r := m.Step(s, "???")
		assert.NotEmptyf(t, r.Reply, "state %s", st)
		assert.Truef(t, s.State.Valid(), "state %s", st)
	}
}

func TestInvalidStateRecovers(t *testing.T) {
	m := newMachine(DefaultConfig())
	s := newSession()
	s.State = State(200)
	r := m.Step(s, "1")
	assert.Equal(t, StateMenu, s.State)
	assert.Equal(t, msgMenu, r.Reply)
}
