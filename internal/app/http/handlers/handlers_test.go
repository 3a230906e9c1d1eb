package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mahaseias/sendzap/internal/app/config"
	"github.com/Mahaseias/sendzap/internal/app/http/handlers/webhooktest"
	"github.com/Mahaseias/sendzap/internal/domain/catalog"
	"github.com/Mahaseias/sendzap/internal/domain/proposal"
	"github.com/Mahaseias/sendzap/internal/domain/proposal/dispatch"
	"github.com/Mahaseias/sendzap/internal/domain/quote"
	"github.com/Mahaseias/sendzap/internal/domain/seller"
	"github.com/Mahaseias/sendzap/internal/domain/wizard"
	"github.com/Mahaseias/sendzap/internal/infra/db/memory"
	"github.com/Mahaseias/sendzap/internal/infra/mail/resend"
)

type fakeRenderer struct{ err error }

func (f fakeRenderer) Render(context.Context, proposal.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.3"), nil
}

const (
	twilioToken    = "tw_test"
	telegramSecret = "tg_secret"
)

type fixture struct {
	h     *Handlers
	store *memory.Store
}

func newFixture(t *testing.T, renderErr error) *fixture {
	t.Helper()
	cfg := config.Config{
		SessionBackend:        config.BackendMemory,
		CompanyName:           "Casa Conectada",
		TwilioAuthToken:       twilioToken,
		TelegramWebhookSecret: telegramSecret,
		Rules:                 quote.DefaultRules(),
		Wizard:                wizard.DefaultConfig(),
	}
	mailer, err := resend.New("", "", "", time.Second)
	require.NoError(t, err)
	store := memory.New(time.Hour)
	cat := catalog.Default()
	d := &dispatch.Dispatcher{
		Catalog:     cat,
		Rules:       cfg.Rules,
		CompanyName: cfg.CompanyName,
		Sellers: seller.NewDirectory(map[string]seller.Seller{
			"ana": {Name: "Ana", Email: "ana@casaconectada.com"},
		}),
		Renderer: fakeRenderer{err: renderErr},
		Mailer:   mailer,
		Log:      store,
	}
	svc := wizard.NewService(store, wizard.NewMachine(cat, cfg.Rules, cfg.Wizard), d, nil)
	return &fixture{h: New(cfg, svc, d, store), store: store}
}

func postForm(h http.HandlerFunc, form url.Values) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, webhooktest.WhatsApp(twilioToken, "/v1/whatsapp/webhook", form))
	return rec
}

func whatsapp(from, sid, body string) url.Values {
	return url.Values{"From": {from}, "Body": {body}, "MessageSid": {sid}}
}

func withParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestWhatsAppWebhookRepliesWithTwiML(t *testing.T) {
	f := newFixture(t, nil)

	rec := postForm(f.h.WhatsAppWebhook, whatsapp("whatsapp:+5511999990000", "SM1", "oi"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/xml")
	assert.Contains(t, rec.Body.String(), "<Response>")
	assert.Contains(t, rec.Body.String(), "<Message>")
	assert.Contains(t, rec.Body.String(), "Nova proposta")

	rec = postForm(f.h.WhatsAppWebhook, whatsapp("whatsapp:+5511999990000", "SM2", "1"))
	assert.Contains(t, rec.Body.String(), "Qual o nome do cliente?")

	sess, err := f.store.GetOrCreate(context.Background(), "wa:+5511999990000")
	require.NoError(t, err)
	assert.Equal(t, wizard.StateClientName, sess.State)
}

func TestWhatsAppWebhookReplaysRedelivery(t *testing.T) {
	f := newFixture(t, nil)
	from := "whatsapp:+5511999990000"
	postForm(f.h.WhatsAppWebhook, whatsapp(from, "SM1", "1"))

	first := postForm(f.h.WhatsAppWebhook, whatsapp(from, "SM2", "Maria Souza"))
	again := postForm(f.h.WhatsAppWebhook, whatsapp(from, "SM2", "Maria Souza"))
	assert.Equal(t, first.Body.String(), again.Body.String())

	sess, err := f.store.GetOrCreate(context.Background(), "wa:+5511999990000")
	require.NoError(t, err)
	assert.Equal(t, wizard.StateClientEmail, sess.State)
}

func TestWhatsAppWebhookRequiresSender(t *testing.T) {
	f := newFixture(t, nil)
	rec := postForm(f.h.WhatsAppWebhook, url.Values{"Body": {"oi"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWhatsAppWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t, nil)
	form := whatsapp("whatsapp:+5511999990000", "SM1", "oi")

	cases := map[string]*http.Request{
		"unsigned":    webhooktest.WhatsApp("", "/v1/whatsapp/webhook", form),
		"wrong token": webhooktest.WhatsApp("other", "/v1/whatsapp/webhook", form),
	}
	tampered := webhooktest.WhatsApp(twilioToken, "/v1/whatsapp/webhook", form)
	tampered.Body = io.NopCloser(strings.NewReader(whatsapp("whatsapp:+5511999990000", "SM1", "sim").Encode()))
	cases["tampered body"] = tampered

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			f.h.WhatsAppWebhook(rec, req)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
	assert.Equal(t, 0, f.store.Len())
}

func TestWhatsAppWebhookPublicBaseURL(t *testing.T) {
	f := newFixture(t, nil)
	f.h.Cfg.PublicBaseURL = "https://bot.example.com"
	form := whatsapp("whatsapp:+5511999990000", "SM1", "oi")

	rec := httptest.NewRecorder()
	f.h.WhatsAppWebhook(rec, webhooktest.WhatsApp(twilioToken, "/v1/whatsapp/webhook", form))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := webhooktest.WhatsApp("", "/v1/whatsapp/webhook", form)
	req.Header.Set(TwilioSignatureHeader, webhooktest.TwilioSignature(twilioToken, "https://bot.example.com/v1/whatsapp/webhook", form))
	rec = httptest.NewRecorder()
	f.h.WhatsAppWebhook(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWhatsAppWebhookNotConfigured(t *testing.T) {
	f := newFixture(t, nil)
	f.h.Cfg.TwilioAuthToken = ""
	rec := postForm(f.h.WhatsAppWebhook, whatsapp("whatsapp:+5511999990000", "SM1", "oi"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWhatsAppConversationSubmitsDryRun(t *testing.T) {
	f := newFixture(t, nil)
	from := "whatsapp:+5511999990000"
	inputs := []string{"1", "Maria Souza", "maria@example.com", "0", "1,8", "2", "1", "0"}
	for i, in := range inputs {
		postForm(f.h.WhatsAppWebhook, whatsapp(from, "SM"+string(rune('a'+i)), in))
	}
	rec := postForm(f.h.WhatsAppWebhook, whatsapp(from, "SMconfirm", "sim"))
	assert.Contains(t, rec.Body.String(), "modo de teste")

	recs, err := f.store.RecentProposals(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "wa:+5511999990000", recs[0].ConversationID)
}

type telegramAPI struct {
	mu   sync.Mutex
	path string
	sent []map[string]any
}

func (a *telegramAPI) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		a.mu.Lock()
		a.path = r.URL.Path
		a.sent = append(a.sent, body)
		a.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postTelegram(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	return postTelegramWithSecret(h, telegramSecret, body)
}

func postTelegramWithSecret(h http.HandlerFunc, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/telegram/webhook", strings.NewReader(body))
	if secret != "" {
		req.Header.Set(TelegramSecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestTelegramWebhookRepliesViaSendMessage(t *testing.T) {
	f := newFixture(t, nil)
	api := &telegramAPI{}
	f.h.Cfg.TelegramBotToken = "T0K"
	f.h.Cfg.TelegramBaseURL = api.server(t).URL

	rec := postTelegram(f.h.TelegramWebhook, `{"update_id":10,"message":{"message_id":1,"chat":{"id":42},"text":"1"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, api.sent, 1)
	assert.Equal(t, "/botT0K/sendMessage", api.path)
	assert.Equal(t, "42", api.sent[0]["chat_id"])
	assert.Equal(t, "Qual o nome do cliente?", api.sent[0]["text"])

	sess, err := f.store.GetOrCreate(context.Background(), "tg:42")
	require.NoError(t, err)
	assert.Equal(t, "10", sess.LastMessageID)
}

func TestTelegramWebhookNonText(t *testing.T) {
	f := newFixture(t, nil)
	api := &telegramAPI{}
	f.h.Cfg.TelegramBotToken = "T0K"
	f.h.Cfg.TelegramBaseURL = api.server(t).URL

	rec := postTelegram(f.h.TelegramWebhook, `{"update_id":11,"message":{"message_id":2,"chat":{"id":42}}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, api.sent, 1)
	assert.Equal(t, msgTextOnly, api.sent[0]["text"])

	rec = postTelegram(f.h.TelegramWebhook, `{"update_id":12}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, api.sent, 1)
}

func TestTelegramWebhookRejectsBadSecret(t *testing.T) {
	f := newFixture(t, nil)
	api := &telegramAPI{}
	f.h.Cfg.TelegramBotToken = "T0K"
	f.h.Cfg.TelegramBaseURL = api.server(t).URL
	body := `{"update_id":10,"message":{"message_id":1,"chat":{"id":42},"text":"1"}}`

	for _, secret := range []string{"", "tg_secreT", telegramSecret + "x"} {
		rec := postTelegramWithSecret(f.h.TelegramWebhook, secret, body)
		assert.Equal(t, http.StatusForbidden, rec.Code, "secret %q", secret)
	}
	assert.Empty(t, api.sent)
	assert.Equal(t, 0, f.store.Len())
}

func TestTelegramWebhookNotConfigured(t *testing.T) {
	f := newFixture(t, nil)
	rec := postTelegram(f.h.TelegramWebhook, `{"update_id":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.h.Cfg.TelegramBotToken = "T0K"
	f.h.Cfg.TelegramWebhookSecret = ""
	rec = postTelegram(f.h.TelegramWebhook, `{"update_id":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func postQuote(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/v1/quotes", strings.NewReader(body)))
	return rec
}

func TestCreateQuote(t *testing.T) {
	f := newFixture(t, nil)
	rec := postQuote(f.h.CreateQuote, `{
		"seller_id": "ana",
		"client": {"name": "Maria Souza", "email": "maria@example.com", "phone": "11 99999-0000"},
		"quantities": {"lamp_smart": 2, "hub_zigbee": 1},
		"notes": "sala e cozinha"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := rec.Body.String()
	assert.Contains(t, body, `"grand_total":1176.00`)
	assert.Contains(t, body, `"cash_total":1058.40`)
	assert.Contains(t, body, `"card_installment_value":392.00`)

	var resp CreateQuoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.False(t, resp.Sent)
	assert.True(t, resp.DryRun)
	assert.Equal(t, resend.ReasonNotConfigured, resp.Reason)
	assert.Equal(t, "maria@example.com", resp.SentTo)
	assert.Equal(t, "ana@casaconectada.com", resp.CC)
	assert.Equal(t, 2, resp.ItemsCount)
	assert.NotEmpty(t, resp.ProposalID)
	assert.Equal(t, "840.00", string(resp.Totals.MaterialTotal))
}

func TestCreateQuoteErrors(t *testing.T) {
	cases := map[string]struct {
		body      string
		renderErr error
		want      int
		contains  string
	}{
		"bad json":      {body: `{"client":`, want: http.StatusBadRequest, contains: "invalid json"},
		"bad email":     {body: `{"client":{"name":"Maria","email":"maria"},"quantities":{"lamp_smart":1}}`, want: http.StatusBadRequest, contains: "client.email"},
		"no items":      {body: `{"client":{"name":"Maria","email":"maria@example.com"},"quantities":{}}`, want: http.StatusBadRequest, contains: "items"},
		"unknown sku":   {body: `{"client":{"name":"Maria","email":"maria@example.com"},"quantities":{"robot":1}}`, want: http.StatusBadRequest, contains: "unknown sku"},
		"negative qty":  {body: `{"client":{"name":"Maria","email":"maria@example.com"},"quantities":{"lamp_smart":-1}}`, want: http.StatusBadRequest, contains: "quantity"},
		"render failed": {body: `{"client":{"name":"Maria","email":"maria@example.com"},"quantities":{"lamp_smart":1}}`, renderErr: errors.New("font missing"), want: http.StatusBadGateway, contains: "font missing"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, tc.renderErr)
			rec := postQuote(f.h.CreateQuote, tc.body)
			assert.Equal(t, tc.want, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.OK)
			assert.Contains(t, resp.Error, tc.contains)
		})
	}
}

func TestSessionAdmin(t *testing.T) {
	f := newFixture(t, nil)
	postForm(f.h.WhatsAppWebhook, whatsapp("whatsapp:+5511999990000", "SM1", "1"))

	req := withParam(httptest.NewRequest(http.MethodGet, "/v1/sessions/wa:+5511999990000", nil), "id", "wa:+5511999990000")
	rec := httptest.NewRecorder()
	f.h.GetSession(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Session struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"session"`
		Prompt string `json:"prompt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "wa:+5511999990000", got.Session.ID)
	assert.Equal(t, "CLIENT_NAME", got.Session.State)
	assert.Equal(t, "Qual o nome do cliente?", got.Prompt)

	req = withParam(httptest.NewRequest(http.MethodDelete, "/v1/sessions/wa:+5511999990000", nil), "id", "wa:+5511999990000")
	rec = httptest.NewRecorder()
	f.h.DeleteSession(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, f.store.Len())
}

func TestSessionAdminEmptyID(t *testing.T) {
	f := newFixture(t, nil)
	for _, h := range []http.HandlerFunc{f.h.GetSession, f.h.DeleteSession} {
		rec := httptest.NewRecorder()
		h(rec, withParam(httptest.NewRequest(http.MethodGet, "/v1/sessions/%20", nil), "id", " "))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestGetSessionRejectsForeignID(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.h.GetSession(rec, withParam(httptest.NewRequest(http.MethodGet, "/v1/sessions/api:ana", nil), "id", "api:ana"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProposals(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, f.store.RecordProposal(ctx, dispatch.Record{
			ID: id, ConversationID: "wa:+55", ClientEmail: "c@example.com", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rec := httptest.NewRecorder()
	f.h.ListProposals(rec, httptest.NewRequest(http.MethodGet, "/v1/proposals?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		OK        bool             `json:"ok"`
		Proposals []proposalRecord `json:"proposals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Proposals, 2)
	assert.Equal(t, "p3", got.Proposals[0].ID)
	assert.Equal(t, "p2", got.Proposals[1].ID)

	rec = httptest.NewRecorder()
	f.h.ListProposals(rec, httptest.NewRequest(http.MethodGet, "/v1/proposals?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.h.Proposals = nil
	rec = httptest.NewRecorder()
	f.h.ListProposals(rec, httptest.NewRequest(http.MethodGet, "/v1/proposals", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.JSONEq(t, `{"status":"ok","session_backend":"memory","mail":"dry_run"}`, string(body))

	f.h.Ready = func(context.Context) error { return errors.New("connection refused") }
	rec = httptest.NewRecorder()
	f.h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
