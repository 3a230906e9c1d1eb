package handlers

import (
	"log"
	"net/http"

	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"

	"github.com/Mahaseias/sendzap/internal/domain/messenger"
	"github.com/Mahaseias/sendzap/internal/domain/wizard"
)

const (
	msgTemporaryFailure = "Tivemos um problema ao processar sua mensagem. Tente novamente em instantes."

	TwilioSignatureHeader = "X-Twilio-Signature"
)

// WhatsAppWebhook takes Twilio's signed form post (From, Body, MessageSid) and
// answers with TwiML carrying the wizard's reply.
func (h *Handlers) WhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.Cfg.WhatsAppConfigured() {
		http.Error(w, "whatsapp not configured", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !h.validTwilioSignature(r) {
		log.Printf("whatsapp: signature rejected url=%s", h.webhookURL(r))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	sessionID := messenger.WhatsAppSession(r.PostForm.Get("From"))
	if sessionID == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}
	in := wizard.Inbound{
		SessionID: sessionID,
		MessageID: r.PostForm.Get("MessageSid"),
		Text:      r.PostForm.Get("Body"),
	}
	log.Printf("whatsapp: text received session_id=%s message_id=%s len=%d", sessionID, in.MessageID, len(in.Text))

	reply, err := h.Wizard.Handle(r.Context(), in)
	text := reply.Text
	if err != nil {
		log.Printf("whatsapp: handle failed session_id=%s err=%v", sessionID, err)
		text = msgTemporaryFailure
	}
	writeTwiML(w, text)
}

func (h *Handlers) validTwilioSignature(r *http.Request) bool {
	sig := r.Header.Get(TwilioSignatureHeader)
	if sig == "" {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	rv := client.NewRequestValidator(h.Cfg.TwilioAuthToken)
	return rv.Validate(h.webhookURL(r), params, sig)
}

// webhookURL is the URL Twilio signed: the configured public base when set,
// otherwise what the request itself says.
func (h *Handlers) webhookURL(r *http.Request) string {
	if h.Cfg.PublicBaseURL != "" {
		return h.Cfg.PublicBaseURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func writeTwiML(w http.ResponseWriter, text string) {
	body, err := twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: text}})
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}
