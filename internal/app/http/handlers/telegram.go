package handlers

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/Mahaseias/sendzap/internal/domain/messenger"
	"github.com/Mahaseias/sendzap/internal/domain/wizard"
)

type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message,omitempty"`
}

type telegramMessage struct {
	MessageID int64        `json:"message_id"`
	Chat      telegramChat `json:"chat"`
	Text      string       `json:"text,omitempty"`
}

type telegramChat struct {
	ID int64 `json:"id"`
}

const (
	msgTextOnly = "Por enquanto só entendo mensagens de texto."

	// TelegramSecretHeader carries the secret_token given to setWebhook.
	TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// TelegramWebhook drives the same wizard as WhatsApp. The reply goes back
// through sendMessage; Telegram only needs a 200 on the webhook itself.
func (h *Handlers) TelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if h.Cfg.TelegramBotToken == "" || h.Cfg.TelegramWebhookSecret == "" {
		http.Error(w, "telegram not configured", http.StatusBadRequest)
		return
	}
	got := r.Header.Get(TelegramSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.Cfg.TelegramWebhookSecret)) != 1 {
		log.Printf("telegram: secret token rejected")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	var upd telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if upd.Message == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	msg := upd.Message
	sessionID := messenger.TelegramSession(msg.Chat.ID)
	if strings.TrimSpace(msg.Text) == "" {
		log.Printf("telegram: message ignored chat_id=%d", msg.Chat.ID)
		h.sendTelegramText(r.Context(), sessionID, msgTextOnly)
		w.WriteHeader(http.StatusOK)
		return
	}

	log.Printf("telegram: text received chat_id=%d update_id=%d len=%d", msg.Chat.ID, upd.UpdateID, len(msg.Text))
	reply, err := h.Wizard.Handle(r.Context(), wizard.Inbound{
		SessionID: sessionID,
		MessageID: strconv.FormatInt(upd.UpdateID, 10),
		Text:      msg.Text,
	})
	text := reply.Text
	if err != nil {
		log.Printf("telegram: handle failed session_id=%s err=%v", sessionID, err)
		text = msgTemporaryFailure
	}
	h.sendTelegramText(r.Context(), sessionID, text)
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) sendTelegramText(ctx context.Context, sessionID, text string) {
	if text == "" {
		return
	}
	base := strings.TrimRight(h.Cfg.TelegramBaseURL, "/")
	urlStr := fmt.Sprintf("%s/bot%s/sendMessage", base, h.Cfg.TelegramBotToken)
	payload := map[string]any{
		"chat_id": messenger.Address(sessionID),
		"text":    text,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(body))
	if err != nil {
		log.Printf("telegram: sendMessage request failed session_id=%s err=%v", sessionID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.HTTP.Do(req)
	if err != nil {
		log.Printf("telegram: sendMessage failed session_id=%s err=%v", sessionID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		log.Printf("telegram: sendMessage status=%d session_id=%s body=%s", resp.StatusCode, sessionID, strings.TrimSpace(string(msg)))
	}
}
