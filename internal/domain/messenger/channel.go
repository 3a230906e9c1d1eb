package messenger

import (
	"strconv"
	"strings"
)

const (
	PrefixWhatsApp = "wa:"
	PrefixTelegram = "tg:"
)

func IsMessengerSession(sessionID string) bool {
	sid := strings.ToLower(strings.TrimSpace(sessionID))
	return strings.HasPrefix(sid, PrefixTelegram) || strings.HasPrefix(sid, PrefixWhatsApp)
}

// WhatsAppSession turns a transport sender such as "whatsapp:+5511999990000"
// into the conversation identifier "wa:+5511999990000".
func WhatsAppSession(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	lower := strings.ToLower(from)
	switch {
	case strings.HasPrefix(lower, "whatsapp:"):
		from = from[len("whatsapp:"):]
	case strings.HasPrefix(lower, PrefixWhatsApp):
		from = from[len(PrefixWhatsApp):]
	}
	from = strings.ReplaceAll(strings.TrimSpace(from), " ", "")
	if from == "" {
		return ""
	}
	return PrefixWhatsApp + from
}

func TelegramSession(chatID int64) string {
	return PrefixTelegram + strconv.FormatInt(chatID, 10)
}

// Address strips the channel prefix, e.g. "wa:+55.." -> "+55..".
func Address(sessionID string) string {
	sid := strings.TrimSpace(sessionID)
	lower := strings.ToLower(sid)
	if strings.HasPrefix(lower, PrefixWhatsApp) || strings.HasPrefix(lower, PrefixTelegram) {
		return sid[3:]
	}
	return sid
}
