package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Mahaseias/sendzap/internal/domain/messenger"
	"github.com/Mahaseias/sendzap/internal/domain/proposal/dispatch"
	"github.com/Mahaseias/sendzap/internal/domain/wizard"
)

type sessionResponse struct {
	Session *wizard.Session `json:"session"`
	Prompt  string          `json:"prompt"`
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id != "" && !messenger.IsMessengerSession(id) {
		writeError(w, http.StatusBadRequest, "session id must start with wa: or tg:")
		return
	}
	sess, err := h.Wizard.Session(r.Context(), id)
	if errors.Is(err, wizard.ErrEmptySessionID) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("sessions: get failed session_id=%s err=%v", id, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, Prompt: h.Wizard.Prompt(sess)})
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, wizard.ErrEmptySessionID.Error())
		return
	}
	if err := h.Wizard.Reset(r.Context(), id); err != nil {
		log.Printf("sessions: delete failed session_id=%s err=%v", id, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	log.Printf("sessions: reset session_id=%s", id)
	w.WriteHeader(http.StatusNoContent)
}

type proposalRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ClientEmail    string    `json:"client_email"`
	CreatedAt      time.Time `json:"created_at"`
}

func (h *Handlers) ListProposals(w http.ResponseWriter, r *http.Request) {
	if h.Proposals == nil {
		writeError(w, http.StatusNotFound, "proposal log not available")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	recs, err := h.Proposals.RecentProposals(r.Context(), limit)
	if err != nil {
		log.Printf("proposals: list failed err=%v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]proposalRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toProposalRecord(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "proposals": out})
}

func toProposalRecord(rec dispatch.Record) proposalRecord {
	return proposalRecord{
		ID:             rec.ID,
		ConversationID: rec.ConversationID,
		ClientEmail:    rec.ClientEmail,
		CreatedAt:      rec.CreatedAt.UTC(),
	}
}
