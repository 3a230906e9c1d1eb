package handlers

import (
	"context"
	"log"
	"net/http"
	"time"
)

type healthResponse struct {
	Status         string `json:"status"`
	SessionBackend string `json:"session_backend"`
	Mail           string `json:"mail"`
}

// Health pings the session backend when Ready is set.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", SessionBackend: h.Cfg.SessionBackend, Mail: "live"}
	if !h.Cfg.MailConfigured() {
		resp.Mail = "dry_run"
	}
	if h.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ready(ctx); err != nil {
			log.Printf("health: backend not ready backend=%s err=%v", h.Cfg.SessionBackend, err)
			resp.Status = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
