package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/Mahaseias/sendzap/internal/app/config"
	"github.com/Mahaseias/sendzap/internal/domain/proposal/dispatch"
	"github.com/Mahaseias/sendzap/internal/domain/wizard"
)

// Handlers serves the chat webhooks and the internal API. Proposals may be
// nil when the configured backend keeps no proposal log.
type Handlers struct {
	Cfg       config.Config
	HTTP      *http.Client
	Wizard    *wizard.Service
	Quotes    wizard.Submitter
	Proposals dispatch.Lister
	Ready     func(ctx context.Context) error
}

func New(cfg config.Config, svc *wizard.Service, quotes wizard.Submitter, proposals dispatch.Lister) *Handlers {
	return &Handlers{
		Cfg:       cfg,
		Wizard:    svc,
		Quotes:    quotes,
		Proposals: proposals,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response failed err=%v", err)
	}
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{OK: false, Error: msg})
}
