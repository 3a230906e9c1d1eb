package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Mahaseias/sendzap/internal/app/config"
	"github.com/Mahaseias/sendzap/internal/app/http/handlers"
	"github.com/Mahaseias/sendzap/internal/app/http/middleware"
)

// NewRouter mounts the webhooks, the internal API and /metrics. A nil
// metrics handler leaves /metrics unmounted.
func NewRouter(cfg config.Config, h *handlers.Handlers, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging)

	r.Get("/health", h.Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/v1", func(r chi.Router) {

		r.Post("/whatsapp/webhook", h.WhatsAppWebhook)
		r.Post("/telegram/webhook", h.TelegramWebhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.InternalAuth(cfg.InternalToken))

			r.Post("/quotes", h.CreateQuote)
			r.Get("/sessions/{id}", h.GetSession)
			r.Delete("/sessions/{id}", h.DeleteSession)
			r.Get("/proposals", h.ListProposals)
		})
	})

	return r
}
