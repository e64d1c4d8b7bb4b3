package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lynsa/outreach-backend/internal/mailer"
	"github.com/lynsa/outreach-backend/internal/notify"
	"github.com/lynsa/outreach-backend/internal/store"
	"github.com/lynsa/outreach-backend/internal/vault"
)

// NewRouter wires all HTTP routes. verifier may be nil to use the default
// payment reference check.
func NewRouter(st *store.Store, messenger *mailer.Messenger, v vault.Vault, hub *notify.Hub, verifier PaymentVerifier) *chi.Mux {
	outreach := NewOutreachHandler(st, messenger, verifier)
	files := NewFilesHandler(v)
	ws := NewWebSocketHandler(hub)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/outreach", outreach.Send)
		r.Get("/outreach/{correlationId}/status", outreach.Status)
		r.Get("/outreach/{correlationId}/reply-attachment", outreach.ReplyAttachment)
		r.Get("/outreach/user/{userID}", outreach.History)
		r.Get("/ws", ws.Handle)
		r.Get("/healthz", Healthz)
	})

	r.Get("/files/{handle}", files.Get)

	return r
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	WriteJSONResponse(w, map[string]string{"status": "ok"})
}
