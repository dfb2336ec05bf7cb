package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/varsilias/siap-chat/internal/metrics"
)

func RegisterRoutes(mux chi.Router, h *Handlers) {
	mux.Get("/healthz", h.Health)
	mux.Get("/version", h.Version)
	mux.Handle("/metrics", metrics.Handler())

	mux.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.ListSessions)
		r.Post("/", h.CreateSession)
		r.Get("/{id}", h.GetSession)
		r.Post("/{id}/messages", h.PostMessage)
		r.Put("/{id}/settings", h.UpdateSettings)
	})
}
