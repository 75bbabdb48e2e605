package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Post("/query", h.HandleQuery)
	r.Get("/stream/{session_id}", h.HandleStream)
	r.Get("/health", h.HandleHealth)
}
