package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all constraint routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/constraints", func(r chi.Router) {
		r.Get("/", h.HandleListConstraints)
		r.Post("/", h.HandleUpsertConstraint)
		r.Get("/{id}", h.HandleGetConstraint)
		r.Delete("/{id}", h.HandleDeleteConstraint)
	})
}
