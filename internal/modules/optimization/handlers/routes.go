package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all allocation run routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/allocations", func(r chi.Router) {
		r.Post("/run", h.HandleRun)
		r.Get("/runs", h.HandleListRuns)
		r.Get("/runs/{id}", h.HandleGetRun)
		r.Get("/runs/{id}/movements", h.HandleGetMovements)
		r.Get("/runs/{id}/summary", h.HandleGetSummary)
	})
}
