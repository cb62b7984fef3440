// Package handlers provides HTTP handlers for stored allocation constraints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/domain"
	"github.com/aristath/tender/internal/events"
	"github.com/aristath/tender/internal/modules/allocation"
)

// ConstraintRequest is the body of POST /api/constraints. Kind accepts the
// same spellings as domain.ParseConstraintKind.
type ConstraintRequest struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	HandlerID string                 `json:"handler_id"`
	Value     float64                `json:"value"`
	Priority  float64                `json:"priority"`
	Facility  string                 `json:"facility"`
	Scope     domain.ConstraintScope `json:"scope"`
}

// Handler handles constraint HTTP requests
type Handler struct {
	repo         *allocation.Repository
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewHandler creates a new constraint handler. eventManager may be nil.
func NewHandler(repo *allocation.Repository, eventManager *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		repo:         repo,
		eventManager: eventManager,
		log:          log.With().Str("handler", "allocation").Logger(),
	}
}

// HandleListConstraints handles GET /api/constraints
func (h *Handler) HandleListConstraints(w http.ResponseWriter, r *http.Request) {
	var (
		constraints []allocation.StoredConstraint
		err         error
	)
	if handlerID := r.URL.Query().Get("handler"); handlerID != "" {
		constraints, err = h.repo.GetByHandler(handlerID)
	} else {
		constraints, err = h.repo.GetAll()
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list constraints")
		h.writeError(w, http.StatusInternalServerError, "Failed to list constraints")
		return
	}
	if constraints == nil {
		constraints = []allocation.StoredConstraint{}
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"constraints": constraints,
		"count":       len(constraints),
	})
}

// HandleGetConstraint handles GET /api/constraints/{id}
func (h *Handler) HandleGetConstraint(w http.ResponseWriter, r *http.Request) {
	c, err := h.repo.GetByID(chi.URLParam(r, "id"))
	if errors.Is(err, allocation.ErrConstraintNotFound) {
		h.writeError(w, http.StatusNotFound, "Constraint not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get constraint")
		h.writeError(w, http.StatusInternalServerError, "Failed to get constraint")
		return
	}

	h.writeData(w, http.StatusOK, c)
}

// HandleUpsertConstraint handles POST /api/constraints
func (h *Handler) HandleUpsertConstraint(w http.ResponseWriter, r *http.Request) {
	var req ConstraintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	kind, err := domain.ParseConstraintKind(req.Kind)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := h.repo.Upsert(domain.Constraint{
		ID:        req.ID,
		Kind:      kind,
		HandlerID: req.HandlerID,
		Value:     req.Value,
		Priority:  req.Priority,
		Facility:  req.Facility,
		Scope:     req.Scope,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("handler_id", req.HandlerID).Msg("Rejected constraint")
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.log.Info().
		Str("id", stored.ID).
		Str("kind", string(stored.Kind)).
		Str("handler_id", stored.HandlerID).
		Msg("Constraint saved")

	h.emitChanged(&events.ConstraintsChangedData{
		ConstraintID: stored.ID,
		HandlerID:    stored.HandlerID,
		Kind:         string(stored.Kind),
		Action:       "upserted",
	})

	h.writeData(w, http.StatusOK, stored)
}

// HandleDeleteConstraint handles DELETE /api/constraints/{id}
func (h *Handler) HandleDeleteConstraint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.repo.Delete(id)
	if errors.Is(err, allocation.ErrConstraintNotFound) {
		h.writeError(w, http.StatusNotFound, "Constraint not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to delete constraint")
		h.writeError(w, http.StatusInternalServerError, "Failed to delete constraint")
		return
	}

	h.emitChanged(&events.ConstraintsChangedData{ConstraintID: id, Action: "deleted"})
	h.writeData(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

func (h *Handler) emitChanged(data *events.ConstraintsChangedData) {
	if h.eventManager != nil {
		h.eventManager.EmitTyped("allocation", data)
	}
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
