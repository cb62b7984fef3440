// Package handlers provides HTTP handlers for baseline snapshot operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/modules/grouping"
	"github.com/aristath/tender/internal/modules/snapshots"
)

// CaptureRequest is the body of POST /api/snapshots
type CaptureRequest struct {
	Label string            `json:"label"`
	Rows  []grouping.RawRow `json:"rows"`
}

// Handler handles snapshot HTTP requests
type Handler struct {
	service *snapshots.Service
	log     zerolog.Logger
}

// NewHandler creates a new snapshot handler
func NewHandler(service *snapshots.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleCapture handles POST /api/snapshots
func (h *Handler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		h.writeError(w, http.StatusBadRequest, "rows are required")
		return
	}

	result, err := h.service.Capture(req.Label, req.Rows)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to capture baseline")
		h.writeError(w, http.StatusInternalServerError, "Failed to capture baseline")
		return
	}

	h.writeData(w, http.StatusCreated, result)
}

// HandleList handles GET /api/snapshots
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	infos, err := h.service.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list snapshots")
		h.writeError(w, http.StatusInternalServerError, "Failed to list snapshots")
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"snapshots": infos,
		"count":     len(infos),
	})
}

// HandleGet handles GET /api/snapshots/{id}. The id "latest" resolves to the newest snapshot.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Get(chi.URLParam(r, "id"))
	if errors.Is(err, snapshots.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Snapshot not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load snapshot")
		h.writeError(w, http.StatusInternalServerError, "Failed to load snapshot")
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"id":          snapshot.ID(),
		"label":       snapshot.Label(),
		"captured_at": snapshot.CapturedAt(),
		"unit_count":  snapshot.UnitCount(),
		"groups":      snapshot.Groups(),
	})
}

// HandleDelete handles DELETE /api/snapshots/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.service.Delete(id)
	if errors.Is(err, snapshots.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Snapshot not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to delete snapshot")
		h.writeError(w, http.StatusInternalServerError, "Failed to delete snapshot")
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{"deleted": id})
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
