// Package handlers provides HTTP handlers for allocation runs.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/domain"
	"github.com/aristath/tender/internal/modules/optimization"
	"github.com/aristath/tender/internal/modules/snapshots"
	"github.com/aristath/tender/internal/modules/tracing"
)

// maxBodyBytes bounds run request bodies
const maxBodyBytes = 64 << 20

// Handler handles allocation run HTTP requests
type Handler struct {
	service *optimization.Service
	repo    *optimization.Repository
	log     zerolog.Logger
}

// NewHandler creates a new run handler
func NewHandler(service *optimization.Service, repo *optimization.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		repo:    repo,
		log:     log.With().Str("handler", "optimization").Logger(),
	}
}

// HandleRun handles POST /api/allocations/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req optimization.RunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		h.writeError(w, http.StatusBadRequest, "rows are required")
		return
	}

	result, err := h.service.Run(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidParams):
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, snapshots.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Baseline not found")
		return
	default:
		h.log.Error().Err(err).Msg("Allocation run failed")
		h.writeError(w, http.StatusInternalServerError, "Allocation run failed")
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// HandleListRuns handles GET /api/allocations/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.repo.List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		h.writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// HandleGetRun handles GET /api/allocations/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	h.writeData(w, http.StatusOK, run)
}

// HandleGetMovements handles GET /api/allocations/runs/{id}/movements.
// ?handler= narrows records to one handler; ?show_ids=true re-renders with unit id previews.
func (h *Handler) HandleGetMovements(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	handlerID := query.Get("handler")
	showIDs, _ := strconv.ParseBool(query.Get("show_ids"))
	opts := tracing.FormatOptions{MaxSources: tracing.DefaultMaxSources, ShowUnitIDs: showIDs}

	records := make([]domain.MovementRecord, 0, len(run.Movements.Records))
	formatted := make([]string, 0, len(run.Movements.Records))
	for i, rec := range run.Movements.Records {
		if handlerID != "" && !strings.EqualFold(rec.HandlerID, handlerID) {
			continue
		}
		records = append(records, rec)
		if showIDs || i >= len(run.Movements.Formatted) {
			formatted = append(formatted, tracing.Format(rec, opts))
		} else {
			formatted = append(formatted, run.Movements.Formatted[i])
		}
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"run_id":      run.ID,
		"baseline_id": run.BaselineID,
		"records":     records,
		"formatted":   formatted,
		"summary":     run.Movements.Summary,
		"duplicates":  run.Movements.Duplicates,
	})
}

// HandleGetSummary handles GET /api/allocations/runs/{id}/summary
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"run_id":      run.ID,
		"handlers":    run.Handlers,
		"stats":       run.Stats,
		"diagnostics": domain.CountByKind(run.Diagnostics),
	})
}

func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*optimization.RunResult, bool) {
	id := chi.URLParam(r, "id")
	run, err := h.repo.GetByID(id)
	if errors.Is(err, optimization.ErrRunNotFound) {
		h.writeError(w, http.StatusNotFound, "Run not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to load run")
		h.writeError(w, http.StatusInternalServerError, "Failed to load run")
		return nil, false
	}
	if run.Movements == nil {
		run.Movements = &tracing.Report{}
	}
	return run, true
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
