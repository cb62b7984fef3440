package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tender/internal/database"
	"github.com/aristath/tender/internal/scheduler"
	"github.com/aristath/tender/internal/version"
)

// JobRunner lists and triggers scheduled jobs
type JobRunner interface {
	Jobs() []scheduler.JobInfo
	RunNow(name string) error
}

// SystemHandlers handles system monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	db          *database.DB
	jobs        JobRunner
	dataDir     string
	startupTime time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(db *database.DB, jobs JobRunner, dataDir string, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		db:          db,
		jobs:        jobs,
		dataDir:     dataDir,
		startupTime: time.Now(),
	}
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string              `json:"status"`
	Version       string              `json:"version"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	CPUPercent    float64             `json:"cpu_percent"`
	MemoryPercent float64             `json:"memory_percent"`
	Goroutines    int                 `json:"goroutines"`
	DiskFreeGB    float64             `json:"disk_free_gb"`
	Database      *database.Stats     `json:"database,omitempty"`
	Jobs          []scheduler.JobInfo `json:"jobs"`
}

// HandleHealth handles GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Conn().PingContext(ctx); err != nil {
		h.log.Error().Err(err).Msg("Health check failed")
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "database unavailable",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version.Version,
	})
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	resp := SystemStatusResponse{
		Status:        "healthy",
		Version:       version.Version,
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		Jobs:          []scheduler.JobInfo{},
	}

	if usage, err := disk.Usage(h.dataDir); err == nil {
		resp.DiskFreeGB = float64(usage.Free) / 1e9
	}

	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get database stats")
		resp.Status = "degraded"
	} else {
		resp.Database = stats
	}

	if h.jobs != nil {
		resp.Jobs = h.jobs.Jobs()
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleListJobs handles GET /api/system/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobInfo{}
	if h.jobs != nil {
		jobs = h.jobs.Jobs()
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// HandleTriggerJob handles POST /api/system/jobs/{name}.
// The job runs in the background; its outcome is published as job events.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.jobs == nil || !h.hasJob(name) {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found"})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")

	go func() {
		if err := h.jobs.RunNow(name); err != nil {
			if errors.Is(err, scheduler.ErrJobRunning) {
				h.log.Warn().Str("job", name).Msg("Manual trigger skipped, job already running")
				return
			}
			h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": name + " triggered",
	})
}

func (h *SystemHandlers) hasJob(name string) bool {
	for _, j := range h.jobs.Jobs() {
		if j.Name == name {
			return true
		}
	}
	return false
}

// getSystemStats samples CPU over 100ms and reads memory usage
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
