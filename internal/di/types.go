// Package di wires the application's dependencies.
package di

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aristath/tender/internal/database"
	"github.com/aristath/tender/internal/events"
	"github.com/aristath/tender/internal/metrics"
	"github.com/aristath/tender/internal/modules/allocation"
	"github.com/aristath/tender/internal/modules/optimization"
	"github.com/aristath/tender/internal/modules/snapshots"
	"github.com/aristath/tender/internal/reliability"
	"github.com/aristath/tender/internal/scheduler"
	"github.com/aristath/tender/internal/workers"
)

// Container holds all dependencies for the application.
// It is created by Wire and passed to the server.
type Container struct {
	DB *database.DB

	EventBus     *events.Bus
	EventManager *events.Manager

	MetricsRegistry *prometheus.Registry
	Metrics         metrics.Recorder

	WorkerPool *workers.Pool

	// Repositories
	ConstraintRepo *allocation.Repository
	SnapshotRepo   *snapshots.Repository
	RunRepo        *optimization.Repository

	// Services
	SnapshotService     *snapshots.Service
	OptimizationService *optimization.Service
	BackupService       *reliability.BackupService // nil when S3 backups are not configured

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered background jobs
type JobInstances struct {
	Backup      scheduler.Job // nil when S3 backups are not configured
	Maintenance scheduler.Job
	Vacuum      scheduler.Job
}

// Close releases the container's resources
func (c *Container) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
