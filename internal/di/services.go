package di

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/config"
	"github.com/aristath/tender/internal/events"
	"github.com/aristath/tender/internal/metrics"
	"github.com/aristath/tender/internal/modules/optimization"
	"github.com/aristath/tender/internal/modules/snapshots"
	"github.com/aristath/tender/internal/reliability"
	"github.com/aristath/tender/internal/workers"
)

// InitializeServices creates the event system, metrics and domain services
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	container.MetricsRegistry = prometheus.NewRegistry()
	container.MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	container.Metrics = metrics.NewPrometheus(container.MetricsRegistry, "tender")

	container.WorkerPool = workers.NewPool(cfg.Allocation.Workers)

	container.SnapshotService = snapshots.NewService(container.SnapshotRepo, container.EventManager, log)

	container.OptimizationService = optimization.NewService(
		container.RunRepo,
		container.ConstraintRepo,
		container.SnapshotService,
		container.WorkerPool,
		cfg.Allocation.Params(),
		container.EventManager,
		container.Metrics,
		log,
	)

	if cfg.Backup.Enabled() {
		client, err := reliability.NewS3Client(ctx, cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create s3 client: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			container.DB,
			client,
			cfg.DataDir,
			cfg.Backup.Retention,
			container.EventManager,
			log,
		)
		log.Info().Str("bucket", client.Bucket()).Msg("S3 backups enabled")
	} else {
		log.Info().Msg("S3 backups disabled (S3_BUCKET not set)")
	}

	return nil
}
