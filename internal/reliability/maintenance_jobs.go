package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/tender/internal/database"
)

// RunPruner deletes stored allocation runs created before a cutoff
type RunPruner interface {
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

const (
	criticalFreeBytes = 500 << 20
	lowFreeBytes      = 5 << 30
)

// DailyMaintenanceJob checks integrity, checkpoints the WAL, prunes old runs and watches disk space
type DailyMaintenanceJob struct {
	db            *database.DB
	runs          RunPruner
	dataDir       string
	retentionDays int
	now           func() time.Time
	log           zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job
func NewDailyMaintenanceJob(db *database.DB, runs RunPruner, dataDir string, retentionDays int, log zerolog.Logger) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		db:            db,
		runs:          runs,
		dataDir:       dataDir,
		retentionDays: retentionDays,
		now:           time.Now,
		log:           log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *DailyMaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the daily maintenance job
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("CRITICAL: Database integrity check failed")
		return fmt.Errorf("integrity check failed: %w", err)
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		// Not critical, the autocheckpoint catches up
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if j.runs != nil && j.retentionDays > 0 {
		cutoff := j.now().AddDate(0, 0, -j.retentionDays)
		deleted, err := j.runs.DeleteOlderThan(cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune runs: %w", err)
		}
		j.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Pruned old allocation runs")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed successfully")

	return nil
}

// checkDiskSpace fails below criticalFreeBytes and warns below lowFreeBytes
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to read disk usage")
		return nil
	}

	availableGB := float64(usage.Free) / 1e9
	switch {
	case usage.Free < criticalFreeBytes:
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.2f GB free in %s", availableGB, j.dataDir)
	case usage.Free < lowFreeBytes:
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	default:
		j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")
	}
	return nil
}

// WeeklyMaintenanceJob vacuums the database
type WeeklyMaintenanceJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewWeeklyMaintenanceJob creates a new weekly maintenance job
func NewWeeklyMaintenanceJob(db *database.DB, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{
		db:  db,
		log: log.With().Str("job", "vacuum").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *WeeklyMaintenanceJob) Name() string {
	return "vacuum"
}

// Run executes the weekly maintenance job
func (j *WeeklyMaintenanceJob) Run() error {
	before, err := j.db.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	if err := j.db.Vacuum(); err != nil {
		return err
	}

	after, err := j.db.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	j.log.Info().
		Int64("size_before", before.SizeBytes).
		Int64("size_after", after.SizeBytes).
		Int64("freed_pages", before.FreelistCount-after.FreelistCount).
		Msg("Vacuum completed")

	return nil
}

// BackupJob runs BackupService on a schedule
type BackupJob struct {
	service *BackupService
	timeout time.Duration
	log     zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		timeout: 30 * time.Minute,
		log:     log.With().Str("job", "database_backup").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string {
	return "database_backup"
}

// Run executes the backup job
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.service.CreateAndUploadBackup(ctx)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	j.log.Info().Str("archive", result.Filename).Msg("Scheduled backup uploaded")
	return nil
}
