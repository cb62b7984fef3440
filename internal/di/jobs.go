package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/config"
	"github.com/aristath/tender/internal/reliability"
	"github.com/aristath/tender/internal/scheduler"
)

// RegisterJobs creates the background jobs and schedules them
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	container.Scheduler = scheduler.New(container.EventManager, log)
	jobs := &JobInstances{
		Maintenance: reliability.NewDailyMaintenanceJob(
			container.DB,
			container.RunRepo,
			cfg.DataDir,
			cfg.Scheduler.RunRetentionDays,
			log,
		),
		Vacuum: reliability.NewWeeklyMaintenanceJob(container.DB, log),
	}
	if container.BackupService != nil {
		jobs.Backup = reliability.NewBackupJob(container.BackupService, log)
	}

	schedules := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Scheduler.MaintenanceSchedule, jobs.Maintenance},
		{cfg.Scheduler.VacuumSchedule, jobs.Vacuum},
		{cfg.Scheduler.BackupSchedule, jobs.Backup},
	}
	for _, s := range schedules {
		if s.job == nil {
			continue
		}
		if err := container.Scheduler.AddJob(s.schedule, s.job); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", s.job.Name(), err)
		}
	}

	return jobs, nil
}
