// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/events"
)

var (
	// ErrJobNotFound is returned by RunNow for an unregistered job
	ErrJobNotFound = errors.New("job not found")
	// ErrJobRunning is returned when a job is triggered while a previous run is in flight
	ErrJobRunning = errors.New("job already running")
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobInfo describes a registered job
type JobInfo struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev,omitempty"`
}

type entry struct {
	job      Job
	schedule string
	id       cron.EntryID
	running  sync.Mutex
}

// Scheduler manages background jobs
type Scheduler struct {
	cron         *cron.Cron
	eventManager *events.Manager
	mu           sync.RWMutex
	jobs         map[string]*entry
	log          zerolog.Logger
}

// New creates a new scheduler. Schedules take a leading seconds field.
func New(eventManager *events.Manager, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cron:         cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger{log}))),
		eventManager: eventManager,
		jobs:         make(map[string]*entry),
		log:          log,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "0 0 3 * * *"        - 3 AM daily
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}

	e := &entry{job: job, schedule: schedule}
	id, err := s.cron.AddFunc(schedule, func() {
		if err := s.execute(e); err != nil && !errors.Is(err, ErrJobRunning) {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, job.Name(), err)
	}
	e.id = id
	s.jobs[job.Name()] = e

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a registered job immediately (outside schedule)
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.execute(e)
}

// Jobs lists registered jobs by name
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, e := range s.jobs {
		ce := s.cron.Entry(e.id)
		infos = append(infos, JobInfo{
			Name:     name,
			Schedule: e.schedule,
			Next:     ce.Next,
			Prev:     ce.Prev,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// execute runs a job at most once at a time, emitting lifecycle events
func (s *Scheduler) execute(e *entry) error {
	if !e.running.TryLock() {
		s.log.Warn().Str("job", e.job.Name()).Msg("Job still running, skipping")
		return fmt.Errorf("%w: %s", ErrJobRunning, e.job.Name())
	}
	defer e.running.Unlock()

	jobID := uuid.NewString()
	start := time.Now()
	s.emit(&events.JobStatusData{JobID: jobID, JobType: e.job.Name(), Status: "started", Timestamp: start})
	s.log.Debug().Str("job", e.job.Name()).Msg("Running job")

	err := e.job.Run()

	status := &events.JobStatusData{
		JobID:     jobID,
		JobType:   e.job.Name(),
		Status:    "completed",
		Duration:  time.Since(start).Seconds(),
		Timestamp: time.Now(),
	}
	if err != nil {
		status.Status = "failed"
		status.Error = err.Error()
	} else {
		s.log.Debug().Str("job", e.job.Name()).Msg("Job completed")
	}
	s.emit(status)

	return err
}

func (s *Scheduler) emit(data *events.JobStatusData) {
	if s.eventManager != nil {
		s.eventManager.EmitTyped("scheduler", data)
	}
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
