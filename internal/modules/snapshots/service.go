package snapshots

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/domain"
	"github.com/aristath/tender/internal/events"
	"github.com/aristath/tender/internal/modules/grouping"
)

// CaptureResult is a stored snapshot plus what grouping reported on the way in
type CaptureResult struct {
	Info        Info                `json:"snapshot"`
	Diagnostics []domain.Diagnostic `json:"diagnostics,omitempty"`
}

// Service captures baselines from raw rows
type Service struct {
	repo         *Repository
	builder      *grouping.Builder
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewService creates a snapshot service. eventManager may be nil.
func NewService(repo *Repository, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		builder:      grouping.NewBuilder(log),
		eventManager: eventManager,
		log:          log.With().Str("service", "snapshots").Logger(),
	}
}

// Capture groups rows into a baseline and stores it. Duplicate units are dropped
// under the zero-sum rule and reported as diagnostics.
func (s *Service) Capture(label string, rows []grouping.RawRow) (*CaptureResult, error) {
	typed, diags := s.builder.Decode(rows)
	grouped := s.builder.Build(typed)
	diags = append(diags, grouped.Diagnostics...)

	snapshot := domain.BaselineFromGroups(uuid.NewString(), label, time.Now().UTC(), grouped.Groups)
	if err := s.repo.Create(snapshot, grouped.Duplicates); err != nil {
		return nil, err
	}

	info := Info{
		ID:         snapshot.ID(),
		Label:      snapshot.Label(),
		CapturedAt: snapshot.CapturedAt(),
		Groups:     snapshot.Len(),
		Units:      snapshot.UnitCount(),
		Duplicates: grouped.Duplicates,
	}

	s.log.Info().
		Str("id", info.ID).
		Str("label", label).
		Int("groups", info.Groups).
		Int("units", info.Units).
		Int("duplicates", info.Duplicates).
		Msg("Baseline captured")

	if s.eventManager != nil {
		s.eventManager.EmitTyped("snapshots", &events.BaselineCapturedData{
			BaselineID: info.ID,
			Label:      info.Label,
			Groups:     info.Groups,
			Units:      info.Units,
		})
	}

	return &CaptureResult{Info: info, Diagnostics: diags}, nil
}

// Get loads a snapshot by id, or the latest one when id is "latest"
func (s *Service) Get(id string) (*domain.BaselineSnapshot, error) {
	if id == "latest" {
		return s.repo.Latest()
	}
	return s.repo.GetByID(id)
}

// List returns snapshot metadata, newest first
func (s *Service) List() ([]Info, error) {
	return s.repo.List()
}

// Delete removes a snapshot
func (s *Service) Delete(id string) error {
	if err := s.repo.Delete(id); err != nil {
		return err
	}
	if s.eventManager != nil {
		s.eventManager.EmitTyped("snapshots", &events.BaselineCapturedData{BaselineID: id, Deleted: true})
	}
	return nil
}
