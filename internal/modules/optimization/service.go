package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/domain"
	"github.com/aristath/tender/internal/events"
	"github.com/aristath/tender/internal/metrics"
	"github.com/aristath/tender/internal/modules/allocation"
	"github.com/aristath/tender/internal/modules/grouping"
	"github.com/aristath/tender/internal/modules/history"
	"github.com/aristath/tender/internal/modules/rounding"
	"github.com/aristath/tender/internal/modules/tracing"
	"github.com/aristath/tender/internal/workers"
)

// ConstraintSource provides the stored constraints used when a request brings none
type ConstraintSource interface {
	Active() ([]domain.Constraint, error)
}

// BaselineSource loads stored baselines by id ("latest" for the newest)
type BaselineSource interface {
	Get(id string) (*domain.BaselineSnapshot, error)
}

// RunStore persists completed runs
type RunStore interface {
	Save(run *RunResult) error
}

// Service runs allocations. Each run is an independent computation; the service
// holds no per-run state and is safe for concurrent use.
type Service struct {
	store        RunStore
	constraints  ConstraintSource
	baselines    BaselineSource
	pool         *workers.Pool
	defaults     domain.Params
	eventManager *events.Manager
	metrics      metrics.Recorder
	now          func() time.Time
	log          zerolog.Logger
}

// NewService creates the run service. constraints, baselines, eventManager and
// recorder may be nil.
func NewService(
	store RunStore,
	constraints ConstraintSource,
	baselines BaselineSource,
	pool *workers.Pool,
	defaults domain.Params,
	eventManager *events.Manager,
	recorder metrics.Recorder,
	log zerolog.Logger,
) *Service {
	if pool == nil {
		pool = workers.NewPool(0)
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		store:        store,
		constraints:  constraints,
		baselines:    baselines,
		pool:         pool,
		defaults:     defaults,
		eventManager: eventManager,
		metrics:      recorder,
		now:          time.Now,
		log:          log.With().Str("service", "optimization").Logger(),
	}
}

// Run executes the full pipeline for req and stores the result.
// Invalid params wrap domain.ErrInvalidParams. A cancelled ctx abandons the run.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := s.now()
	runID := uuid.NewString()

	params := req.Params.Apply(s.defaults)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	rounder, err := rounding.ForKind(rounding.Kind(params.Rounding))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidParams, err)
	}
	if params.CurrentPeriod == 0 {
		_, week := start.ISOWeek()
		params.CurrentPeriod = week
	}

	s.emit(&events.RunCompletedData{RunID: runID, Status: "started", Strategy: string(params.Strategy)})

	result, err := s.run(ctx, runID, start, params, rounder, req)
	if err != nil {
		s.emit(&events.RunCompletedData{RunID: runID, Status: "failed", Strategy: string(params.Strategy), Error: err.Error()})
		return nil, err
	}

	if s.store != nil {
		if err := s.store.Save(result); err != nil {
			s.emit(&events.RunCompletedData{RunID: runID, Status: "failed", Strategy: string(params.Strategy), Error: err.Error()})
			return nil, fmt.Errorf("failed to store run: %w", err)
		}
	}

	s.metrics.ObserveRun(metrics.RunMetrics{
		Strategy:       params.Strategy,
		Duration:       time.Duration(result.Stats.DurationMs) * time.Millisecond,
		Groups:         result.Stats.Groups,
		OverflowGroups: result.Stats.OverflowGroups,
		Units:          result.Stats.Allocated,
		Diagnostics:    domain.CountByKind(result.Diagnostics),
	})

	s.emit(&events.RunCompletedData{
		RunID:           runID,
		Status:          "completed",
		Strategy:        string(params.Strategy),
		BaselineID:      result.BaselineID,
		Groups:          result.Stats.Groups,
		Units:           result.Stats.Units,
		OverflowGroups:  result.Stats.OverflowGroups,
		Diagnostics:     len(result.Diagnostics),
		MovedPct:        result.Movements.Summary.MovedPct,
		DurationSeconds: float64(result.Stats.DurationMs) / 1000,
	})

	s.log.Info().
		Str("run_id", runID).
		Str("strategy", string(params.Strategy)).
		Int("groups", result.Stats.Groups).
		Int("units", result.Stats.Units).
		Int("overflow_groups", result.Stats.OverflowGroups).
		Int("diagnostics", len(result.Diagnostics)).
		Int64("duration_ms", result.Stats.DurationMs).
		Msg("Allocation run completed")

	return result, nil
}

func (s *Service) run(
	ctx context.Context,
	runID string,
	start time.Time,
	params domain.Params,
	rounder rounding.Strategy,
	req RunRequest,
) (*RunResult, error) {
	builder := grouping.NewBuilder(s.log)
	rows, diags := builder.Decode(req.Rows)
	grouped := builder.Build(rows)
	diags = append(diags, grouped.Diagnostics...)
	groups := grouped.Groups

	baseline, err := s.resolveBaseline(req.BaselineID, start, groups)
	if err != nil {
		return nil, err
	}
	diags = append(diags, builder.ApplyOffers(groups, req.Offers)...)

	constraints, constraintDiags, err := s.resolveConstraints(req.Constraints)
	if err != nil {
		return nil, err
	}
	diags = append(diags, constraintDiags...)

	shares := history.NewCalculator(s.log).Compute(req.History, params.CurrentPeriod, params.LookbackPeriods)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run %s cancelled: %w", runID, err)
	}

	allocator := allocation.NewAllocator(params, rounder, s.log)
	outcomes, failures, err := workers.Map(ctx, s.pool, groups, func(g domain.Group) allocation.GroupOutcome {
		return allocator.Allocate(g, shares, constraints)
	})
	if err != nil {
		return nil, fmt.Errorf("run %s cancelled: %w", runID, err)
	}

	for _, f := range failures {
		g := groups[f.Index]
		outcomes[f.Index] = failedOutcome(g, f)
		s.log.Error().
			Str("run_id", runID).
			Str("group", g.Key.String()).
			Interface("panic", f.Recovered).
			Str("stack", f.Stack).
			Msg("Group allocation panicked")
	}

	result := &RunResult{
		ID:            runID,
		CreatedAt:     start.UTC(),
		BaselineID:    baseline.ID(),
		Params:        params,
		HistoryWindow: shares.Periods,
		Groups:        outcomes,
		Trends:        shares.Trends(),
	}

	results := result.Results()
	maxSources := req.MaxSources
	if maxSources <= 0 {
		maxSources = tracing.DefaultMaxSources
	}
	tracer := tracing.NewTracer(tracing.FormatOptions{MaxSources: maxSources, ShowUnitIDs: req.ShowUnitIDs}, s.log)
	result.Movements = tracer.Trace(results, baseline)
	result.Handlers = allocation.Summarize(groups, results)

	for _, o := range outcomes {
		diags = append(diags, o.Diagnostics...)
	}
	diags = append(diags, result.Movements.Diagnostics...)
	if diags == nil {
		diags = []domain.Diagnostic{}
	}
	result.Diagnostics = diags

	stats := RunStats{
		Groups:       len(groups),
		Duplicates:   grouped.Duplicates,
		Constraints:  len(constraints),
		FailedGroups: len(failures),
	}
	for _, r := range results {
		stats.Units += r.Total
		stats.Allocated += r.Allocated()
		stats.Unallocated += len(r.Unallocated)
		if r.Overflow {
			stats.OverflowGroups++
		}
	}
	stats.DurationMs = s.now().Sub(start).Milliseconds()
	result.Stats = stats

	return result, nil
}

// resolveConstraints returns the request's constraints, or the stored ones when it has none.
// Invalid constraints are dropped with a constraint_skipped diagnostic.
func (s *Service) resolveConstraints(requested []domain.Constraint) ([]domain.Constraint, []domain.Diagnostic, error) {
	source := requested
	if source == nil && s.constraints != nil {
		stored, err := s.constraints.Active()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load stored constraints: %w", err)
		}
		source = stored
	}

	var (
		valid []domain.Constraint
		diags []domain.Diagnostic
	)
	for i, c := range source {
		if c.ID == "" {
			c.ID = fmt.Sprintf("c%d", i+1)
		}
		if err := c.Validate(); err != nil {
			d := domain.NewDiagnostic(domain.DiagnosticConstraintSkipped, nil, "invalid constraint: %v", err)
			d.ConstraintID = c.ID
			d.HandlerID = c.HandlerID
			diags = append(diags, d)
			continue
		}
		valid = append(valid, c)
	}
	return valid, diags, nil
}

func (s *Service) resolveBaseline(id string, at time.Time, groups []domain.Group) (*domain.BaselineSnapshot, error) {
	if id == "" || id == InputBaselineID {
		return domain.BaselineFromGroups(InputBaselineID, "input rows", at.UTC(), groups), nil
	}
	if s.baselines == nil {
		return nil, fmt.Errorf("failed to load baseline %s: no baseline store", id)
	}
	baseline, err := s.baselines.Get(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline %s: %w", id, err)
	}
	return baseline, nil
}

func (s *Service) emit(data *events.RunCompletedData) {
	if s.eventManager != nil {
		s.eventManager.EmitTyped("optimization", data)
	}
}

// failedOutcome stands in for a group whose allocation panicked: nothing is
// placed and every unit is reported as unallocated.
func failedOutcome(g domain.Group, f workers.Failure) allocation.GroupOutcome {
	key := g.Key
	return allocation.GroupOutcome{
		Result: domain.AllocationResult{
			Key:         key,
			Total:       g.Total(),
			Handlers:    []domain.HandlerAllocation{},
			Unallocated: g.UnitIDs(),
		},
		Diagnostics: []domain.Diagnostic{
			domain.NewDiagnostic(domain.DiagnosticGroupFailed, &key, "allocation failed: %v", f.Recovered),
		},
	}
}
