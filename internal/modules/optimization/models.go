// Package optimization runs the allocation pipeline over every group of a request
// and keeps the resulting runs.
package optimization

import (
	"time"

	"github.com/aristath/tender/internal/domain"
	"github.com/aristath/tender/internal/modules/allocation"
	"github.com/aristath/tender/internal/modules/grouping"
	"github.com/aristath/tender/internal/modules/history"
	"github.com/aristath/tender/internal/modules/tracing"
)

// InputBaselineID marks a run traced against the holders in its own input rows
const InputBaselineID = "input"

// ParamsOverride replaces individual default params. nil fields keep the default.
type ParamsOverride struct {
	CostWeight      *float64         `json:"cost_weight,omitempty"`
	QualityWeight   *float64         `json:"quality_weight,omitempty"`
	GrowthFactor    *float64         `json:"growth_factor,omitempty"`
	LookbackPeriods *int             `json:"lookback_periods,omitempty"`
	CurrentPeriod   *int             `json:"current_period,omitempty"`
	Strategy        *domain.Strategy `json:"strategy,omitempty"`
	Rounding        *string          `json:"rounding,omitempty"`
}

// Apply returns base with the set fields replaced
func (o *ParamsOverride) Apply(base domain.Params) domain.Params {
	if o == nil {
		return base
	}
	if o.CostWeight != nil {
		base.CostWeight = *o.CostWeight
	}
	if o.QualityWeight != nil {
		base.QualityWeight = *o.QualityWeight
	}
	if o.GrowthFactor != nil {
		base.GrowthFactor = *o.GrowthFactor
	}
	if o.LookbackPeriods != nil {
		base.LookbackPeriods = *o.LookbackPeriods
	}
	if o.CurrentPeriod != nil {
		base.CurrentPeriod = *o.CurrentPeriod
	}
	if o.Strategy != nil {
		base.Strategy = *o.Strategy
	}
	if o.Rounding != nil {
		base.Rounding = *o.Rounding
	}
	return base
}

// RunRequest is everything one run needs
type RunRequest struct {
	Rows []grouping.RawRow `json:"rows"`
	// Offers add handlers that quote for a group without holding units in it
	Offers  []grouping.Offer       `json:"offers,omitempty"`
	History []domain.HistoryRecord `json:"history"`
	// Constraints replaces the stored constraints when non-nil. An empty list runs unconstrained.
	Constraints []domain.Constraint `json:"constraints"`
	Params      *ParamsOverride     `json:"params,omitempty"`
	// BaselineID selects a stored snapshot ("latest" for the newest). Empty traces
	// against the holders in Rows.
	BaselineID  string `json:"baseline_id,omitempty"`
	ShowUnitIDs bool   `json:"show_unit_ids,omitempty"`
	MaxSources  int    `json:"max_sources,omitempty"`
}

// RunStats are the headline numbers of a run
type RunStats struct {
	Groups         int   `json:"groups" msgpack:"groups"`
	Units          int   `json:"units" msgpack:"units"`
	Allocated      int   `json:"allocated" msgpack:"allocated"`
	Unallocated    int   `json:"unallocated" msgpack:"unallocated"`
	OverflowGroups int   `json:"overflow_groups" msgpack:"overflow_groups"`
	FailedGroups   int   `json:"failed_groups" msgpack:"failed_groups"`
	Duplicates     int   `json:"duplicates" msgpack:"duplicates"`
	Constraints    int   `json:"constraints" msgpack:"constraints"`
	DurationMs     int64 `json:"duration_ms" msgpack:"duration_ms"`
}

// RunResult is the complete output of one run
type RunResult struct {
	ID            string                      `json:"id" msgpack:"id"`
	CreatedAt     time.Time                   `json:"created_at" msgpack:"created_at"`
	BaselineID    string                      `json:"baseline_id" msgpack:"baseline_id"`
	Params        domain.Params               `json:"params" msgpack:"params"`
	HistoryWindow []int                       `json:"history_window" msgpack:"history_window"`
	Groups        []allocation.GroupOutcome   `json:"groups" msgpack:"groups"`
	Movements     *tracing.Report             `json:"movements" msgpack:"movements"`
	Handlers      []allocation.HandlerSummary `json:"handlers" msgpack:"handlers"`
	Trends        []history.Trend             `json:"trends,omitempty" msgpack:"trends,omitempty"`
	Diagnostics   []domain.Diagnostic         `json:"diagnostics" msgpack:"diagnostics"`
	Stats         RunStats                    `json:"stats" msgpack:"stats"`
}

// Results returns the per-group allocation results in group order
func (r *RunResult) Results() []domain.AllocationResult {
	out := make([]domain.AllocationResult, len(r.Groups))
	for i, g := range r.Groups {
		out[i] = g.Result
	}
	return out
}

// RunInfo describes a stored run without its payload
type RunInfo struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	BaselineID      string    `json:"baseline_id"`
	Strategy        string    `json:"strategy"`
	GroupCount      int       `json:"group_count"`
	UnitCount       int       `json:"unit_count"`
	DiagnosticCount int       `json:"diagnostic_count"`
	OverflowGroups  int       `json:"overflow_groups"`
	DurationMs      int64     `json:"duration_ms"`
}
