package allocation

import (
	"fmt"
	"math"

	"github.com/aristath/tender/internal/domain"
	"github.com/aristath/tender/internal/modules/rounding"
)

// ConstraintStatus is the result of applying one constraint to one group
type ConstraintStatus string

const (
	ConstraintApplied ConstraintStatus = "applied"
	ConstraintFailed  ConstraintStatus = "failed"
	ConstraintSkipped ConstraintStatus = "skipped"
)

// ConstraintOutcome reports what a constraint did in a group
type ConstraintOutcome struct {
	ConstraintID string                `json:"constraint_id" msgpack:"constraint_id"`
	Kind         domain.ConstraintKind `json:"kind" msgpack:"kind"`
	HandlerID    string                `json:"handler_id" msgpack:"handler_id"`
	Status       ConstraintStatus      `json:"status" msgpack:"status"`
	Requested    int                   `json:"requested" msgpack:"requested"`
	Assigned     int                   `json:"assigned" msgpack:"assigned"`
	Message      string                `json:"message,omitempty" msgpack:"message,omitempty"`
}

// ConstraintPlan is the state left after constraints ran on a group
type ConstraintPlan struct {
	// Preassigned units per handler, in the order handlers first received units
	Preassigned map[string][]string
	Order       []string
	// ConstraintIDs lists the constraints that placed units with each handler
	ConstraintIDs map[string][]string
	// Excluded handlers may not receive units in this group
	Excluded map[string]bool
	// Fixed handlers were given an exact amount and leave the ranking
	Fixed map[string]bool
	// Remaining is the pool left for ranking, in pool order
	Remaining   []string
	Outcomes    []ConstraintOutcome
	Diagnostics []domain.Diagnostic
}

// Eligible reports whether handlerID can take part in ranking for the remaining pool
func (p *ConstraintPlan) Eligible(handlerID string) bool {
	return !p.Excluded[handlerID] && !p.Fixed[handlerID]
}

// ApplyConstraints runs the constraints that apply to group and records every
// pre-assignment in tracker. Exclusions are collected first so they bind every
// other kind regardless of priority; the rest run in descending priority.
func ApplyConstraints(group domain.Group, constraints []domain.Constraint, tracker *Tracker) *ConstraintPlan {
	key := group.Key
	pool := group.UnitIDs()
	total := len(pool)

	holder := make(map[string]string, total)
	for _, o := range group.Options {
		for _, id := range o.UnitIDs {
			holder[id] = o.HandlerID
		}
	}

	plan := &ConstraintPlan{
		Preassigned:   make(map[string][]string),
		ConstraintIDs: make(map[string][]string),
		Excluded:      make(map[string]bool),
		Fixed:         make(map[string]bool),
	}

	var ordered []domain.Constraint
	for _, c := range domain.SortByPriority(constraints) {
		if !c.Applies(key) {
			continue
		}
		if c.Kind == domain.ConstraintExclusion {
			plan.Excluded[c.HandlerID] = true
			plan.Outcomes = append(plan.Outcomes, ConstraintOutcome{
				ConstraintID: c.ID,
				Kind:         c.Kind,
				HandlerID:    c.HandlerID,
				Status:       ConstraintApplied,
				Message:      fmt.Sprintf("%s excluded from facility %s", c.HandlerID, domain.FacilityPrefix(key.Facility.Value)),
			})
			continue
		}
		ordered = append(ordered, c)
	}

	for _, c := range ordered {
		outcome := ConstraintOutcome{ConstraintID: c.ID, Kind: c.Kind, HandlerID: c.HandlerID}

		if plan.Excluded[c.HandlerID] {
			if c.Kind == domain.ConstraintFloorMinimum {
				outcome.Status = ConstraintFailed
				outcome.Requested = int(math.Ceil(c.Value))
				outcome.Message = fmt.Sprintf("%s is excluded here, no eligible units", c.HandlerID)
				plan.fail(key, c, outcome)
			} else {
				outcome.Status = ConstraintSkipped
				outcome.Message = fmt.Sprintf("%s is excluded here", c.HandlerID)
				plan.skip(key, c, outcome)
			}
			continue
		}
		if plan.Fixed[c.HandlerID] {
			outcome.Status = ConstraintSkipped
			outcome.Message = fmt.Sprintf("%s already has a fixed amount from an earlier constraint", c.HandlerID)
			plan.skip(key, c, outcome)
			continue
		}

		eligible := eligibleUnits(pool, holder, c.HandlerID, tracker)

		switch c.Kind {
		case domain.ConstraintHardCap:
			want := int(math.Floor(c.Value))
			n := want
			if n > len(eligible) {
				n = len(eligible)
			}
			plan.assign(tracker, c, eligible[:n])
			plan.Fixed[c.HandlerID] = true
			outcome.Status = ConstraintApplied
			outcome.Requested, outcome.Assigned = want, n
			if n < want {
				outcome.Message = fmt.Sprintf("capped at %d eligible units", n)
			}

		case domain.ConstraintFloorMinimum:
			want := int(math.Ceil(c.Value))
			outcome.Requested = want
			if len(eligible) < want {
				outcome.Status = ConstraintFailed
				outcome.Message = fmt.Sprintf("needs %d units, only %d eligible", want, len(eligible))
				plan.fail(key, c, outcome)
				continue
			}
			plan.assign(tracker, c, eligible[:want])
			outcome.Status = ConstraintApplied
			outcome.Assigned = want

		case domain.ConstraintPercentTarget:
			want := rounding.RoundTarget(c.Value, total)
			n := want
			if n > len(eligible) {
				n = len(eligible)
			}
			plan.assign(tracker, c, eligible[:n])
			plan.Fixed[c.HandlerID] = true
			outcome.Status = ConstraintApplied
			outcome.Requested, outcome.Assigned = want, n
			if n < want {
				outcome.Message = fmt.Sprintf("target %d limited to %d eligible units", want, n)
			}
		}

		plan.Outcomes = append(plan.Outcomes, outcome)
	}

	plan.Remaining = tracker.Unassigned(pool)
	return plan
}

// eligibleUnits lists unassigned pool units, the handler's own units first
func eligibleUnits(pool []string, holder map[string]string, handlerID string, tracker *Tracker) []string {
	own := make([]string, 0)
	others := make([]string, 0, len(pool))
	for _, id := range pool {
		if tracker.IsAssigned(id) {
			continue
		}
		if holder[id] == handlerID {
			own = append(own, id)
		} else {
			others = append(others, id)
		}
	}
	return append(own, others...)
}

func (p *ConstraintPlan) assign(tracker *Tracker, c domain.Constraint, ids []string) {
	if len(ids) == 0 {
		return
	}
	if _, seen := p.Preassigned[c.HandlerID]; !seen {
		p.Order = append(p.Order, c.HandlerID)
	}
	for _, id := range ids {
		if tracker.Assign(id, c.HandlerID, c.ID) {
			p.Preassigned[c.HandlerID] = append(p.Preassigned[c.HandlerID], id)
		}
	}
	p.ConstraintIDs[c.HandlerID] = append(p.ConstraintIDs[c.HandlerID], c.ID)
}

func (p *ConstraintPlan) fail(key domain.GroupKey, c domain.Constraint, outcome ConstraintOutcome) {
	p.Outcomes = append(p.Outcomes, outcome)
	d := domain.NewDiagnostic(domain.DiagnosticConstraintUnsatisfiable, &key, "%s %s for %s: %s", c.Kind, c.ID, c.HandlerID, outcome.Message)
	d.HandlerID = c.HandlerID
	d.ConstraintID = c.ID
	p.Diagnostics = append(p.Diagnostics, d)
}

func (p *ConstraintPlan) skip(key domain.GroupKey, c domain.Constraint, outcome ConstraintOutcome) {
	p.Outcomes = append(p.Outcomes, outcome)
	d := domain.NewDiagnostic(domain.DiagnosticConstraintSkipped, &key, "%s %s for %s: %s", c.Kind, c.ID, c.HandlerID, outcome.Message)
	d.HandlerID = c.HandlerID
	d.ConstraintID = c.ID
	p.Diagnostics = append(p.Diagnostics, d)
}
