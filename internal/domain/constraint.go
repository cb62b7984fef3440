package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ConstraintKind enumerates the supported constraint kinds
type ConstraintKind string

const (
	// ConstraintExclusion keeps a handler out of groups at a facility
	ConstraintExclusion ConstraintKind = "exclusion"
	// ConstraintHardCap pre-assigns exactly min(max, eligible) units and removes the handler from ranking
	ConstraintHardCap ConstraintKind = "hard_cap"
	// ConstraintFloorMinimum pre-assigns at least N units or fails
	ConstraintFloorMinimum ConstraintKind = "floor_minimum"
	// ConstraintPercentTarget pre-assigns round(percent × groupTotal) units
	ConstraintPercentTarget ConstraintKind = "percent_target"
)

// ParseConstraintKind accepts the canonical names plus common spellings
func ParseConstraintKind(s string) (ConstraintKind, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "exclusion", "exclude", "excluded_fc":
		return ConstraintExclusion, nil
	case "hard_cap", "hardcap", "maximum", "max":
		return ConstraintHardCap, nil
	case "floor_minimum", "floor", "minimum", "min":
		return ConstraintFloorMinimum, nil
	case "percent_target", "percent", "percentage":
		return ConstraintPercentTarget, nil
	default:
		return "", fmt.Errorf("unknown constraint kind %q", s)
	}
}

// ConstraintScope restricts a constraint to groups whose present dimensions match
type ConstraintScope struct {
	Lane     Dimension `json:"lane"`
	Category Dimension `json:"category"`
	Period   *int      `json:"period,omitempty"`
	Port     Dimension `json:"port"`
	Terminal Dimension `json:"terminal"`
	Facility Dimension `json:"facility"`
}

// Matches reports whether key is inside the scope. Facility compares by normalized prefix.
func (s ConstraintScope) Matches(key GroupKey) bool {
	if s.Lane.Valid && !strings.EqualFold(s.Lane.Value, key.Lane) {
		return false
	}
	if s.Category.Valid && !strings.EqualFold(s.Category.Value, key.Category) {
		return false
	}
	if s.Period != nil && *s.Period != key.Period {
		return false
	}
	if s.Port.Valid && !strings.EqualFold(s.Port.Value, key.Port.Value) {
		return false
	}
	if s.Terminal.Valid && !strings.EqualFold(s.Terminal.Value, key.Terminal.Value) {
		return false
	}
	if s.Facility.Valid && FacilityPrefix(s.Facility.Value) != FacilityPrefix(key.Facility.Value) {
		return false
	}
	return true
}

// Constraint is a parsed, validated constraint record
type Constraint struct {
	ID        string          `json:"id"`
	Kind      ConstraintKind  `json:"kind"`
	HandlerID string          `json:"handler_id"`
	Value     float64         `json:"value"`
	Priority  float64         `json:"priority"`
	Facility  string          `json:"facility,omitempty"` // Exclusion target
	Scope     ConstraintScope `json:"scope"`
}

// Validate checks the record is usable and normalizes percent values given as 0–100
func (c *Constraint) Validate() error {
	if strings.TrimSpace(c.HandlerID) == "" {
		return fmt.Errorf("constraint %s: handler id is required", c.ID)
	}
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return fmt.Errorf("constraint %s: value must be a finite number", c.ID)
	}

	switch c.Kind {
	case ConstraintExclusion:
		if FacilityPrefix(c.Facility) == "" && !c.Scope.Facility.Valid {
			return fmt.Errorf("constraint %s: exclusion requires a facility", c.ID)
		}
	case ConstraintHardCap, ConstraintFloorMinimum:
		if c.Value < 0 {
			return fmt.Errorf("constraint %s: %s value must be non-negative", c.ID, c.Kind)
		}
	case ConstraintPercentTarget:
		if c.Value > 1 && c.Value <= 100 {
			c.Value /= 100
		}
		if c.Value < 0 || c.Value > 1 {
			return fmt.Errorf("constraint %s: percent target must be within [0, 1]", c.ID)
		}
	default:
		return fmt.Errorf("constraint %s: unknown kind %q", c.ID, c.Kind)
	}

	return nil
}

// Applies reports whether the constraint is in scope for key. Exclusions also match on facility.
func (c Constraint) Applies(key GroupKey) bool {
	if !c.Scope.Matches(key) {
		return false
	}
	if c.Kind == ConstraintExclusion && c.Facility != "" {
		return FacilityPrefix(c.Facility) == FacilityPrefix(key.Facility.Value)
	}
	return true
}

// SortByPriority orders constraints by descending priority, keeping input order on ties
func SortByPriority(constraints []Constraint) []Constraint {
	sorted := make([]Constraint, len(constraints))
	copy(sorted, constraints)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return sorted
}
