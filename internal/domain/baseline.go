package domain

import "time"

// BaselineSnapshot is an allocation state captured before any transformation.
// Fields are unexported so the snapshot cannot be mutated after construction.
type BaselineSnapshot struct {
	id         string
	label      string
	capturedAt time.Time
	groups     []AllocationResult
	index      map[GroupKey]int
}

// NewBaselineSnapshot deep-copies groups into an immutable snapshot
func NewBaselineSnapshot(id, label string, capturedAt time.Time, groups []AllocationResult) *BaselineSnapshot {
	s := &BaselineSnapshot{
		id:         id,
		label:      label,
		capturedAt: capturedAt,
		groups:     make([]AllocationResult, len(groups)),
		index:      make(map[GroupKey]int, len(groups)),
	}
	for i, g := range groups {
		s.groups[i] = g.Clone()
		if _, seen := s.index[g.Key]; !seen {
			s.index[g.Key] = i
		}
	}
	return s
}

// BaselineFromGroups captures the current holdings of groups as a baseline
func BaselineFromGroups(id, label string, capturedAt time.Time, groups []Group) *BaselineSnapshot {
	results := make([]AllocationResult, 0, len(groups))
	for _, g := range groups {
		r := AllocationResult{Key: g.Key, Total: g.Total()}
		for _, o := range g.Options {
			r.Handlers = append(r.Handlers, HandlerAllocation{
				HandlerID: o.HandlerID,
				UnitCount: o.UnitCount,
				UnitIDs:   o.UnitIDs,
			})
		}
		results = append(results, r)
	}
	return NewBaselineSnapshot(id, label, capturedAt, results)
}

// ID returns the snapshot id
func (s *BaselineSnapshot) ID() string { return s.id }

// Label returns the human label
func (s *BaselineSnapshot) Label() string { return s.label }

// CapturedAt returns the capture time
func (s *BaselineSnapshot) CapturedAt() time.Time { return s.capturedAt }

// Len returns the number of groups
func (s *BaselineSnapshot) Len() int { return len(s.groups) }

// UnitCount returns the number of unit rows in the snapshot, duplicates included
func (s *BaselineSnapshot) UnitCount() int {
	n := 0
	for _, g := range s.groups {
		for _, h := range g.Handlers {
			n += len(h.UnitIDs)
		}
	}
	return n
}

// Groups returns a copy of every group
func (s *BaselineSnapshot) Groups() []AllocationResult {
	out := make([]AllocationResult, len(s.groups))
	for i, g := range s.groups {
		out[i] = g.Clone()
	}
	return out
}

// Group returns a copy of the group for key
func (s *BaselineSnapshot) Group(key GroupKey) (AllocationResult, bool) {
	i, ok := s.index[key]
	if !ok {
		return AllocationResult{}, false
	}
	return s.groups[i].Clone(), true
}

// Each calls fn for every handler allocation in capture order without copying.
// fn must not retain or modify the slice it receives.
func (s *BaselineSnapshot) Each(fn func(key GroupKey, handlerID string, unitIDs []string)) {
	for _, g := range s.groups {
		for _, h := range g.Handlers {
			fn(g.Key, h.HandlerID, h.UnitIDs)
		}
	}
}
