package domain

// AllocationSource records how a handler came to hold units
type AllocationSource string

const (
	SourceCascade    AllocationSource = "cascade"
	SourceConstraint AllocationSource = "constraint"
	SourceMixed      AllocationSource = "constraint+cascade"
)

// HandlerAllocation is one handler's integer allocation in a group plus its explanation
type HandlerAllocation struct {
	HandlerID       string           `json:"handler_id" msgpack:"handler_id"`
	Rank            int              `json:"rank" msgpack:"rank"` // 0 when the handler was only constraint-assigned
	UnitCount       int              `json:"unit_count" msgpack:"unit_count"`
	UnitIDs         []string         `json:"unit_ids" msgpack:"unit_ids"`
	HistoricalShare float64          `json:"historical_share" msgpack:"historical_share"`
	HasHistory      bool             `json:"has_history" msgpack:"has_history"`
	Cap             float64          `json:"cap" msgpack:"cap"` // fraction of the pool
	CapUnits        float64          `json:"cap_units" msgpack:"cap_units"`
	Overflow        bool             `json:"overflow" msgpack:"overflow"`
	Source          AllocationSource `json:"source" msgpack:"source"`
	ConstraintIDs   []string         `json:"constraint_ids,omitempty" msgpack:"constraint_ids,omitempty"`
	Notes           string           `json:"notes" msgpack:"notes"`
}

// AllocationResult is the integer allocation of one group
type AllocationResult struct {
	Key         GroupKey            `json:"group" msgpack:"group"`
	Total       int                 `json:"total" msgpack:"total"`
	Handlers    []HandlerAllocation `json:"handlers" msgpack:"handlers"`
	Unallocated []string            `json:"unallocated,omitempty" msgpack:"unallocated,omitempty"`
	Overflow    bool                `json:"overflow" msgpack:"overflow"`
}

// Allocated returns the number of units assigned to handlers
func (r AllocationResult) Allocated() int {
	n := 0
	for _, h := range r.Handlers {
		n += h.UnitCount
	}
	return n
}

// Conserved reports whether every input unit is accounted for
func (r AllocationResult) Conserved() bool {
	return r.Allocated()+len(r.Unallocated) == r.Total
}

// Handler returns the allocation for handlerID
func (r AllocationResult) Handler(handlerID string) (HandlerAllocation, bool) {
	for _, h := range r.Handlers {
		if h.HandlerID == handlerID {
			return h, true
		}
	}
	return HandlerAllocation{}, false
}

// Share returns handlerID's fraction of the group total, computed from current counts
func (r AllocationResult) Share(handlerID string) float64 {
	if r.Total == 0 {
		return 0
	}
	h, ok := r.Handler(handlerID)
	if !ok {
		return 0
	}
	return float64(h.UnitCount) / float64(r.Total)
}

// Shares returns every handler's fraction of the group total
func (r AllocationResult) Shares() map[string]float64 {
	shares := make(map[string]float64, len(r.Handlers))
	for _, h := range r.Handlers {
		shares[h.HandlerID] = r.Share(h.HandlerID)
	}
	return shares
}

// Clone deep-copies the result
func (r AllocationResult) Clone() AllocationResult {
	out := r
	out.Handlers = make([]HandlerAllocation, len(r.Handlers))
	for i, h := range r.Handlers {
		h.UnitIDs = append([]string(nil), h.UnitIDs...)
		h.ConstraintIDs = append([]string(nil), h.ConstraintIDs...)
		out.Handlers[i] = h
	}
	out.Unallocated = append([]string(nil), r.Unallocated...)
	return out
}
