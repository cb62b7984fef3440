package allocation

// Assignment is one entry of a group's assignment log
type Assignment struct {
	UnitID    string `json:"unit_id" msgpack:"unit_id"`
	HandlerID string `json:"handler_id" msgpack:"handler_id"`
	Source    string `json:"source" msgpack:"source"` // constraint id or "cascade"
}

// Tracker records which units of a group have been assigned and by what.
// One tracker belongs to one group allocation; it is returned with the outcome.
type Tracker struct {
	owner map[string]string
	log   []Assignment
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{owner: make(map[string]string)}
}

// Assign records unitID for handlerID. It returns false if the unit was already assigned.
func (t *Tracker) Assign(unitID, handlerID, source string) bool {
	if _, taken := t.owner[unitID]; taken {
		return false
	}
	t.owner[unitID] = handlerID
	t.log = append(t.log, Assignment{UnitID: unitID, HandlerID: handlerID, Source: source})
	return true
}

// IsAssigned reports whether unitID has an owner
func (t *Tracker) IsAssigned(unitID string) bool {
	_, ok := t.owner[unitID]
	return ok
}

// Owner returns the handler a unit was assigned to
func (t *Tracker) Owner(unitID string) (string, bool) {
	h, ok := t.owner[unitID]
	return h, ok
}

// Len returns the number of assigned units
func (t *Tracker) Len() int {
	return len(t.log)
}

// Log returns a copy of the assignment log in assignment order
func (t *Tracker) Log() []Assignment {
	return append([]Assignment(nil), t.log...)
}

// Unassigned filters ids down to those without an owner, preserving order
func (t *Tracker) Unassigned(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !t.IsAssigned(id) {
			out = append(out, id)
		}
	}
	return out
}
