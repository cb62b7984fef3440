package domain

// MovementRecord is one handler's change within one group against the baseline
type MovementRecord struct {
	HandlerID  string              `json:"handler_id" msgpack:"handler_id"`
	Key        GroupKey            `json:"group" msgpack:"group"`
	StartCount int                 `json:"start_count" msgpack:"start_count"`
	KeptCount  int                 `json:"kept_count" msgpack:"kept_count"`
	GainedFrom map[string]int      `json:"gained_from" msgpack:"gained_from"`
	LostCount  int                 `json:"lost_count" msgpack:"lost_count"`
	EndCount   int                 `json:"end_count" msgpack:"end_count"`
	StartIDs   []string            `json:"start_ids,omitempty" msgpack:"start_ids,omitempty"`
	KeptIDs    []string            `json:"kept_ids,omitempty" msgpack:"kept_ids,omitempty"`
	LostIDs    []string            `json:"lost_ids,omitempty" msgpack:"lost_ids,omitempty"`
	GainedIDs  map[string][]string `json:"gained_ids,omitempty" msgpack:"gained_ids,omitempty"`
}

// Gained returns the total units gained from every source
func (m MovementRecord) Gained() int {
	n := 0
	for _, c := range m.GainedFrom {
		n += c
	}
	return n
}

// Reconciles checks start + gained − lost == end
func (m MovementRecord) Reconciles() bool {
	return m.StartCount+m.Gained()-m.LostCount == m.EndCount
}

// KeptAll is true only when nothing moved in or out
func (m MovementRecord) KeptAll() bool {
	return m.StartCount == m.EndCount && m.LostCount == 0 && m.Gained() == 0 && m.StartCount > 0
}

// Net returns end − start
func (m MovementRecord) Net() int {
	return m.EndCount - m.StartCount
}
