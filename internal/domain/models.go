package domain

import "sort"

// UnknownHandler labels units whose origin cannot be determined
const UnknownHandler = "unknown"

// Unit is an individually identified container
type Unit struct {
	ID  string   `json:"id"`
	Key GroupKey `json:"group"`
}

// UnitRow is one row of the flat input table: a unit currently held by a handler.
type UnitRow struct {
	UnitID    string   `json:"unit_id"`
	Key       GroupKey `json:"group"`
	HandlerID string   `json:"handler_id"`
	Cost      *float64 `json:"cost,omitempty"`
	Quality   *float64 `json:"quality,omitempty"`
}

// HandlerOption is a candidate handler inside a group
type HandlerOption struct {
	HandlerID string   `json:"handler_id" msgpack:"handler_id"`
	UnitCount int      `json:"unit_count" msgpack:"unit_count"`
	UnitIDs   []string `json:"unit_ids" msgpack:"unit_ids"`
	Cost      *float64 `json:"cost,omitempty" msgpack:"cost,omitempty"`
	Quality   *float64 `json:"quality,omitempty" msgpack:"quality,omitempty"`
}

// Group is the independent scope of one allocation
type Group struct {
	Key     GroupKey        `json:"group"`
	Options []HandlerOption `json:"options"`
}

// Total returns the group's unit count
func (g Group) Total() int {
	total := 0
	for _, o := range g.Options {
		total += o.UnitCount
	}
	return total
}

// UnitIDs returns every unit in the group, ordered by handler then unit order
func (g Group) UnitIDs() []string {
	ids := make([]string, 0, g.Total())
	for _, o := range g.Options {
		ids = append(ids, o.UnitIDs...)
	}
	return ids
}

// Option returns the option for handlerID
func (g Group) Option(handlerID string) (HandlerOption, bool) {
	for _, o := range g.Options {
		if o.HandlerID == handlerID {
			return o, true
		}
	}
	return HandlerOption{}, false
}

// HistoryRecord is one handler's completed volume on a lane in a period
type HistoryRecord struct {
	HandlerID string `json:"handler_id"`
	Lane      string `json:"lane"`
	Category  string `json:"category,omitempty"`
	Period    int    `json:"period"`
	UnitCount int    `json:"unit_count"`
}

// SortGroups orders groups by key
func SortGroups(groups []Group) {
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Key.Less(groups[j].Key)
	})
}
