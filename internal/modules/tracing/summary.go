package tracing

import (
	"math"
	"sort"

	"github.com/aristath/tender/internal/domain"
)

// topFlowLimit caps Summary.TopFlows
const topFlowLimit = 10

// Flow is a count of units that moved from one handler to another
type Flow struct {
	From  string `json:"from" msgpack:"from"`
	To    string `json:"to" msgpack:"to"`
	Count int    `json:"count" msgpack:"count"`
}

// Summary aggregates movement records across a run
type Summary struct {
	TotalUnits         int                       `json:"total_units" msgpack:"total_units"`
	Kept               int                       `json:"kept" msgpack:"kept"`
	Moved              int                       `json:"moved" msgpack:"moved"`
	Unknown            int                       `json:"unknown" msgpack:"unknown"`
	KeptPct            float64                   `json:"kept_pct" msgpack:"kept_pct"`
	MovedPct           float64                   `json:"moved_pct" msgpack:"moved_pct"`
	UnknownPct         float64                   `json:"unknown_pct" msgpack:"unknown_pct"`
	FlowMatrix         map[string]map[string]int `json:"flow_matrix" msgpack:"flow_matrix"`
	TopFlows           []Flow                    `json:"top_flows" msgpack:"top_flows"`
	UniqueSources      int                       `json:"unique_sources" msgpack:"unique_sources"`
	UniqueDestinations int                       `json:"unique_destinations" msgpack:"unique_destinations"`
}

// Summarize totals kept, moved and unknown units and builds the from→to flow matrix.
// Units of unknown origin are counted but never appear as flows.
func Summarize(records []domain.MovementRecord) Summary {
	s := Summary{
		FlowMatrix: make(map[string]map[string]int),
		TopFlows:   make([]Flow, 0),
	}

	for _, r := range records {
		s.Kept += r.KeptCount
		for from, n := range r.GainedFrom {
			if from == domain.UnknownHandler {
				s.Unknown += n
				continue
			}
			s.Moved += n
			if s.FlowMatrix[from] == nil {
				s.FlowMatrix[from] = make(map[string]int)
			}
			s.FlowMatrix[from][r.HandlerID] += n
		}
	}
	s.TotalUnits = s.Kept + s.Moved + s.Unknown

	if s.TotalUnits > 0 {
		total := float64(s.TotalUnits)
		s.KeptPct = pct(float64(s.Kept) / total)
		s.MovedPct = pct(float64(s.Moved) / total)
		s.UnknownPct = pct(float64(s.Unknown) / total)
	}

	destinations := make(map[string]bool)
	var flows []Flow
	for from, tos := range s.FlowMatrix {
		for to, n := range tos {
			flows = append(flows, Flow{From: from, To: to, Count: n})
			destinations[to] = true
		}
	}
	sort.Slice(flows, func(i, j int) bool {
		if flows[i].Count != flows[j].Count {
			return flows[i].Count > flows[j].Count
		}
		if flows[i].From != flows[j].From {
			return flows[i].From < flows[j].From
		}
		return flows[i].To < flows[j].To
	})
	if len(flows) > topFlowLimit {
		flows = flows[:topFlowLimit]
	}
	s.TopFlows = append(s.TopFlows, flows...)
	s.UniqueSources = len(s.FlowMatrix)
	s.UniqueDestinations = len(destinations)

	return s
}

// pct renders a fraction as a percentage with two decimals
func pct(fraction float64) float64 {
	return math.Round(fraction*10000) / 100
}
