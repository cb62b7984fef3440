package allocation

import (
	"math"
	"sort"

	"github.com/aristath/tender/internal/domain"
)

// HandlerSummary aggregates one handler across every group of a run
type HandlerSummary struct {
	HandlerID      string  `json:"handler_id" msgpack:"handler_id"`
	Groups         int     `json:"groups" msgpack:"groups"`
	BaselineUnits  int     `json:"baseline_units" msgpack:"baseline_units"`
	AllocatedUnits int     `json:"allocated_units" msgpack:"allocated_units"`
	BaselinePct    float64 `json:"baseline_pct" msgpack:"baseline_pct"`
	AllocatedPct   float64 `json:"allocated_pct" msgpack:"allocated_pct"`
	Deviation      float64 `json:"deviation" msgpack:"deviation"`
	OverflowGroups int     `json:"overflow_groups" msgpack:"overflow_groups"`
}

// Summarize compares what each handler held in the input groups with what it was allocated
func Summarize(groups []domain.Group, results []domain.AllocationResult) []HandlerSummary {
	baseline := make(map[string]int)
	baselineTotal := 0
	for _, g := range groups {
		for _, o := range g.Options {
			baseline[o.HandlerID] += o.UnitCount
			baselineTotal += o.UnitCount
		}
	}

	allocated := make(map[string]int)
	groupCount := make(map[string]int)
	overflow := make(map[string]int)
	allocatedTotal := 0
	for _, r := range results {
		for _, h := range r.Handlers {
			allocated[h.HandlerID] += h.UnitCount
			allocatedTotal += h.UnitCount
			if h.UnitCount > 0 {
				groupCount[h.HandlerID]++
			}
			if h.Overflow {
				overflow[h.HandlerID]++
			}
		}
	}

	handlers := make(map[string]bool)
	for h := range baseline {
		handlers[h] = true
	}
	for h := range allocated {
		handlers[h] = true
	}

	summaries := make([]HandlerSummary, 0, len(handlers))
	for h := range handlers {
		var basePct, allocPct float64
		if baselineTotal > 0 {
			basePct = float64(baseline[h]) / float64(baselineTotal)
		}
		if allocatedTotal > 0 {
			allocPct = float64(allocated[h]) / float64(allocatedTotal)
		}
		summaries = append(summaries, HandlerSummary{
			HandlerID:      h,
			Groups:         groupCount[h],
			BaselineUnits:  baseline[h],
			AllocatedUnits: allocated[h],
			BaselinePct:    round(basePct, 4),
			AllocatedPct:   round(allocPct, 4),
			Deviation:      round(allocPct-basePct, 4),
			OverflowGroups: overflow[h],
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].AllocatedUnits != summaries[j].AllocatedUnits {
			return summaries[i].AllocatedUnits > summaries[j].AllocatedUnits
		}
		return summaries[i].HandlerID < summaries[j].HandlerID
	})

	return summaries
}

// round rounds a display percentage to n decimal places. Unit counts never pass through here.
func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
