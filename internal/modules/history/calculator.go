// Package history computes each handler's share of past lane volume.
package history

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/domain"
)

// DefaultLookback is the number of completed periods considered
const DefaultLookback = 5

// ShareKey identifies a (handler, lane) pair
type ShareKey struct {
	HandlerID string
	Lane      string
}

// ShareEntry is one handler's historical position on a lane.
// Defined is false when the lane had no volume in the window, so a zero Share
// with Defined == false means "no history" rather than "0% share".
type ShareEntry struct {
	HandlerID     string  `json:"handler_id"`
	Lane          string  `json:"lane"`
	Units         int     `json:"units"`
	LaneUnits     int     `json:"lane_units"`
	Share         float64 `json:"share"`
	PeriodsActive int     `json:"periods_active"`
	Defined       bool    `json:"defined"`
}

// IsNew reports whether the handler has never been active on the lane in the window
func (e ShareEntry) IsNew() bool {
	return e.PeriodsActive == 0
}

// ShareTable is the result of one computation. It is read-only after Compute returns.
type ShareTable struct {
	CurrentPeriod int                     `json:"current_period"`
	Periods       []int                   `json:"periods"` // ascending
	entries       map[ShareKey]ShareEntry
	laneTotals    map[string]int
	// counts[key][i] is the volume in Periods[i]
	counts map[ShareKey][]int
}

// Lookup returns the entry for handlerID on lane. Unknown pairs are new handlers.
func (t *ShareTable) Lookup(handlerID, lane string) ShareEntry {
	if e, ok := t.entries[ShareKey{HandlerID: handlerID, Lane: lane}]; ok {
		return e
	}
	return ShareEntry{
		HandlerID: handlerID,
		Lane:      lane,
		LaneUnits: t.laneTotals[lane],
		Defined:   t.laneTotals[lane] > 0,
	}
}

// LaneHasHistory reports whether any handler moved units on lane in the window
func (t *ShareTable) LaneHasHistory(lane string) bool {
	return t.laneTotals[lane] > 0
}

// LaneTotals returns total window volume per lane
func (t *ShareTable) LaneTotals() map[string]int {
	out := make(map[string]int, len(t.laneTotals))
	for k, v := range t.laneTotals {
		out[k] = v
	}
	return out
}

// Entries returns every entry ordered by lane then handler
func (t *ShareTable) Entries() []ShareEntry {
	out := make([]ShareEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lane != out[j].Lane {
			return out[i].Lane < out[j].Lane
		}
		return out[i].HandlerID < out[j].HandlerID
	})
	return out
}

// Calculator builds share tables
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a calculator
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{log: log.With().Str("component", "history").Logger()}
}

// Compute builds the share table from the lookback window: the last lookback
// distinct periods present in records that are strictly before currentPeriod.
func (c *Calculator) Compute(records []domain.HistoryRecord, currentPeriod, lookback int) *ShareTable {
	if lookback < 1 {
		lookback = DefaultLookback
	}

	periods := windowPeriods(records, currentPeriod, lookback)
	index := make(map[int]int, len(periods))
	for i, p := range periods {
		index[p] = i
	}

	table := &ShareTable{
		CurrentPeriod: currentPeriod,
		Periods:       periods,
		entries:       make(map[ShareKey]ShareEntry),
		laneTotals:    make(map[string]int),
		counts:        make(map[ShareKey][]int),
	}

	skipped := 0
	for _, r := range records {
		i, ok := index[r.Period]
		if !ok {
			continue
		}
		if r.UnitCount < 0 || r.HandlerID == "" {
			skipped++
			continue
		}
		key := ShareKey{HandlerID: r.HandlerID, Lane: r.Lane}
		if table.counts[key] == nil {
			table.counts[key] = make([]int, len(periods))
		}
		table.counts[key][i] += r.UnitCount
		table.laneTotals[r.Lane] += r.UnitCount
	}

	for key, counts := range table.counts {
		units, active := 0, 0
		for _, n := range counts {
			units += n
			if n > 0 {
				active++
			}
		}
		laneUnits := table.laneTotals[key.Lane]
		entry := ShareEntry{
			HandlerID:     key.HandlerID,
			Lane:          key.Lane,
			Units:         units,
			LaneUnits:     laneUnits,
			PeriodsActive: active,
			Defined:       laneUnits > 0,
		}
		if laneUnits > 0 {
			entry.Share = float64(units) / float64(laneUnits)
		}
		table.entries[key] = entry
	}

	if skipped > 0 {
		c.log.Warn().Int("skipped", skipped).Msg("Ignored malformed history records")
	}
	c.log.Debug().
		Int("current_period", currentPeriod).
		Ints("periods", periods).
		Int("lanes", len(table.laneTotals)).
		Int("entries", len(table.entries)).
		Msg("Computed historical shares")

	return table
}

// windowPeriods returns up to lookback distinct periods before currentPeriod, ascending
func windowPeriods(records []domain.HistoryRecord, currentPeriod, lookback int) []int {
	seen := make(map[int]bool)
	var candidates []int
	for _, r := range records {
		if r.Period >= currentPeriod || seen[r.Period] {
			continue
		}
		seen[r.Period] = true
		candidates = append(candidates, r.Period)
	}
	sort.Ints(candidates)
	if len(candidates) > lookback {
		candidates = candidates[len(candidates)-lookback:]
	}
	return candidates
}
