// Package allocation splits each group's units across its handlers: constraints first,
// then the ranked cascade on the remaining pool, then largest-remainder rounding and
// unit-id assignment.
package allocation

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/domain"
	"github.com/aristath/tender/internal/modules/history"
	"github.com/aristath/tender/internal/modules/ranking"
	"github.com/aristath/tender/internal/modules/rounding"
)

// ShareSource provides historical shares. *history.ShareTable implements it.
type ShareSource interface {
	Lookup(handlerID, lane string) history.ShareEntry
}

// GroupOutcome is everything one group allocation produced
type GroupOutcome struct {
	Result      domain.AllocationResult `json:"result" msgpack:"result"`
	Ranking     []ranking.Ranked        `json:"ranking" msgpack:"ranking"`
	Constraints []ConstraintOutcome     `json:"constraints,omitempty" msgpack:"constraints,omitempty"`
	Assignments []Assignment            `json:"assignments" msgpack:"assignments"`
	Diagnostics []domain.Diagnostic     `json:"diagnostics,omitempty" msgpack:"diagnostics,omitempty"`
}

// Allocator allocates single groups. It holds no per-group state and is safe for concurrent use.
type Allocator struct {
	ranker       *ranking.Ranker
	rounder      rounding.Strategy
	growthFactor float64
	strategy     domain.Strategy
	log          zerolog.Logger
}

// NewAllocator creates an allocator for validated params
func NewAllocator(params domain.Params, rounder rounding.Strategy, log zerolog.Logger) *Allocator {
	if rounder == nil {
		rounder = rounding.LargestRemainder{}
	}
	strategy := params.Strategy
	if strategy == "" {
		strategy = domain.StrategyCascading
	}
	return &Allocator{
		ranker:       ranking.NewRanker(params.CostWeight, params.QualityWeight),
		rounder:      rounder,
		growthFactor: params.GrowthFactor,
		strategy:     strategy,
		log:          log.With().Str("component", "allocator").Logger(),
	}
}

// Allocate runs one group. It never panics on malformed data; problems become diagnostics.
func (a *Allocator) Allocate(group domain.Group, shares ShareSource, constraints []domain.Constraint) GroupOutcome {
	key := group.Key
	total := group.Total()
	out := GroupOutcome{Result: domain.AllocationResult{Key: key, Total: total}}

	if len(group.Options) == 0 {
		out.Diagnostics = append(out.Diagnostics,
			domain.NewDiagnostic(domain.DiagnosticEmptyGroup, &key, "group has no handlers"))
		out.Ranking = []ranking.Ranked{}
		return out
	}

	holder := make(map[string]string, total)
	for _, o := range group.Options {
		for _, id := range o.UnitIDs {
			holder[id] = o.HandlerID
		}
	}

	tracker := NewTracker()
	plan := ApplyConstraints(group, constraints, tracker)
	out.Constraints = plan.Outcomes
	out.Diagnostics = append(out.Diagnostics, plan.Diagnostics...)

	var candidates []domain.HandlerOption
	for _, o := range group.Options {
		if plan.Eligible(o.HandlerID) {
			candidates = append(candidates, o)
		}
	}
	out.Ranking = a.ranker.Rank(candidates)

	pool := plan.Remaining
	var (
		cascadeCounts = make(map[string]int)
		caps          = make(map[string][2]float64)
		overflowID    string
	)

	switch {
	case len(pool) > 0 && len(out.Ranking) == 0:
		out.Result.Unallocated = append([]string(nil), pool...)
		out.Diagnostics = append(out.Diagnostics, domain.NewDiagnostic(domain.DiagnosticEmptyGroup, &key,
			"no eligible handlers for %d remaining units", len(pool)))

	case len(out.Ranking) > 0:
		amounts, capFractions, capUnits, overflow := a.distribute(out.Ranking, key, shares, len(pool))

		counts, err := rounding.RoundWithin(a.rounder, amounts, capUnits, len(pool))
		if err != nil {
			out.Result.Unallocated = append([]string(nil), pool...)
			d := domain.NewDiagnostic(domain.DiagnosticGroupFailed, &key, "failed to round allocation: %v", err)
			out.Diagnostics = append(out.Diagnostics, d)
			a.log.Error().Err(err).Str("group", key.String()).Msg("Rounding failed")
			break
		}

		order := make([]string, len(out.Ranking))
		for i, r := range out.Ranking {
			order[i] = r.HandlerID
			cascadeCounts[r.HandlerID] = counts[i]
			caps[r.HandlerID] = [2]float64{capFractions[i], capUnits[i]}
		}

		assigned := AssignUnits(order, counts, holder, pool)
		for _, h := range order {
			for _, id := range assigned[h] {
				tracker.Assign(id, h, "cascade")
			}
		}

		if overflow > 0 {
			overflowID = out.Ranking[0].HandlerID
			out.Result.Overflow = true
			d := domain.NewDiagnostic(domain.DiagnosticOverflow, &key,
				"every handler reached its cap; %.2f units overflowed to top-ranked %s", overflow, overflowID)
			d.HandlerID = overflowID
			out.Diagnostics = append(out.Diagnostics, d)
		}
	}

	out.Result.Handlers = buildRows(key, total, out.Ranking, plan, tracker, shares, caps, overflowID)
	out.Assignments = tracker.Log()

	if !out.Result.Conserved() {
		out.Diagnostics = append(out.Diagnostics, domain.NewDiagnostic(domain.DiagnosticGroupFailed, &key,
			"allocated %d of %d units", out.Result.Allocated(), total))
		a.log.Error().Str("group", key.String()).Int("allocated", out.Result.Allocated()).Int("total", total).Msg("Unit conservation violated")
	}

	return out
}

// distribute returns fractional amounts in rank order plus caps and spillover
func (a *Allocator) distribute(ranked []ranking.Ranked, key domain.GroupKey, shares ShareSource, pool int) (amounts, capFractions, capUnits []float64, overflow float64) {
	switch a.strategy {
	case domain.StrategyCheapest:
		winner := pickBest(ranked, func(o domain.HandlerOption) *float64 { return o.Cost }, true)
		return Concentrate(len(ranked), winner, pool), fill(len(ranked), 1), fill(len(ranked), float64(pool)), 0

	case domain.StrategyPerformance:
		winner := pickBest(ranked, func(o domain.HandlerOption) *float64 { return o.Quality }, false)
		return Concentrate(len(ranked), winner, pool), fill(len(ranked), 1), fill(len(ranked), float64(pool)), 0

	default:
		candidates := make([]Candidate, len(ranked))
		for i, r := range ranked {
			entry := lookup(shares, r.HandlerID, key.Lane)
			candidates[i] = Candidate{
				HandlerID:       r.HandlerID,
				HistoricalShare: entry.Share,
				PeriodsActive:   entry.PeriodsActive,
			}
		}
		res := Cascade(candidates, pool, a.growthFactor)
		return res.Amounts, res.Caps, res.CapUnits, res.Spillover
	}
}

// buildRows assembles handler rows: ranked handlers in rank order, then
// constraint-only handlers by id.
func buildRows(
	key domain.GroupKey,
	groupTotal int,
	ranked []ranking.Ranked,
	plan *ConstraintPlan,
	tracker *Tracker,
	shares ShareSource,
	caps map[string][2]float64,
	overflowID string,
) []domain.HandlerAllocation {
	byHandler := make(map[string][]string)
	for _, as := range tracker.Log() {
		byHandler[as.HandlerID] = append(byHandler[as.HandlerID], as.UnitID)
	}

	rows := make([]domain.HandlerAllocation, 0, len(ranked)+len(plan.Order))
	seen := make(map[string]bool)

	newRow := func(handlerID string, rank int) domain.HandlerAllocation {
		entry := lookup(shares, handlerID, key.Lane)
		ids := byHandler[handlerID]
		if ids == nil {
			ids = []string{}
		}
		row := domain.HandlerAllocation{
			HandlerID:       handlerID,
			Rank:            rank,
			UnitCount:       len(ids),
			UnitIDs:         ids,
			HistoricalShare: entry.Share,
			HasHistory:      !entry.IsNew(),
			ConstraintIDs:   plan.ConstraintIDs[handlerID],
		}
		if c, ok := caps[handlerID]; ok {
			row.Cap, row.CapUnits = c[0], c[1]
		}
		_, pre := plan.Preassigned[handlerID]
		switch {
		case pre && rank > 0:
			row.Source = domain.SourceMixed
		case pre:
			row.Source = domain.SourceConstraint
		default:
			row.Source = domain.SourceCascade
		}
		row.Overflow = handlerID == overflowID
		return row
	}

	for _, r := range ranked {
		rows = append(rows, newRow(r.HandlerID, r.Rank))
		seen[r.HandlerID] = true
	}

	var constrained []string
	for _, h := range plan.Order {
		if !seen[h] {
			constrained = append(constrained, h)
		}
	}
	sort.Strings(constrained)
	for _, h := range constrained {
		rows = append(rows, newRow(h, 0))
	}

	for i := range rows {
		rows[i].Notes = Explain(rows[i], groupTotal)
	}

	return rows
}

// Explain renders the audit note for a handler row against the group total
func Explain(row domain.HandlerAllocation, groupTotal int) string {
	newShare := 0.0
	if groupTotal > 0 {
		newShare = float64(row.UnitCount) / float64(groupTotal)
	}

	var head string
	switch {
	case row.Rank > 0 && len(row.ConstraintIDs) > 0:
		head = fmt.Sprintf("Rank #%d + constraint", row.Rank)
	case row.Rank > 0:
		head = fmt.Sprintf("Rank #%d", row.Rank)
	default:
		head = "Constraint"
	}

	historical := "new"
	if row.HasHistory {
		historical = formatPct(row.HistoricalShare)
	}

	note := fmt.Sprintf("%s | Historical: %s → New: %s", head, historical, formatPct(newShare))
	if row.HasHistory {
		note += " | Change: " + changeArrow(newShare-row.HistoricalShare)
	}
	if row.Overflow {
		note += " | Overflow"
	}
	return note
}

func formatPct(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

func changeArrow(delta float64) string {
	switch {
	case delta > 0.001:
		return "↑"
	case delta < -0.001:
		return "↓"
	default:
		return "→"
	}
}

func lookup(shares ShareSource, handlerID, lane string) history.ShareEntry {
	if shares == nil {
		return history.ShareEntry{HandlerID: handlerID, Lane: lane}
	}
	return shares.Lookup(handlerID, lane)
}

// pickBest returns the index of the best value in rank order; missing values never win
// unless every value is missing, in which case the top-ranked handler wins.
func pickBest(ranked []ranking.Ranked, field func(domain.HandlerOption) *float64, lowest bool) int {
	best := -1
	bestVal := math.Inf(1)
	if !lowest {
		bestVal = math.Inf(-1)
	}
	for i, r := range ranked {
		v := field(r.Option)
		if v == nil {
			continue
		}
		if (lowest && *v < bestVal) || (!lowest && *v > bestVal) {
			best, bestVal = i, *v
		}
	}
	if best < 0 && len(ranked) > 0 {
		return 0
	}
	return best
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
