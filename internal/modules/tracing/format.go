package tracing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/tender/internal/domain"
)

// DefaultMaxSources is how many gain sources are listed before the rest collapse
const DefaultMaxSources = 5

// FormatOptions controls movement rendering
type FormatOptions struct {
	MaxSources  int
	ShowUnitIDs bool
}

// Source is one origin a handler gained units from
type Source struct {
	HandlerID string `json:"handler_id"`
	Count     int    `json:"count"`
}

// SortedSources returns gains by count descending, then handler id
func SortedSources(rec domain.MovementRecord) []Source {
	sources := make([]Source, 0, len(rec.GainedFrom))
	for h, n := range rec.GainedFrom {
		if n > 0 {
			sources = append(sources, Source{HandlerID: h, Count: n})
		}
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Count != sources[j].Count {
			return sources[i].Count > sources[j].Count
		}
		return sources[i].HandlerID < sources[j].HandlerID
	})
	return sources
}

// Format renders a record as "Had 4 → From A (+8) + B (+3), Lost 2 → Now 13".
// A record where nothing moved renders as "Had 5 (kept all) → Now 5".
func Format(rec domain.MovementRecord, opts FormatOptions) string {
	maxSources := opts.MaxSources
	if maxSources <= 0 {
		maxSources = DefaultMaxSources
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Had %d", rec.StartCount)
	if opts.ShowUnitIDs && len(rec.StartIDs) > 0 {
		fmt.Fprintf(&b, " [%s]", preview(rec.StartIDs, 3, true))
	}

	if rec.KeptAll() {
		b.WriteString(" (kept all)")
	} else {
		var changes []string

		if sources := SortedSources(rec); len(sources) > 0 {
			shown := sources
			if len(shown) > maxSources {
				shown = sources[:maxSources]
			}
			parts := make([]string, 0, len(shown)+1)
			for _, s := range shown {
				part := fmt.Sprintf("%s (+%d)", s.HandlerID, s.Count)
				if opts.ShowUnitIDs {
					part += fmt.Sprintf(" [%s]", preview(rec.GainedIDs[s.HandlerID], 2, false))
				}
				parts = append(parts, part)
			}
			if rest := sources[len(shown):]; len(rest) > 0 {
				n := 0
				for _, s := range rest {
					n += s.Count
				}
				parts = append(parts, fmt.Sprintf("%d others (+%d)", len(rest), n))
			}
			changes = append(changes, "From "+strings.Join(parts, " + "))
		}

		if rec.LostCount > 0 {
			lost := fmt.Sprintf("Lost %d", rec.LostCount)
			if opts.ShowUnitIDs && len(rec.LostIDs) > 0 {
				lost += fmt.Sprintf(" [%s]", preview(rec.LostIDs, 2, true))
			}
			changes = append(changes, lost)
		}

		if len(changes) > 0 {
			b.WriteString(" → ")
			b.WriteString(strings.Join(changes, ", "))
		}
	}

	fmt.Fprintf(&b, " → Now %d", rec.EndCount)
	return b.String()
}

// preview lists the first n ids, marking truncation
func preview(ids []string, n int, withTotal bool) string {
	if len(ids) <= n {
		return strings.Join(ids, ", ")
	}
	s := strings.Join(ids[:n], ", ") + "..."
	if withTotal {
		s += fmt.Sprintf(" (%d total)", len(ids))
	}
	return s
}
