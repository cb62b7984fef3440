// Package tracing follows individual units from a baseline to a new allocation
// and explains, per handler and group, where its units came from and went.
package tracing

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/domain"
)

// Origin is where a unit sat in the baseline
type Origin struct {
	HandlerID string
	Key       domain.GroupKey
}

// OriginMap resolves a unit id to its baseline origin
type OriginMap map[string]Origin

// Report is the output of one trace
type Report struct {
	Records     []domain.MovementRecord `json:"records" msgpack:"records"`
	Formatted   []string                `json:"formatted" msgpack:"formatted"`
	Summary     Summary                 `json:"summary" msgpack:"summary"`
	Duplicates  int                     `json:"duplicates" msgpack:"duplicates"`
	Diagnostics []domain.Diagnostic     `json:"diagnostics,omitempty" msgpack:"diagnostics,omitempty"`
}

// Tracer builds movement records. It keeps no state between traces.
type Tracer struct {
	format FormatOptions
	log    zerolog.Logger
}

// NewTracer creates a tracer that renders records with opts
func NewTracer(opts FormatOptions, log zerolog.Logger) *Tracer {
	return &Tracer{
		format: opts,
		log:    log.With().Str("component", "tracer").Logger(),
	}
}

// BuildOriginMap indexes every baseline unit. The first occurrence of a unit wins;
// later ones are reported as data_integrity diagnostics.
func BuildOriginMap(baseline *domain.BaselineSnapshot) (OriginMap, []domain.Diagnostic) {
	origins := make(OriginMap)
	if baseline == nil {
		return origins, nil
	}

	var diags []domain.Diagnostic
	baseline.Each(func(key domain.GroupKey, handlerID string, unitIDs []string) {
		for _, id := range unitIDs {
			if first, seen := origins[id]; seen {
				k := key
				d := domain.NewDiagnostic(domain.DiagnosticDataIntegrity, &k,
					"unit %s appears more than once in the baseline; keeping %s in %s", id, first.HandlerID, first.Key)
				d.UnitID = id
				d.HandlerID = handlerID
				diags = append(diags, d)
				continue
			}
			origins[id] = Origin{HandlerID: handlerID, Key: key}
		}
	})
	return origins, diags
}

// Trace compares current against baseline. Every handler present in a current
// group gets a record, as does every baseline handler of that group that no
// longer holds units. A nil baseline treats every unit as unknown.
func (t *Tracer) Trace(current []domain.AllocationResult, baseline *domain.BaselineSnapshot) *Report {
	origins, diags := BuildOriginMap(baseline)
	report := &Report{
		Records:     make([]domain.MovementRecord, 0),
		Formatted:   make([]string, 0),
		Duplicates:  len(diags),
		Diagnostics: diags,
	}

	if len(diags) > 0 {
		t.log.Warn().Int("duplicates", len(diags)).Msg("Baseline contains duplicate units, first occurrence kept")
	}

	for _, group := range current {
		starts := startIDs(group.Key, baseline, origins)

		// Units of a group missing from the baseline have no origin, even
		// when their ids appear in another baseline group.
		groupOrigins := origins
		if !inBaseline(group.Key, baseline) {
			groupOrigins = nil
		}

		present := make(map[string]bool, len(group.Handlers))
		for _, h := range group.Handlers {
			present[h.HandlerID] = true
			report.Records = append(report.Records, traceHandler(group.Key, h.HandlerID, h.UnitIDs, starts[h.HandlerID], groupOrigins))
		}

		var gone []string
		for handlerID := range starts {
			if !present[handlerID] {
				gone = append(gone, handlerID)
			}
		}
		sort.Strings(gone)
		for _, handlerID := range gone {
			report.Records = append(report.Records, traceHandler(group.Key, handlerID, nil, starts[handlerID], origins))
		}
	}

	for _, r := range report.Records {
		report.Formatted = append(report.Formatted, Format(r, t.format))
	}
	report.Summary = Summarize(report.Records)

	t.log.Debug().
		Int("records", len(report.Records)).
		Int("kept", report.Summary.Kept).
		Int("moved", report.Summary.Moved).
		Int("unknown", report.Summary.Unknown).
		Msg("Trace complete")

	return report
}

func inBaseline(key domain.GroupKey, baseline *domain.BaselineSnapshot) bool {
	if baseline == nil {
		return false
	}
	_, ok := baseline.Group(key)
	return ok
}

// startIDs lists, per handler, the baseline units of key whose origin is that handler in that group
func startIDs(key domain.GroupKey, baseline *domain.BaselineSnapshot, origins OriginMap) map[string][]string {
	starts := make(map[string][]string)
	if baseline == nil {
		return starts
	}
	group, ok := baseline.Group(key)
	if !ok {
		return starts
	}

	seen := make(map[string]bool)
	for _, h := range group.Handlers {
		for _, id := range h.UnitIDs {
			if seen[id] {
				continue
			}
			if o, ok := origins[id]; ok && o.HandlerID == h.HandlerID && o.Key == key {
				seen[id] = true
				starts[h.HandlerID] = append(starts[h.HandlerID], id)
			}
		}
	}
	return starts
}

func traceHandler(key domain.GroupKey, handlerID string, current, start []string, origins OriginMap) domain.MovementRecord {
	rec := domain.MovementRecord{
		HandlerID:  handlerID,
		Key:        key,
		StartCount: len(start),
		StartIDs:   append([]string(nil), start...),
		GainedFrom: make(map[string]int),
		GainedIDs:  make(map[string][]string),
		EndCount:   len(current),
	}

	kept := make(map[string]bool, len(current))
	for _, id := range current {
		o, ok := origins[id]
		switch {
		case !ok:
			rec.GainedFrom[domain.UnknownHandler]++
			rec.GainedIDs[domain.UnknownHandler] = append(rec.GainedIDs[domain.UnknownHandler], id)
		case o.HandlerID == handlerID && o.Key == key:
			kept[id] = true
			rec.KeptIDs = append(rec.KeptIDs, id)
		default:
			rec.GainedFrom[o.HandlerID]++
			rec.GainedIDs[o.HandlerID] = append(rec.GainedIDs[o.HandlerID], id)
		}
	}
	rec.KeptCount = len(rec.KeptIDs)

	for _, id := range start {
		if !kept[id] {
			rec.LostIDs = append(rec.LostIDs, id)
		}
	}
	rec.LostCount = len(rec.LostIDs)

	return rec
}
