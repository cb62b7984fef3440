// Package grouping turns flat unit rows into normalized allocation groups.
// It enforces the zero-sum rule (a unit appears under one handler per period and lane)
// and reconciles unit counts with unit id sets.
package grouping

import (
	"encoding/json"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/domain"
)

// RawRow is an input row as it arrives over the wire, before numeric coercion
type RawRow struct {
	UnitID    string           `json:"unit_id"`
	HandlerID string           `json:"handler_id"`
	Lane      string           `json:"lane"`
	Period    int              `json:"period"`
	Category  string           `json:"category"`
	Facility  domain.Dimension `json:"facility"`
	Terminal  domain.Dimension `json:"terminal"`
	Port      domain.Dimension `json:"port"`
	SSL       domain.Dimension `json:"ssl"`
	Vessel    domain.Dimension `json:"vessel"`
	Cost      json.RawMessage  `json:"cost"`
	Quality   json.RawMessage  `json:"quality"`
}

// Key returns the row's group key
func (r RawRow) Key() domain.GroupKey {
	return domain.GroupKey{
		Lane:     r.Lane,
		Period:   r.Period,
		Category: r.Category,
		Facility: r.Facility,
		Terminal: r.Terminal,
		Port:     r.Port,
		SSL:      r.SSL,
		Vessel:   r.Vessel,
	}
}

// Result is the outcome of grouping
type Result struct {
	Groups      []domain.Group
	Diagnostics []domain.Diagnostic
	Duplicates  int
}

// Builder groups rows
type Builder struct {
	log zerolog.Logger
}

// NewBuilder creates a builder
func NewBuilder(log zerolog.Logger) *Builder {
	return &Builder{log: log.With().Str("component", "grouping").Logger()}
}

// Decode coerces raw rows into typed rows. Rows without a unit or handler id are dropped and flagged.
func (b *Builder) Decode(raw []RawRow) ([]domain.UnitRow, []domain.Diagnostic) {
	rows := make([]domain.UnitRow, 0, len(raw))
	var diags []domain.Diagnostic

	for i, r := range raw {
		key := r.Key()
		if r.UnitID == "" || r.HandlerID == "" {
			d := domain.NewDiagnostic(domain.DiagnosticDataIntegrity, &key, "row %d dropped: unit id and handler id are required", i)
			d.HandlerID = r.HandlerID
			d.UnitID = r.UnitID
			diags = append(diags, d)
			continue
		}

		cost, costCoerced := ParseNumber(r.Cost)
		if costCoerced {
			d := domain.NewDiagnostic(domain.DiagnosticNumericCoercion, &key, "row %d: cost %s is not numeric, using 0", i, string(r.Cost))
			d.HandlerID, d.UnitID = r.HandlerID, r.UnitID
			diags = append(diags, d)
		}

		quality, qualityCoerced := ParseNumber(r.Quality)
		if qualityCoerced {
			d := domain.NewDiagnostic(domain.DiagnosticNumericCoercion, &key, "row %d: quality %s is not numeric, using 0", i, string(r.Quality))
			d.HandlerID, d.UnitID = r.HandlerID, r.UnitID
			diags = append(diags, d)
		}
		quality, clamped := normalizeQuality(quality)
		if clamped {
			d := domain.NewDiagnostic(domain.DiagnosticNumericCoercion, &key, "row %d: quality %s clamped to [0, 1]", i, string(r.Quality))
			d.HandlerID, d.UnitID = r.HandlerID, r.UnitID
			diags = append(diags, d)
		}

		rows = append(rows, domain.UnitRow{
			UnitID:    r.UnitID,
			Key:       key,
			HandlerID: r.HandlerID,
			Cost:      cost,
			Quality:   quality,
		})
	}

	return rows, diags
}

// Build groups typed rows by key and handler, in row order, then normalizes.
// A handler's cost and quality come from its first row in the group that carries them.
func (b *Builder) Build(rows []domain.UnitRow) Result {
	index := make(map[domain.GroupKey]int)
	var groups []domain.Group

	for _, r := range rows {
		gi, ok := index[r.Key]
		if !ok {
			gi = len(groups)
			index[r.Key] = gi
			groups = append(groups, domain.Group{Key: r.Key})
		}
		g := &groups[gi]

		oi := -1
		for i := range g.Options {
			if g.Options[i].HandlerID == r.HandlerID {
				oi = i
				break
			}
		}
		if oi < 0 {
			g.Options = append(g.Options, domain.HandlerOption{HandlerID: r.HandlerID})
			oi = len(g.Options) - 1
		}
		o := &g.Options[oi]
		o.UnitIDs = append(o.UnitIDs, r.UnitID)
		o.UnitCount++
		if o.Cost == nil && r.Cost != nil {
			c := *r.Cost
			o.Cost = &c
		}
		if o.Quality == nil && r.Quality != nil {
			q := *r.Quality
			o.Quality = &q
		}
	}

	return b.Normalize(groups)
}

// Normalize enforces the zero-sum rule across groups and recounts every option.
// The first occurrence of a unit within a (period, lane) wins; later ones are dropped
// and flagged. Options for the same handler are merged. Output is sorted by group key,
// options by handler id. The input is not modified.
func (b *Builder) Normalize(groups []domain.Group) Result {
	owners := make(map[domain.LaneKey]map[string]string)
	merged := make(map[domain.GroupKey]*domain.Group)
	var order []domain.GroupKey
	var diags []domain.Diagnostic
	duplicates := 0

	for _, g := range groups {
		key := g.Key
		target, ok := merged[key]
		if !ok {
			target = &domain.Group{Key: key}
			merged[key] = target
			order = append(order, key)
		}
		lane := key.LaneKey()
		if owners[lane] == nil {
			owners[lane] = make(map[string]string)
		}

		for _, o := range g.Options {
			if o.UnitCount != len(o.UnitIDs) {
				d := domain.NewDiagnostic(domain.DiagnosticDataIntegrity, &key,
					"handler %s reported %d units but listed %d unit ids; recounted from ids", o.HandlerID, o.UnitCount, len(o.UnitIDs))
				d.HandlerID = o.HandlerID
				diags = append(diags, d)
			}

			kept := make([]string, 0, len(o.UnitIDs))
			for _, id := range o.UnitIDs {
				if owner, seen := owners[lane][id]; seen {
					duplicates++
					d := domain.NewDiagnostic(domain.DiagnosticDataIntegrity, &key,
						"unit %s already held by %s in week %d on %s; dropped duplicate under %s", id, owner, lane.Period, lane.Lane, o.HandlerID)
					d.HandlerID = o.HandlerID
					d.UnitID = id
					diags = append(diags, d)
					continue
				}
				owners[lane][id] = o.HandlerID
				kept = append(kept, id)
			}

			mergeOption(target, o, kept)
		}
	}

	out := make([]domain.Group, 0, len(order))
	for _, key := range order {
		g := merged[key]
		sort.SliceStable(g.Options, func(i, j int) bool {
			return g.Options[i].HandlerID < g.Options[j].HandlerID
		})
		out = append(out, *g)
	}
	domain.SortGroups(out)

	if duplicates > 0 {
		b.log.Warn().Int("duplicates", duplicates).Msg("Removed duplicate units violating the zero-sum rule")
	}

	return Result{Groups: out, Diagnostics: diags, Duplicates: duplicates}
}

func mergeOption(g *domain.Group, o domain.HandlerOption, ids []string) {
	for i := range g.Options {
		existing := &g.Options[i]
		if existing.HandlerID != o.HandlerID {
			continue
		}
		existing.UnitIDs = append(existing.UnitIDs, ids...)
		existing.UnitCount = len(existing.UnitIDs)
		if existing.Cost == nil {
			existing.Cost = o.Cost
		}
		if existing.Quality == nil {
			existing.Quality = o.Quality
		}
		return
	}
	g.Options = append(g.Options, domain.HandlerOption{
		HandlerID: o.HandlerID,
		UnitCount: len(ids),
		UnitIDs:   ids,
		Cost:      o.Cost,
		Quality:   o.Quality,
	})
}
