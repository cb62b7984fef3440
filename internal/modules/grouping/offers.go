package grouping

import (
	"encoding/json"
	"sort"

	"github.com/aristath/tender/internal/domain"
)

// Offer is a handler quoting for a group without holding any of its units yet
type Offer struct {
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

// Key returns the offer's group key
func (o Offer) Key() domain.GroupKey {
	return RawRow{
		Lane:     o.Lane,
		Period:   o.Period,
		Category: o.Category,
		Facility: o.Facility,
		Terminal: o.Terminal,
		Port:     o.Port,
		SSL:      o.SSL,
		Vessel:   o.Vessel,
	}.Key()
}

// ApplyOffers adds zero-unit options for offering handlers to existing groups.
// A handler already present keeps its units; offered cost and quality replace its
// own, except where the offer leaves a value out or it had to be coerced.
// Offers for groups with no units are ignored and flagged. groups is modified in place.
func (b *Builder) ApplyOffers(groups []domain.Group, offers []Offer) []domain.Diagnostic {
	index := make(map[domain.GroupKey]int, len(groups))
	for i, g := range groups {
		index[g.Key] = i
	}

	var diags []domain.Diagnostic
	touched := make(map[int]bool)
	for i, o := range offers {
		key := o.Key()
		if o.HandlerID == "" {
			diags = append(diags, domain.NewDiagnostic(domain.DiagnosticDataIntegrity, &key, "offer %d dropped: handler id is required", i))
			continue
		}
		gi, ok := index[key]
		if !ok {
			d := domain.NewDiagnostic(domain.DiagnosticDataIntegrity, &key, "offer %d from %s ignored: group has no units", i, o.HandlerID)
			d.HandlerID = o.HandlerID
			diags = append(diags, d)
			continue
		}

		cost, costCoerced := ParseNumber(o.Cost)
		if costCoerced {
			d := domain.NewDiagnostic(domain.DiagnosticNumericCoercion, &key, "offer %d: cost %s is not numeric, using 0", i, string(o.Cost))
			d.HandlerID = o.HandlerID
			diags = append(diags, d)
		}
		quality, qualityCoerced := ParseNumber(o.Quality)
		quality, clamped := normalizeQuality(quality)
		if qualityCoerced || clamped {
			d := domain.NewDiagnostic(domain.DiagnosticNumericCoercion, &key, "offer %d: quality %s coerced", i, string(o.Quality))
			d.HandlerID = o.HandlerID
			diags = append(diags, d)
		}

		g := &groups[gi]
		if existing := findOption(g, o.HandlerID); existing != nil {
			existing.Cost = pickOffered(existing.Cost, cost, costCoerced)
			existing.Quality = pickOffered(existing.Quality, quality, qualityCoerced)
			continue
		}
		g.Options = append(g.Options, domain.HandlerOption{
			HandlerID: o.HandlerID,
			UnitIDs:   []string{},
			Cost:      cost,
			Quality:   quality,
		})
		touched[gi] = true
	}

	for gi := range touched {
		opts := groups[gi].Options
		sort.SliceStable(opts, func(i, j int) bool {
			return opts[i].HandlerID < opts[j].HandlerID
		})
	}

	return diags
}

// pickOffered prefers a clean offered value over the current one
func pickOffered(current, offered *float64, coerced bool) *float64 {
	if offered == nil || (coerced && current != nil) {
		return current
	}
	return offered
}

func findOption(g *domain.Group, handlerID string) *domain.HandlerOption {
	for i := range g.Options {
		if g.Options[i].HandlerID == handlerID {
			return &g.Options[i]
		}
	}
	return nil
}
