// Package ranking orders a group's candidate handlers by a weighted cost/quality objective.
package ranking

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/tender/internal/domain"
)

// Ranked is one handler's position in a group's order. Lower Objective is better.
type Ranked struct {
	HandlerID         string               `json:"handler_id"`
	Rank              int                  `json:"rank"` // 1-based
	Objective         float64              `json:"objective"`
	NormalizedCost    float64              `json:"normalized_cost"`
	NormalizedQuality float64              `json:"normalized_quality"`
	CostMissing       bool                 `json:"cost_missing"`
	QualityMissing    bool                 `json:"quality_missing"`
	Option            domain.HandlerOption `json:"-" msgpack:"-"`
}

// Ranker scores handlers. Weights are expected to sum to 1.
type Ranker struct {
	costWeight    float64
	qualityWeight float64
}

// NewRanker creates a ranker. Weights that do not sum to 1 are rescaled;
// two zero weights fall back to the 0.7/0.3 default.
func NewRanker(costWeight, qualityWeight float64) *Ranker {
	sum := costWeight + qualityWeight
	if costWeight < 0 || qualityWeight < 0 || sum <= 0 {
		return &Ranker{costWeight: 0.7, qualityWeight: 0.3}
	}
	return &Ranker{costWeight: costWeight / sum, qualityWeight: qualityWeight / sum}
}

// Weights returns the effective weights
func (r *Ranker) Weights() (cost, quality float64) {
	return r.costWeight, r.qualityWeight
}

// Rank returns options in ascending objective order, ties broken by handler id.
// An empty input yields an empty order.
func (r *Ranker) Rank(options []domain.HandlerOption) []Ranked {
	if len(options) == 0 {
		return []Ranked{}
	}

	costs := normalize(options, func(o domain.HandlerOption) *float64 { return o.Cost })
	qualities := normalize(options, func(o domain.HandlerOption) *float64 { return o.Quality })

	ranked := make([]Ranked, len(options))
	for i, o := range options {
		costTerm := 1.0
		if costs[i] != nil {
			costTerm = *costs[i]
		}
		qualityTerm := 1.0
		if qualities[i] != nil {
			qualityTerm = 1 - *qualities[i]
		}

		ranked[i] = Ranked{
			HandlerID:      o.HandlerID,
			Objective:      r.costWeight*costTerm + r.qualityWeight*qualityTerm,
			CostMissing:    costs[i] == nil,
			QualityMissing: qualities[i] == nil,
			Option:         o,
		}
		if costs[i] != nil {
			ranked[i].NormalizedCost = *costs[i]
		} else {
			ranked[i].NormalizedCost = 1
		}
		if qualities[i] != nil {
			ranked[i].NormalizedQuality = *qualities[i]
		}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Objective != ranked[b].Objective {
			return ranked[a].Objective < ranked[b].Objective
		}
		return ranked[a].HandlerID < ranked[b].HandlerID
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	return ranked
}

// normalize min-max scales the present values of one field to [0,1].
// All-equal values map to 0. Missing values stay nil.
func normalize(options []domain.HandlerOption, field func(domain.HandlerOption) *float64) []*float64 {
	present := make([]float64, 0, len(options))
	for _, o := range options {
		if v := field(o); v != nil {
			present = append(present, *v)
		}
	}

	out := make([]*float64, len(options))
	if len(present) == 0 {
		return out
	}

	lo, hi := floats.Min(present), floats.Max(present)
	span := hi - lo
	for i, o := range options {
		v := field(o)
		if v == nil {
			continue
		}
		n := 0.0
		if span > 0 {
			n = (*v - lo) / span
		}
		out[i] = &n
	}
	return out
}
