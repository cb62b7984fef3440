// Package rounding converts fractional allocations into integer unit counts.
// Every integer split of a group's units goes through a Strategy from this package.
package rounding

import (
	"fmt"
	"math"
	"sort"
)

// Kind names a rounding strategy
type Kind string

const (
	// KindLargestRemainder is the Hare-Niemeyer method
	KindLargestRemainder Kind = "largest_remainder"
)

// snapEpsilon absorbs float drift so 2.9999999999 floors to 3
const snapEpsilon = 1e-9

// Strategy turns fractional values that sum to total into integers that sum to total.
// Ties are broken by index, so callers pass values in rank order.
type Strategy interface {
	Kind() Kind
	Round(values []float64, total int) ([]int, error)
}

// ForKind returns the strategy registered under kind
func ForKind(kind Kind) (Strategy, error) {
	switch kind {
	case KindLargestRemainder, "":
		return LargestRemainder{}, nil
	default:
		return nil, fmt.Errorf("unknown rounding strategy %q", kind)
	}
}

// LargestRemainder floors every value and hands the missing units, one each,
// to the largest fractional remainders.
type LargestRemainder struct{}

// Kind implements Strategy
func (LargestRemainder) Kind() Kind { return KindLargestRemainder }

// Round implements Strategy
func (lr LargestRemainder) Round(values []float64, total int) ([]int, error) {
	return lr.RoundCapped(values, nil, total)
}

// RoundCapped is Round with per-entry ceilings. Missing units go first, in
// remainder order, to entries that stay within their cap after the bump; the
// rest follow plain remainder order. No entry moves more than one unit off its
// floor. A nil caps slice means no ceilings.
func (LargestRemainder) RoundCapped(values, caps []float64, total int) ([]int, error) {
	if caps != nil && len(caps) != len(values) {
		return nil, fmt.Errorf("got %d caps for %d values", len(caps), len(values))
	}
	if total < 0 {
		return nil, fmt.Errorf("total must be non-negative, got %d", total)
	}
	if len(values) == 0 {
		if total != 0 {
			return nil, fmt.Errorf("cannot distribute %d units over zero entries", total)
		}
		return []int{}, nil
	}

	out := make([]int, len(values))
	remainders := make([]float64, len(values))
	floorSum := 0
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < -snapEpsilon {
			return nil, fmt.Errorf("value %d is not a non-negative finite number: %v", i, v)
		}
		if v < 0 {
			v = 0
		}
		f := math.Floor(v + snapEpsilon)
		out[i] = int(f)
		remainders[i] = math.Max(v-f, 0)
		floorSum += out[i]
	}

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}

	diff := total - floorSum
	switch {
	case diff > 0:
		// Largest remainder first, lower index wins ties
		sort.SliceStable(order, func(a, b int) bool {
			return remainders[order[a]] > remainders[order[b]]
		})
		bumped := make([]bool, len(values))
		if caps != nil {
			for _, i := range order {
				if diff == 0 {
					break
				}
				if float64(out[i]+1) <= caps[i]+snapEpsilon {
					out[i]++
					bumped[i] = true
					diff--
				}
			}
		}
		for k := 0; diff > 0; k++ {
			i := order[k%len(order)]
			if bumped[i] && k < len(order) {
				continue
			}
			out[i]++
			diff--
		}
	case diff < 0:
		// Inputs overshot the total. Take back from the smallest remainders, skipping zeros.
		sort.SliceStable(order, func(a, b int) bool {
			return remainders[order[a]] < remainders[order[b]]
		})
		for k := 0; diff < 0 && k < len(order)*(floorSum+1); k++ {
			i := order[k%len(order)]
			if out[i] > 0 {
				out[i]--
				diff++
			}
		}
	}

	return out, nil
}

// Capped is implemented by strategies that can honour per-entry ceilings
type Capped interface {
	RoundCapped(values, caps []float64, total int) ([]int, error)
}

// RoundWithin rounds with caps when s supports them, and plainly otherwise
func RoundWithin(s Strategy, values, caps []float64, total int) ([]int, error) {
	if c, ok := s.(Capped); ok {
		return c.RoundCapped(values, caps, total)
	}
	return s.Round(values, total)
}

// RoundTarget converts a fraction of total into a unit count, half away from zero,
// clamped to [0, total].
func RoundTarget(fraction float64, total int) int {
	if math.IsNaN(fraction) || fraction <= 0 || total <= 0 {
		return 0
	}
	n := int(math.Round(fraction * float64(total)))
	if n > total {
		return total
	}
	return n
}
