package allocation

// remainingEpsilon treats float residue below this as fully allocated
const remainingEpsilon = 1e-9

// Candidate is a ranked handler entering the cascade
type Candidate struct {
	HandlerID       string
	HistoricalShare float64
	PeriodsActive   int
}

// IsNew reports whether the handler has no activity in the lookback window
func (c Candidate) IsNew() bool {
	return c.PeriodsActive == 0
}

// CapFraction returns the maximum fraction of the pool the handler may take before overflow:
// growthFactor for new handlers, share × (1 + growthFactor) otherwise.
func CapFraction(c Candidate, growthFactor float64) float64 {
	if c.IsNew() {
		return growthFactor
	}
	return c.HistoricalShare * (1 + growthFactor)
}

// CascadeResult is the fractional split of a pool, aligned with the candidate order
type CascadeResult struct {
	Amounts   []float64
	Caps      []float64 // fraction of the pool
	CapUnits  []float64
	Overflow  bool
	Spillover float64 // units pushed onto the top-ranked handler above its cap
	Remaining float64 // non-zero only when there were no candidates
}

// Cascade distributes pool units over candidates in rank order, capping each
// handler at CapFraction × pool. Leftovers after both passes go to the top-ranked handler.
func Cascade(candidates []Candidate, pool int, growthFactor float64) CascadeResult {
	caps := make([]float64, len(candidates))
	capUnits := make([]float64, len(candidates))
	for i, c := range candidates {
		caps[i] = CapFraction(c, growthFactor)
		capUnits[i] = caps[i] * float64(pool)
	}

	res := CascadeWithCaps(capUnits, pool)
	res.Caps = caps
	return res
}

// CascadeWithCaps runs the cascade against explicit unit caps (rank order).
func CascadeWithCaps(capUnits []float64, pool int) CascadeResult {
	amounts := make([]float64, len(capUnits))
	remaining := float64(pool)

	// First pass: each handler up to its cap
	for i, c := range capUnits {
		if remaining <= remainingEpsilon {
			break
		}
		take := c
		if take > remaining {
			take = remaining
		}
		if take < 0 {
			take = 0
		}
		amounts[i] = take
		remaining -= take
	}

	// Second pass: top up anyone still below cap
	if remaining > remainingEpsilon {
		for i, c := range capUnits {
			if remaining <= remainingEpsilon {
				break
			}
			headroom := c - amounts[i]
			if headroom <= 0 {
				continue
			}
			if headroom > remaining {
				headroom = remaining
			}
			amounts[i] += headroom
			remaining -= headroom
		}
	}

	res := CascadeResult{
		Amounts:  amounts,
		CapUnits: append([]float64(nil), capUnits...),
	}

	// Overflow: everyone is at cap, the top-ranked handler absorbs the rest
	if remaining > remainingEpsilon {
		if len(amounts) == 0 {
			res.Remaining = remaining
			return res
		}
		amounts[0] += remaining
		res.Overflow = true
		res.Spillover = remaining
	}

	return res
}

// Concentrate gives the whole pool to the candidate at index winner.
// It backs the single-winner strategies.
func Concentrate(n, winner, pool int) []float64 {
	amounts := make([]float64, n)
	if winner >= 0 && winner < n {
		amounts[winner] = float64(pool)
	}
	return amounts
}
