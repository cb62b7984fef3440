package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is returned when run parameters cannot be used
var ErrInvalidParams = errors.New("invalid allocation parameters")

// Strategy selects how the remaining pool is distributed
type Strategy string

const (
	StrategyCascading   Strategy = "cascading"
	StrategyCheapest    Strategy = "cheapest"
	StrategyPerformance Strategy = "performance"
)

// Params are the tunable inputs of one run
type Params struct {
	CostWeight      float64  `json:"cost_weight"`
	QualityWeight   float64  `json:"quality_weight"`
	GrowthFactor    float64  `json:"growth_factor"`
	LookbackPeriods int      `json:"lookback_periods"`
	CurrentPeriod   int      `json:"current_period"` // 0 means the ISO week of the run
	Strategy        Strategy `json:"strategy"`
	Rounding        string   `json:"rounding"`
}

// DefaultParams returns the stock parameters
func DefaultParams() Params {
	return Params{
		CostWeight:      0.7,
		QualityWeight:   0.3,
		GrowthFactor:    0.30,
		LookbackPeriods: 5,
		Strategy:        StrategyCascading,
		Rounding:        "largest_remainder",
	}
}

// Validate rejects unusable values and rescales weights to sum to 1
func (p *Params) Validate() error {
	if !isFinite(p.CostWeight) || !isFinite(p.QualityWeight) || p.CostWeight < 0 || p.QualityWeight < 0 {
		return fmt.Errorf("%w: weights must be finite and non-negative", ErrInvalidParams)
	}
	sum := p.CostWeight + p.QualityWeight
	if sum == 0 {
		return fmt.Errorf("%w: weights cannot both be zero", ErrInvalidParams)
	}
	if math.Abs(sum-1) > 1e-9 {
		p.CostWeight /= sum
		p.QualityWeight /= sum
	}
	if math.IsNaN(p.GrowthFactor) || p.GrowthFactor < 0 || p.GrowthFactor > 1 {
		return fmt.Errorf("%w: growth factor must be within [0, 1]", ErrInvalidParams)
	}
	if p.LookbackPeriods < 1 {
		return fmt.Errorf("%w: lookback periods must be positive", ErrInvalidParams)
	}
	switch p.Strategy {
	case "":
		p.Strategy = StrategyCascading
	case StrategyCascading, StrategyCheapest, StrategyPerformance:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidParams, p.Strategy)
	}
	if p.Rounding == "" {
		p.Rounding = "largest_remainder"
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
