package history

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Volume change indicators
const (
	TrendUp   = "↑"
	TrendDown = "↓"
	TrendFlat = "→"
)

// trendThreshold is the relative change below which a move counts as flat
const trendThreshold = 0.001

// Trend is a handler's per-period volume on a lane across the window
type Trend struct {
	HandlerID     string  `json:"handler_id"`
	Lane          string  `json:"lane"`
	Counts        []int   `json:"counts"` // aligned with ShareTable.Periods
	ActivePeriods []int   `json:"active_periods"`
	Total         int     `json:"total"`
	MeanPerPeriod float64 `json:"mean_per_period"`
	Slope         float64 `json:"slope"` // units per period, least squares
	Indicator     string  `json:"indicator"`
}

// Trends returns per-(handler, lane) volume series ordered by lane then handler
func (t *ShareTable) Trends() []Trend {
	xs := make([]float64, len(t.Periods))
	for i, p := range t.Periods {
		xs[i] = float64(p)
	}

	out := make([]Trend, 0, len(t.counts))
	for key, counts := range t.counts {
		ys := make([]float64, len(counts))
		trend := Trend{
			HandlerID: key.HandlerID,
			Lane:      key.Lane,
			Counts:    append([]int(nil), counts...),
		}
		for i, n := range counts {
			ys[i] = float64(n)
			trend.Total += n
			if n > 0 {
				trend.ActivePeriods = append(trend.ActivePeriods, t.Periods[i])
			}
		}
		if len(ys) > 0 {
			trend.MeanPerPeriod = stat.Mean(ys, nil)
		}
		if len(ys) > 1 {
			_, trend.Slope = stat.LinearRegression(xs, ys, nil, false)
		}
		trend.Indicator = changeIndicator(counts)
		out = append(out, trend)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Lane != out[j].Lane {
			return out[i].Lane < out[j].Lane
		}
		return out[i].HandlerID < out[j].HandlerID
	})
	return out
}

// changeIndicator compares the last two periods of the window
func changeIndicator(counts []int) string {
	if len(counts) < 2 {
		return TrendFlat
	}
	prev, last := float64(counts[len(counts)-2]), float64(counts[len(counts)-1])
	if prev == 0 {
		if last > 0 {
			return TrendUp
		}
		return TrendFlat
	}
	change := (last - prev) / prev
	switch {
	case change > trendThreshold:
		return TrendUp
	case change < -trendThreshold:
		return TrendDown
	default:
		return TrendFlat
	}
}
