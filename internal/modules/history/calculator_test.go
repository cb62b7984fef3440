package history

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tender/internal/domain"
)

func rec(handler, lane string, period, units int) domain.HistoryRecord {
	return domain.HistoryRecord{HandlerID: handler, Lane: lane, Period: period, UnitCount: units}
}

func TestCompute_SharesAndPeriodsActive(t *testing.T) {
	records := []domain.HistoryRecord{
		rec("A", "L1", 8, 10),
		rec("B", "L1", 8, 30),
		rec("A", "L1", 9, 20),
		rec("B", "L1", 10, 40),
		rec("C", "L2", 10, 5),
	}

	table := NewCalculator(zerolog.Nop()).Compute(records, 11, 5)

	assert.Equal(t, []int{8, 9, 10}, table.Periods)

	a := table.Lookup("A", "L1")
	assert.Equal(t, 30, a.Units)
	assert.Equal(t, 100, a.LaneUnits)
	assert.InDelta(t, 0.3, a.Share, 1e-9)
	assert.Equal(t, 2, a.PeriodsActive)
	assert.True(t, a.Defined)
	assert.False(t, a.IsNew())

	b := table.Lookup("B", "L1")
	assert.InDelta(t, 0.7, b.Share, 1e-9)

	c := table.Lookup("C", "L2")
	assert.InDelta(t, 1.0, c.Share, 1e-9)
}

func TestCompute_ExcludesCurrentAndFuturePeriods(t *testing.T) {
	records := []domain.HistoryRecord{
		rec("A", "L1", 4, 10),
		rec("B", "L1", 5, 10),
		rec("B", "L1", 6, 1000),
	}

	table := NewCalculator(zerolog.Nop()).Compute(records, 5, 5)

	assert.Equal(t, []int{4}, table.Periods)
	assert.InDelta(t, 1.0, table.Lookup("A", "L1").Share, 1e-9)
	assert.Zero(t, table.Lookup("B", "L1").Share)
	assert.True(t, table.Lookup("B", "L1").IsNew())
}

func TestCompute_LookbackWindow(t *testing.T) {
	var records []domain.HistoryRecord
	for p := 1; p <= 10; p++ {
		records = append(records, rec("A", "L1", p, 1))
	}
	records = append(records, rec("OLD", "L1", 2, 50))

	table := NewCalculator(zerolog.Nop()).Compute(records, 11, 3)

	assert.Equal(t, []int{8, 9, 10}, table.Periods)
	assert.InDelta(t, 1.0, table.Lookup("A", "L1").Share, 1e-9)
	assert.Equal(t, 3, table.Lookup("A", "L1").PeriodsActive)
	assert.True(t, table.Lookup("OLD", "L1").IsNew(), "volume outside the window does not count")
}

func TestCompute_DistinguishesNoHistoryFromZeroShare(t *testing.T) {
	records := []domain.HistoryRecord{
		rec("A", "L1", 1, 10),
		rec("B", "L1", 1, 0),
		rec("A", "EMPTY", 1, 0),
	}

	table := NewCalculator(zerolog.Nop()).Compute(records, 2, 5)

	zero := table.Lookup("B", "L1")
	assert.True(t, zero.Defined)
	assert.Zero(t, zero.Share)
	assert.True(t, zero.IsNew())

	none := table.Lookup("A", "EMPTY")
	assert.False(t, none.Defined, "lane without volume has no defined share")
	assert.Zero(t, none.Share)
	assert.False(t, table.LaneHasHistory("EMPTY"))

	unknown := table.Lookup("Z", "NOWHERE")
	assert.False(t, unknown.Defined)
	assert.Equal(t, 0, unknown.PeriodsActive)
}

func TestCompute_DefaultLookbackAndMalformedRecords(t *testing.T) {
	records := []domain.HistoryRecord{
		rec("A", "L1", 1, 5),
		rec("", "L1", 1, 5),
		rec("B", "L1", 1, -3),
	}

	table := NewCalculator(zerolog.Nop()).Compute(records, 2, 0)

	assert.InDelta(t, 1.0, table.Lookup("A", "L1").Share, 1e-9)
	assert.Equal(t, map[string]int{"L1": 5}, table.LaneTotals())
	require.Len(t, table.Entries(), 1)
}

func TestTrends(t *testing.T) {
	records := []domain.HistoryRecord{
		rec("A", "L1", 1, 10),
		rec("A", "L1", 2, 20),
		rec("A", "L1", 3, 30),
		rec("B", "L1", 1, 30),
		rec("B", "L1", 3, 10),
		rec("C", "L1", 2, 5),
		rec("C", "L1", 3, 5),
	}

	table := NewCalculator(zerolog.Nop()).Compute(records, 4, 5)
	trends := table.Trends()
	require.Len(t, trends, 3)

	a := trends[0]
	assert.Equal(t, "A", a.HandlerID)
	assert.Equal(t, []int{10, 20, 30}, a.Counts)
	assert.Equal(t, 60, a.Total)
	assert.InDelta(t, 20, a.MeanPerPeriod, 1e-9)
	assert.InDelta(t, 10, a.Slope, 1e-9)
	assert.Equal(t, TrendUp, a.Indicator)

	b := trends[1]
	assert.Equal(t, []int{1, 3}, b.ActivePeriods)
	assert.Equal(t, TrendUp, b.Indicator, "0 → 10 is growth")

	c := trends[2]
	assert.Equal(t, TrendFlat, c.Indicator)
}

func TestChangeIndicator(t *testing.T) {
	assert.Equal(t, TrendDown, changeIndicator([]int{10, 5}))
	assert.Equal(t, TrendFlat, changeIndicator([]int{1000, 1000}))
	assert.Equal(t, TrendFlat, changeIndicator([]int{7}))
	assert.Equal(t, TrendFlat, changeIndicator([]int{0, 0}))
}
