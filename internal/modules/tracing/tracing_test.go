package tracing

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tender/internal/domain"
)

var key1 = domain.GroupKey{Lane: "SEA-CHI", Period: 12, Category: "40HC", Facility: domain.Dim("BNA2")}

func result(key domain.GroupKey, handlers map[string][]string, order ...string) domain.AllocationResult {
	r := domain.AllocationResult{Key: key}
	for _, h := range order {
		ids := handlers[h]
		r.Handlers = append(r.Handlers, domain.HandlerAllocation{HandlerID: h, UnitCount: len(ids), UnitIDs: ids})
		r.Total += len(ids)
	}
	return r
}

func baselineOf(results ...domain.AllocationResult) *domain.BaselineSnapshot {
	return domain.NewBaselineSnapshot("b1", "test", time.Unix(0, 0), results)
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		rec  domain.MovementRecord
		opts FormatOptions
		want string
	}{
		{
			name: "gains and losses",
			rec:  domain.MovementRecord{StartCount: 4, KeptCount: 2, GainedFrom: map[string]int{"B": 3, "A": 8}, LostCount: 2, EndCount: 13},
			want: "Had 4 → From A (+8) + B (+3), Lost 2 → Now 13",
		},
		{
			name: "no baseline presence",
			rec:  domain.MovementRecord{GainedFrom: map[string]int{"A": 2}, EndCount: 2},
			want: "Had 0 → From A (+2) → Now 2",
		},
		{
			name: "kept all",
			rec:  domain.MovementRecord{StartCount: 5, KeptCount: 5, GainedFrom: map[string]int{}, EndCount: 5},
			want: "Had 5 (kept all) → Now 5",
		},
		{
			name: "equal counts after a swap is not kept all",
			rec:  domain.MovementRecord{StartCount: 5, KeptCount: 3, GainedFrom: map[string]int{"B": 2}, LostCount: 2, EndCount: 5},
			want: "Had 5 → From B (+2), Lost 2 → Now 5",
		},
		{
			name: "only losses",
			rec:  domain.MovementRecord{StartCount: 5, KeptCount: 3, LostCount: 2, EndCount: 3},
			want: "Had 5 → Lost 2 → Now 3",
		},
		{
			name: "unknown origin",
			rec:  domain.MovementRecord{GainedFrom: map[string]int{domain.UnknownHandler: 3}, EndCount: 3},
			want: "Had 0 → From unknown (+3) → Now 3",
		},
		{
			name: "nothing at all",
			rec:  domain.MovementRecord{},
			want: "Had 0 → Now 0",
		},
		{
			name: "ties broken by handler id",
			rec:  domain.MovementRecord{GainedFrom: map[string]int{"Z": 1, "M": 1, "A": 1}, EndCount: 3},
			want: "Had 0 → From A (+1) + M (+1) + Z (+1) → Now 3",
		},
		{
			name: "many sources collapse",
			rec: domain.MovementRecord{
				GainedFrom: map[string]int{"A": 7, "B": 6, "C": 5, "D": 4, "E": 3, "F": 2, "G": 1},
				EndCount:   28,
			},
			want: "Had 0 → From A (+7) + B (+6) + C (+5) + D (+4) + E (+3) + 2 others (+3) → Now 28",
		},
		{
			name: "custom source limit",
			rec:  domain.MovementRecord{GainedFrom: map[string]int{"A": 2, "B": 1, "C": 1}, EndCount: 4},
			opts: FormatOptions{MaxSources: 1},
			want: "Had 0 → From A (+2) + 2 others (+2) → Now 4",
		},
		{
			name: "with unit ids",
			rec: domain.MovementRecord{
				StartCount: 4, KeptCount: 2, LostCount: 2, EndCount: 5,
				StartIDs:   []string{"a1", "a2", "a3", "a4"},
				LostIDs:    []string{"a3", "a4"},
				GainedFrom: map[string]int{"B": 3},
				GainedIDs:  map[string][]string{"B": {"b1", "b2", "b3"}},
			},
			opts: FormatOptions{ShowUnitIDs: true},
			want: "Had 4 [a1, a2, a3... (4 total)] → From B (+3) [b1, b2...], Lost 2 [a3, a4] → Now 5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.rec, tt.opts))
		})
	}
}

func TestTrace(t *testing.T) {
	baseline := baselineOf(result(key1, map[string][]string{
		"A": {"u1", "u2", "u3", "u4"},
		"B": {"u5", "u6", "u7"},
		"C": {"u8"},
	}, "A", "B", "C"))

	current := []domain.AllocationResult{result(key1, map[string][]string{
		"A": {"u1", "u2", "u5", "u9"},
		"B": {"u6", "u7", "u3", "u4"},
		"D": {"u8"},
	}, "A", "B", "D")}

	report := NewTracer(FormatOptions{}, zerolog.Nop()).Trace(current, baseline)

	require.Len(t, report.Records, 4)
	a, b, d, c := report.Records[0], report.Records[1], report.Records[2], report.Records[3]

	assert.Equal(t, "A", a.HandlerID)
	assert.Equal(t, 4, a.StartCount)
	assert.Equal(t, []string{"u1", "u2"}, a.KeptIDs)
	assert.Equal(t, map[string]int{"B": 1, domain.UnknownHandler: 1}, a.GainedFrom)
	assert.Equal(t, []string{"u3", "u4"}, a.LostIDs)
	assert.Equal(t, 4, a.EndCount)

	assert.Equal(t, "B", b.HandlerID)
	assert.Equal(t, map[string]int{"A": 2}, b.GainedFrom)
	assert.Equal(t, 1, b.LostCount)

	assert.Equal(t, "D", d.HandlerID)
	assert.Equal(t, 0, d.StartCount)
	assert.Equal(t, map[string]int{"C": 1}, d.GainedFrom)

	assert.Equal(t, "C", c.HandlerID, "handlers that lost everything still get a record")
	assert.Equal(t, 1, c.LostCount)
	assert.Equal(t, 0, c.EndCount)

	for _, r := range report.Records {
		assert.True(t, r.Reconciles(), "%s does not reconcile", r.HandlerID)
	}

	assert.Equal(t, []string{
		"Had 4 → From B (+1) + unknown (+1), Lost 2 → Now 4",
		"Had 3 → From A (+2), Lost 1 → Now 4",
		"Had 0 → From C (+1) → Now 1",
		"Had 1 → Lost 1 → Now 0",
	}, report.Formatted)

	s := report.Summary
	assert.Equal(t, 9, s.TotalUnits)
	assert.Equal(t, 4, s.Kept)
	assert.Equal(t, 4, s.Moved)
	assert.Equal(t, 1, s.Unknown)
	assert.InDelta(t, 44.44, s.KeptPct, 1e-9)
	assert.Equal(t, Flow{From: "A", To: "B", Count: 2}, s.TopFlows[0])
	assert.Len(t, s.TopFlows, 3)
	assert.Equal(t, 3, s.UniqueSources)
	assert.Equal(t, 3, s.UniqueDestinations)
	assert.Zero(t, report.Duplicates)
}

func TestTrace_KeptAll(t *testing.T) {
	groups := result(key1, map[string][]string{"A": {"u1", "u2"}}, "A")

	report := NewTracer(FormatOptions{}, zerolog.Nop()).Trace([]domain.AllocationResult{groups}, baselineOf(groups))

	require.Len(t, report.Records, 1)
	assert.True(t, report.Records[0].KeptAll())
	assert.Equal(t, "Had 2 (kept all) → Now 2", report.Formatted[0])
	assert.InDelta(t, 100.0, report.Summary.KeptPct, 1e-9)
}

func TestTrace_DuplicateBaselineUnits(t *testing.T) {
	key2 := key1
	key2.Category = "20GP"
	baseline := baselineOf(
		result(key1, map[string][]string{"A": {"u1", "u2"}}, "A"),
		result(key2, map[string][]string{"B": {"u1"}}, "B"),
	)

	origins, diags := BuildOriginMap(baseline)
	assert.Equal(t, Origin{HandlerID: "A", Key: key1}, origins["u1"])
	require.Len(t, diags, 1)
	assert.Equal(t, domain.DiagnosticDataIntegrity, diags[0].Kind)
	assert.Equal(t, "u1", diags[0].UnitID)

	current := []domain.AllocationResult{
		result(key1, map[string][]string{"A": {"u1", "u2"}}, "A"),
		result(key2, map[string][]string{"B": {"u1"}}, "B"),
	}
	report := NewTracer(FormatOptions{}, zerolog.Nop()).Trace(current, baseline)

	assert.Equal(t, 1, report.Duplicates)
	for _, r := range report.Records {
		assert.True(t, r.Reconciles())
	}
}

func TestTrace_NewGroupAndNilBaseline(t *testing.T) {
	current := []domain.AllocationResult{result(key1, map[string][]string{"A": {"n1", "n2"}}, "A")}

	for name, baseline := range map[string]*domain.BaselineSnapshot{
		"nil baseline":   nil,
		"group is new":   baselineOf(),
		"other group in": baselineOf(result(domain.GroupKey{Lane: "LAX-DAL"}, map[string][]string{"A": {"x"}}, "A")),
	} {
		t.Run(name, func(t *testing.T) {
			report := NewTracer(FormatOptions{}, zerolog.Nop()).Trace(current, baseline)
			require.Len(t, report.Records, 1)
			assert.Equal(t, map[string]int{domain.UnknownHandler: 2}, report.Records[0].GainedFrom)
			assert.Equal(t, "Had 0 → From unknown (+2) → Now 2", report.Formatted[0])
			assert.Equal(t, 2, report.Summary.Unknown)
			assert.Empty(t, report.Summary.TopFlows)
		})
	}
}

func TestTrace_NewGroupReusingBaselineIDs(t *testing.T) {
	week11 := domain.GroupKey{Lane: "SEA-CHI", Period: 11, Category: "40HC"}
	week12 := domain.GroupKey{Lane: "SEA-CHI", Period: 12, Category: "40HC"}
	baseline := baselineOf(result(week11, map[string][]string{"A": {"u1", "u2"}}, "A"))
	current := []domain.AllocationResult{
		result(week11, map[string][]string{"A": {"u1", "u2"}}, "A"),
		result(week12, map[string][]string{"A": {"u1", "u2"}, "B": {"u3"}}, "A", "B"),
	}

	report := NewTracer(FormatOptions{}, zerolog.Nop()).Trace(current, baseline)
	require.Len(t, report.Records, 3)

	existing := report.Records[0]
	assert.Equal(t, 2, existing.KeptCount)
	assert.True(t, existing.KeptAll())

	for _, rec := range report.Records[1:] {
		assert.Equal(t, week12, rec.Key)
		assert.Zero(t, rec.StartCount)
		assert.Zero(t, rec.KeptCount)
		assert.Equal(t, map[string]int{domain.UnknownHandler: rec.EndCount}, rec.GainedFrom)
		assert.True(t, rec.Reconciles())
	}
	assert.Equal(t, "Had 0 → From unknown (+2) → Now 2", report.Formatted[1])
	assert.Equal(t, 3, report.Summary.Unknown)
}

func TestTrace_ReconciliationProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	tracer := NewTracer(FormatOptions{}, zerolog.Nop())

	for iter := 0; iter < 200; iter++ {
		handlers := []string{"A", "B", "C", "D", "E"}[:rng.Intn(5)+1]
		var before, after []domain.AllocationResult
		totalAfter := 0

		groups := rng.Intn(4) + 1
		for g := 0; g < groups; g++ {
			key := domain.GroupKey{Lane: fmt.Sprintf("L%d", g), Period: 1, Category: "40HC"}
			var units []string
			baseHold := map[string][]string{}
			n := rng.Intn(30)
			for i := 0; i < n; i++ {
				id := fmt.Sprintf("g%d-u%d", g, i)
				units = append(units, id)
				h := handlers[rng.Intn(len(handlers))]
				baseHold[h] = append(baseHold[h], id)
			}
			// Some units only exist now
			fresh := rng.Intn(3)
			for i := 0; i < fresh; i++ {
				units = append(units, fmt.Sprintf("g%d-new%d", g, i))
			}

			newHold := map[string][]string{}
			for _, i := range rng.Perm(len(units)) {
				h := handlers[rng.Intn(len(handlers))]
				newHold[h] = append(newHold[h], units[i])
			}
			totalAfter += len(units)

			before = append(before, result(key, baseHold, handlers...))
			after = append(after, result(key, newHold, handlers...))
		}

		report := tracer.Trace(after, baselineOf(before...))

		end := 0
		for _, r := range report.Records {
			require.True(t, r.Reconciles(), "iteration %d: %+v", iter, r)
			assert.Equal(t, r.EndCount, r.KeptCount+r.Gained())
			assert.Equal(t, r.StartCount, r.KeptCount+r.LostCount)
			end += r.EndCount
		}
		assert.Equal(t, totalAfter, end)
		assert.Equal(t, totalAfter, report.Summary.TotalUnits)
	}
}
