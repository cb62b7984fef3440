package optimization

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/aristath/tender/internal/domain"
	"github.com/aristath/tender/internal/modules/grouping"
)

type mockConstraintSource struct {
	mock.Mock
}

func (m *mockConstraintSource) Active() ([]domain.Constraint, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Constraint), args.Error(1)
}

type mockBaselineSource struct {
	mock.Mock
}

func (m *mockBaselineSource) Get(id string) (*domain.BaselineSnapshot, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BaselineSnapshot), args.Error(1)
}

func testKey(facility string) domain.GroupKey {
	return domain.GroupKey{Lane: "SEA-CHI", Period: 12, Category: "40HC", Facility: domain.Dim(facility)}
}

// rows builds n unit rows held by handler, ids <lower(handler)><i>
func rows(handler, facility string, n int, cost string) []grouping.RawRow {
	out := make([]grouping.RawRow, n)
	for i := range out {
		out[i] = grouping.RawRow{
			UnitID:    fmt.Sprintf("%s%d", strings.ToLower(handler), i+1),
			HandlerID: handler,
			Lane:      "SEA-CHI",
			Period:    12,
			Category:  "40HC",
			Facility:  domain.Dim(facility),
			Cost:      json.RawMessage(cost),
		}
	}
	return out
}

func offer(handler, facility, cost string) grouping.Offer {
	return grouping.Offer{
		HandlerID: handler,
		Lane:      "SEA-CHI",
		Period:    12,
		Category:  "40HC",
		Facility:  domain.Dim(facility),
		Cost:      json.RawMessage(cost),
	}
}

// historyRecords gives A a 40% share over 3 periods and B 60% over 5, in the window before period 12
func historyRecords() []domain.HistoryRecord {
	rec := func(handler string, period, units int) domain.HistoryRecord {
		return domain.HistoryRecord{HandlerID: handler, Lane: "SEA-CHI", Period: period, UnitCount: units}
	}
	return []domain.HistoryRecord{
		rec("A", 9, 2), rec("A", 10, 1), rec("A", 11, 1),
		rec("B", 7, 2), rec("B", 8, 1), rec("B", 9, 1), rec("B", 10, 1), rec("B", 11, 1),
	}
}

func costOnly() *ParamsOverride {
	one, zero, period := 1.0, 0.0, 12
	return &ParamsOverride{CostWeight: &one, QualityWeight: &zero, CurrentPeriod: &period}
}

// cascadeRequest is the A/C/B scenario: A cheapest with 40% history, C new, B dearest with 60%
func cascadeRequest() RunRequest {
	var in []grouping.RawRow
	in = append(in, rows("A", "BNA2", 4, "100")...)
	in = append(in, rows("B", "BNA2", 6, "200")...)
	return RunRequest{
		Rows:        in,
		Offers:      []grouping.Offer{offer("C", "BNA2", "150")},
		History:     historyRecords(),
		Constraints: []domain.Constraint{},
		Params:      costOnly(),
	}
}
