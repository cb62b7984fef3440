package allocation

import (
	"fmt"
	"strings"

	"github.com/aristath/tender/internal/domain"
	"github.com/aristath/tender/internal/modules/history"
)

func ptr(v float64) *float64 { return &v }

// option builds a handler option holding n units named <id><i>
func option(id string, n int, cost, quality *float64) domain.HandlerOption {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%d", strings.ToLower(id), i+1)
	}
	return domain.HandlerOption{HandlerID: id, UnitCount: n, UnitIDs: ids, Cost: cost, Quality: quality}
}

func testKey(facility string) domain.GroupKey {
	return domain.GroupKey{
		Lane:     "SEA-CHI",
		Period:   12,
		Category: "40HC",
		Facility: domain.Dim(facility),
	}
}

// shareMap is a ShareSource keyed by handler; every lane sees the same history
type shareMap map[string]history.ShareEntry

func (m shareMap) Lookup(handlerID, lane string) history.ShareEntry {
	if e, ok := m[handlerID]; ok {
		e.HandlerID, e.Lane = handlerID, lane
		return e
	}
	return history.ShareEntry{HandlerID: handlerID, Lane: lane}
}

func active(share float64, periods int) history.ShareEntry {
	return history.ShareEntry{Share: share, PeriodsActive: periods, Defined: true}
}
