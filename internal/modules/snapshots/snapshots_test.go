package snapshots

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tender/internal/domain"
	"github.com/aristath/tender/internal/events"
	"github.com/aristath/tender/internal/modules/grouping"
	testingutil "github.com/aristath/tender/internal/testing"
)

func setupTestRepository(t *testing.T) *Repository {
	db, cleanup := testingutil.NewTestDB(t, "tender")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func key(facility string) domain.GroupKey {
	return domain.GroupKey{Lane: "SEA-CHI", Period: 12, Category: "40HC", Facility: domain.Dim(facility)}
}

func snapshotAt(id string, at time.Time) *domain.BaselineSnapshot {
	return domain.NewBaselineSnapshot(id, "label-"+id, at, []domain.AllocationResult{
		{
			Key:   key("HGR6"),
			Total: 3,
			Handlers: []domain.HandlerAllocation{
				{HandlerID: "A", UnitCount: 2, UnitIDs: []string{"u1", "u2"}},
				{HandlerID: "B", UnitCount: 1, UnitIDs: []string{"u3"}},
			},
		},
		{
			Key:      key(""),
			Total:    1,
			Handlers: []domain.HandlerAllocation{{HandlerID: "C", UnitCount: 1, UnitIDs: []string{"u4"}}},
		},
	})
}

func TestRepository_CreateAndLoad(t *testing.T) {
	repo := setupTestRepository(t)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(snapshotAt("s1", at), 1))

	got, err := repo.GetByID("s1")
	require.NoError(t, err)
	assert.Equal(t, "label-s1", got.Label())
	assert.True(t, at.Equal(got.CapturedAt()))
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, 4, got.UnitCount())

	g, ok := got.Group(key("HGR6"))
	require.True(t, ok)
	a, ok := g.Handler("A")
	require.True(t, ok)
	assert.Equal(t, []string{"u1", "u2"}, a.UnitIDs)

	_, ok = got.Group(key(""))
	assert.True(t, ok, "absent facility survives the round trip")

	assert.Error(t, repo.Create(snapshotAt("s1", at), 0), "snapshots are immutable")
}

func TestRepository_ListLatestDelete(t *testing.T) {
	repo := setupTestRepository(t)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	_, err := repo.Latest()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Create(snapshotAt("old", base), 0))
	require.NoError(t, repo.Create(snapshotAt("new", base.Add(time.Hour)), 2))

	infos, err := repo.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "new", infos[0].ID)
	assert.Equal(t, 2, infos[0].Duplicates)
	assert.Equal(t, 2, infos[1].Groups)
	assert.Equal(t, 4, infos[1].Units)

	latest, err := repo.Latest()
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID())

	require.NoError(t, repo.Delete("new"))
	assert.ErrorIs(t, repo.Delete("new"), ErrNotFound)

	_, err = repo.GetByID("new")
	assert.ErrorIs(t, err, ErrNotFound)

	latest, err = repo.Latest()
	require.NoError(t, err)
	assert.Equal(t, "old", latest.ID())
}

func TestService_Capture(t *testing.T) {
	repo := setupTestRepository(t)
	bus := events.NewBus(zerolog.Nop())
	service := NewService(repo, events.NewManager(bus, zerolog.Nop()), zerolog.Nop())

	var captured []*events.Event
	bus.Subscribe(events.BaselineCaptured, func(e *events.Event) { captured = append(captured, e) })

	row := func(unit, handler, facility string) grouping.RawRow {
		return grouping.RawRow{
			UnitID:    unit,
			HandlerID: handler,
			Lane:      "SEA-CHI",
			Period:    12,
			Category:  "40HC",
			Facility:  domain.Dim(facility),
		}
	}

	result, err := service.Capture("monday", []grouping.RawRow{
		row("u1", "A", "HGR6"),
		row("u2", "A", "HGR6"),
		row("u3", "B", "HGR6"),
		row("u1", "B", "BNA2"),
		row("", "B", "BNA2"),
	})
	require.NoError(t, err)

	assert.Equal(t, "monday", result.Info.Label)
	assert.Equal(t, 2, result.Info.Groups, "a group emptied by the zero-sum rule is still recorded")
	assert.Equal(t, 3, result.Info.Units)
	assert.Equal(t, 1, result.Info.Duplicates)
	counts := domain.CountByKind(result.Diagnostics)
	assert.Equal(t, 2, counts[domain.DiagnosticDataIntegrity])

	stored, err := service.Get(result.Info.ID)
	require.NoError(t, err)
	g, ok := stored.Group(key("HGR6"))
	require.True(t, ok)
	assert.Equal(t, 3, g.Total)

	latest, err := service.Get("latest")
	require.NoError(t, err)
	assert.Equal(t, result.Info.ID, latest.ID())

	require.Len(t, captured, 1)
	assert.Equal(t, result.Info.ID, captured[0].Data["baseline_id"])

	require.NoError(t, service.Delete(result.Info.ID))
	infos, err := service.List()
	require.NoError(t, err)
	assert.Empty(t, infos)
}
