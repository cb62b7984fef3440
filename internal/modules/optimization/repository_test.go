package optimization

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tender/internal/domain"
	"github.com/aristath/tender/internal/modules/allocation"
	"github.com/aristath/tender/internal/modules/tracing"
	testingutil "github.com/aristath/tender/internal/testing"
)

func setupTestRepository(t *testing.T) *Repository {
	db, cleanup := testingutil.NewTestDB(t, "tender")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func storedRun(id string, at time.Time) *RunResult {
	key := testKey("HGR6")
	return &RunResult{
		ID:        id,
		CreatedAt: at,
		Params:    domain.DefaultParams(),
		Groups: []allocation.GroupOutcome{{
			Result: domain.AllocationResult{
				Key:      key,
				Total:    2,
				Overflow: true,
				Handlers: []domain.HandlerAllocation{{HandlerID: "A", Rank: 1, UnitCount: 2, UnitIDs: []string{"u1", "u2"}, Overflow: true}},
			},
		}},
		Movements: &tracing.Report{Formatted: []string{"Had 2 (kept all) → Now 2"}},
		Diagnostics: []domain.Diagnostic{
			domain.NewDiagnostic(domain.DiagnosticOverflow, &key, "overflow"),
		},
		Stats: RunStats{Groups: 1, Units: 2, Allocated: 2, OverflowGroups: 1, DurationMs: 7},
	}
}

func TestRepository_SaveAndGet(t *testing.T) {
	repo := setupTestRepository(t)
	at := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(storedRun("r1", at)))

	got, err := repo.GetByID("r1")
	require.NoError(t, err)
	assert.True(t, at.Equal(got.CreatedAt))
	assert.Equal(t, domain.StrategyCascading, got.Params.Strategy)
	require.Len(t, got.Groups, 1)
	assert.Equal(t, testKey("HGR6"), got.Groups[0].Result.Key)
	assert.Equal(t, []string{"u1", "u2"}, got.Groups[0].Result.Handlers[0].UnitIDs)
	assert.Equal(t, []string{"Had 2 (kept all) → Now 2"}, got.Movements.Formatted)
	require.Len(t, got.Diagnostics, 1)
	require.NotNil(t, got.Diagnostics[0].Key)
	assert.Equal(t, "HGR6", got.Diagnostics[0].Key.Facility.Value)

	_, err = repo.GetByID("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRepository_ListAndPrune(t *testing.T) {
	repo := setupTestRepository(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		run := storedRun(id, base.AddDate(0, 0, i*10))
		if id == "r2" {
			run.BaselineID = "snap-1"
		}
		require.NoError(t, repo.Save(run))
	}

	infos, err := repo.List(0)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "r3", infos[0].ID)
	assert.Equal(t, "snap-1", infos[1].BaselineID)
	assert.Equal(t, "cascading", infos[2].Strategy)
	assert.Equal(t, 1, infos[2].DiagnosticCount)
	assert.Equal(t, 1, infos[2].OverflowGroups)
	assert.Equal(t, int64(7), infos[2].DurationMs)

	limited, err := repo.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	deleted, err := repo.DeleteOlderThan(base.AddDate(0, 0, 15))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	infos, err = repo.List(10)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "r3", infos[0].ID)
}
