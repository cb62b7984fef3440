package workers

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_PreservesOrder(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	out, failures, err := Map(context.Background(), NewPool(8), items, func(v int) int { return v * v })

	require.NoError(t, err)
	assert.Empty(t, failures)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestMap_Empty(t *testing.T) {
	out, failures, err := Map(context.Background(), NewPool(2), []string{}, func(s string) int { return len(s) })

	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, []int{}, out)
}

func TestMap_RecoversPanics(t *testing.T) {
	out, failures, err := Map(context.Background(), NewPool(3), []int{1, 2, 3, 4}, func(v int) string {
		if v == 3 {
			panic("boom")
		}
		return "ok"
	})

	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, 2, failures[0].Index)
	assert.Equal(t, "boom", failures[0].Recovered)
	assert.Contains(t, failures[0].Error(), "job 2 panicked")
	assert.NotEmpty(t, failures[0].Stack)
	assert.Equal(t, []string{"ok", "ok", "", "ok"}, out)
}

func TestMap_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	out, _, err := Map(ctx, NewPool(2), []int{1, 2, 3}, func(v int) int {
		atomic.AddInt32(&calls, 1)
		return v
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestNewPool_DefaultSize(t *testing.T) {
	assert.Equal(t, 4, NewPool(0).Size())
	assert.Equal(t, 7, NewPool(7).Size())
}
