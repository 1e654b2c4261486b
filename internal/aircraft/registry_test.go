package aircraft

import (
	"testing"

	"github.com/EngineStateManager/extension/pkg/hostapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry()

	a, created := r.GetOrCreate(7, 100)
	require.True(t, created)
	assert.Equal(t, hostapi.Handle(7), a.Handle)
	assert.Equal(t, int64(100), a.LastTouchedTime)
	assert.False(t, a.Armed)

	b, created := r.GetOrCreate(7, 500)
	assert.False(t, created)
	assert.Same(t, a, b)
	assert.Equal(t, int64(100), b.LastTouchedTime, "lookup does not touch")

	assert.Equal(t, 1, r.Len())
	assert.Nil(t, r.Get(8))
}

func TestRegistry_HandlesSnapshotSurvivesRemoval(t *testing.T) {
	r := NewRegistry()
	for _, h := range []hostapi.Handle{5, 3, 9} {
		r.GetOrCreate(h, 0)
	}

	var seen []hostapi.Handle
	for _, h := range r.Handles() {
		seen = append(seen, h)
		r.Remove(h)
	}

	assert.Equal(t, []hostapi.Handle{3, 5, 9}, seen)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_PruneEvictsLeastRecentlyTouched(t *testing.T) {
	r := NewRegistry()
	touched := map[hostapi.Handle]int64{1: 400, 2: 100, 3: 300, 4: 200, 5: 500}
	for h, at := range touched {
		rec, _ := r.GetOrCreate(h, 0)
		rec.Touch(at)
	}

	evicted := r.Prune(3)

	require.Len(t, evicted, 2)
	assert.Equal(t, hostapi.Handle(2), evicted[0].Handle)
	assert.Equal(t, hostapi.Handle(4), evicted[1].Handle)
	assert.Equal(t, 3, r.Len())
	for _, h := range []hostapi.Handle{1, 3, 5} {
		assert.NotNil(t, r.Get(h))
	}
}

func TestRegistry_PruneWithinCapIsNoop(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate(1, 0)
	r.GetOrCreate(2, 0)

	assert.Nil(t, r.Prune(2))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_PruneTiesBreakOnHandle(t *testing.T) {
	r := NewRegistry()
	for _, h := range []hostapi.Handle{30, 10, 20} {
		r.GetOrCreate(h, 50)
	}

	evicted := r.Prune(1)

	require.Len(t, evicted, 2)
	assert.Equal(t, hostapi.Handle(10), evicted[0].Handle)
	assert.Equal(t, hostapi.Handle(20), evicted[1].Handle)
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	rec, _ := r.GetOrCreate(1, 0)
	rec.Armed = true

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Armed = false

	assert.True(t, r.Get(1).Armed)
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate(2, 0)
	r.GetOrCreate(1, 0)

	removed := r.Clear()

	require.Len(t, removed, 2)
	assert.Equal(t, hostapi.Handle(1), removed[0].Handle)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Clear())
}
