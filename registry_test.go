package workcell

import (
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/spatialmath"
)

func TestAdmitAssignsMonotonicIDs(t *testing.T) {
	reg := NewPieceRegistry()

	var last int64
	for i := 0; i < 10; i++ {
		p := reg.Admit(r3.Vector{Z: 4.5}, spatialmath.NewEulerAngles(), 0)
		assert.Greater(t, p.ID, last)
		last = p.ID
	}
	assert.Equal(t, 10, reg.Len())
}

func TestNextQueuedReturnsOldest(t *testing.T) {
	reg := NewPieceRegistry()
	first := reg.Admit(r3.Vector{}, nil, 0)
	reg.Admit(r3.Vector{}, nil, 0)

	got := reg.NextQueued()
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)

	require.NoError(t, reg.Advance(first.ID, StageDetecting))
	got = reg.NextQueued()
	require.NotNil(t, got)
	assert.NotEqual(t, first.ID, got.ID)
}

func TestAdvanceEnforcesStageOrder(t *testing.T) {
	reg := NewPieceRegistry()
	p := reg.Admit(r3.Vector{}, nil, 0)

	// Skipping a stage is rejected.
	assert.ErrorIs(t, reg.Advance(p.ID, StageGripped), ErrStageOrder)
	// Revisiting the current stage is rejected.
	assert.ErrorIs(t, reg.Advance(p.ID, StageQueued), ErrStageOrder)

	// The full fixed order is accepted one step at a time.
	for s := StageDetecting; s <= StageCompleted; s++ {
		require.NoError(t, reg.Advance(p.ID, s))
	}
	// No stage follows Completed.
	assert.ErrorIs(t, reg.Advance(p.ID, StageCompleted+1), ErrStageOrder)

	assert.ErrorIs(t, reg.Advance(9999, StageDetecting), ErrPieceNotFound)
}

func TestCountActive(t *testing.T) {
	reg := NewPieceRegistry()
	p1 := reg.Admit(r3.Vector{}, nil, 0)
	reg.Admit(r3.Vector{}, nil, 0)

	assert.Equal(t, 0, reg.CountActive())

	require.NoError(t, reg.Advance(p1.ID, StageDetecting))
	assert.Equal(t, 1, reg.CountActive())

	for s := StageAwaitingGrasp; s <= StageCompleted; s++ {
		require.NoError(t, reg.Advance(p1.ID, s))
	}
	// Completed is not an active stage.
	assert.Equal(t, 0, reg.CountActive())
}

func TestPurgeCompleted(t *testing.T) {
	reg := NewPieceRegistry()
	p := reg.Admit(r3.Vector{}, nil, 0)
	for s := StageDetecting; s <= StageCompleted; s++ {
		require.NoError(t, reg.Advance(p.ID, s))
	}
	p.CompletedAt = time.Second
	reg.Admit(r3.Vector{}, nil, 0) // still queued, must survive

	// Not yet settled.
	removed := reg.PurgeCompleted(1500*time.Millisecond, time.Second)
	assert.Empty(t, removed)
	assert.Equal(t, 2, reg.Len())

	removed = reg.PurgeCompleted(2*time.Second, time.Second)
	assert.Equal(t, []int64{p.ID}, removed)
	assert.Equal(t, 1, reg.Len())
	assert.Nil(t, reg.Get(p.ID))
}

func TestClearPreservesIDCounter(t *testing.T) {
	reg := NewPieceRegistry()
	p1 := reg.Admit(r3.Vector{}, nil, 0)

	reg.Clear()
	assert.Equal(t, 0, reg.Len())

	p2 := reg.Admit(r3.Vector{}, nil, 0)
	assert.Greater(t, p2.ID, p1.ID)
}

func TestSnapshotIsReadOnlyCopy(t *testing.T) {
	reg := NewPieceRegistry()
	p := reg.Admit(r3.Vector{X: 1}, spatialmath.NewEulerAngles(), 0)
	p.Classification = &Classification{Result: ResultFail, DefectCount: 2}

	snap := reg.Snapshot()
	require.Len(t, snap, 1)

	// Mutating the snapshot must not reach the registry's piece.
	snap[0].Position.X = 99
	snap[0].Classification.Result = ResultPass

	assert.Equal(t, 1.0, reg.Get(p.ID).Position.X)
	assert.Equal(t, ResultFail, reg.Get(p.ID).Classification.Result)
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	reg := NewPieceRegistry()
	reg.Remove(42)
	assert.Equal(t, 0, reg.Len())
}
