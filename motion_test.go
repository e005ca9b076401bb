package workcell

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestSegmentEndpoints(t *testing.T) {
	start := ArmConfiguration{BaseYaw: 0.1, Shoulder: 0.5, Elbow: 2.0, Wrist: -0.2, GripperOpen: true}
	end := ArmConfiguration{BaseYaw: -1.0, Shoulder: 1.2, Elbow: 0.8, Wrist: 0.3, GripperOpen: true}
	seg := NewMotionSegment(start, end, time.Second)

	assert.Equal(t, start, seg.At(0))
	assert.Equal(t, end, seg.At(time.Second))
	assert.Equal(t, end, seg.At(2*time.Second)) // clamped past the end
}

func TestSegmentMonotonic(t *testing.T) {
	start := ArmConfiguration{Shoulder: -1.0}
	end := ArmConfiguration{Shoulder: 1.5}
	seg := NewMotionSegment(start, end, 2*time.Second)

	prev := seg.At(0).Shoulder
	for tm := 10 * time.Millisecond; tm <= 2*time.Second; tm += 10 * time.Millisecond {
		cur := seg.At(tm).Shoulder
		assert.GreaterOrEqual(t, cur, prev, "blend regressed at t=%v", tm)
		prev = cur
	}
}

func TestSegmentEaseInEaseOut(t *testing.T) {
	// The smoothstep blend has (near) zero velocity at both ends: the first
	// and last percent of the duration move far less than the middle.
	seg := NewMotionSegment(ArmConfiguration{}, ArmConfiguration{Shoulder: 1.0}, time.Second)

	startStep := seg.At(10*time.Millisecond).Shoulder - seg.At(0).Shoulder
	midStep := seg.At(510*time.Millisecond).Shoulder - seg.At(500*time.Millisecond).Shoulder
	endStep := seg.At(time.Second).Shoulder - seg.At(990*time.Millisecond).Shoulder

	assert.Less(t, startStep, midStep/4)
	assert.Less(t, endStep, midStep/4)
}

func TestSmoothstepValues(t *testing.T) {
	tests := []struct {
		u    float64
		want float64
	}{
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{-1, 0},  // clamped
		{2, 1},   // clamped
		{0.25, 0.15625},
	}

	for _, tt := range tests {
		assert.True(t, scalar.EqualWithinAbs(smoothstep(tt.u), tt.want, 1e-12), "smoothstep(%f)", tt.u)
	}
}

func TestSegmentZeroDuration(t *testing.T) {
	start := ArmConfiguration{Shoulder: 0.2}
	end := ArmConfiguration{Shoulder: 0.9}
	seg := NewMotionSegment(start, end, 0)

	assert.Equal(t, end, seg.At(0))
	assert.True(t, seg.Done())
}

func TestSegmentGripperFlagHeldUntilDone(t *testing.T) {
	start := ArmConfiguration{GripperOpen: true}
	end := ArmConfiguration{GripperOpen: false}
	seg := NewMotionSegment(start, end, time.Second)

	assert.True(t, seg.At(500*time.Millisecond).GripperOpen)
	assert.False(t, seg.At(time.Second).GripperOpen)
}

func TestSegmentAdvance(t *testing.T) {
	seg := NewMotionSegment(ArmConfiguration{}, ArmConfiguration{Shoulder: 1}, time.Second)

	require.False(t, seg.Advance(400*time.Millisecond))
	assert.Equal(t, 600*time.Millisecond, seg.Remaining())

	require.True(t, seg.Advance(700*time.Millisecond))
	assert.True(t, seg.Done())
	assert.Equal(t, time.Duration(0), seg.Remaining())
	assert.Equal(t, ArmConfiguration{Shoulder: 1}, seg.Current())
}
