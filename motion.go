package workcell

import "time"

// MotionSegment is a timed interpolation between two joint configurations.
// It is owned by the orchestrator for the duration of one stage and discarded
// when the stage completes.
type MotionSegment struct {
	Start    ArmConfiguration
	End      ArmConfiguration
	Duration time.Duration
	Elapsed  time.Duration
}

// NewMotionSegment builds a segment from start to end taking duration.
func NewMotionSegment(start, end ArmConfiguration, duration time.Duration) *MotionSegment {
	return &MotionSegment{Start: start, End: end, Duration: duration}
}

// smoothstep is the ease-in/ease-out blend 3u^2 - 2u^3. It satisfies s(0)=0,
// s(1)=1, is monotone non-decreasing and has zero first derivative at both
// ends, so stage boundaries carry no velocity discontinuity.
func smoothstep(u float64) float64 {
	u = clamp(u, 0, 1)
	return u * u * (3 - 2*u)
}

// At returns the interpolated configuration at time t into the segment. Each
// joint angle is blended independently; the gripper flag is taken from the
// start configuration until the segment completes.
func (m *MotionSegment) At(t time.Duration) ArmConfiguration {
	u := 1.0
	if m.Duration > 0 {
		u = float64(t) / float64(m.Duration)
	}
	s := smoothstep(u)
	cfg := ArmConfiguration{
		BaseYaw:     m.Start.BaseYaw + s*(m.End.BaseYaw-m.Start.BaseYaw),
		Shoulder:    m.Start.Shoulder + s*(m.End.Shoulder-m.Start.Shoulder),
		Elbow:       m.Start.Elbow + s*(m.End.Elbow-m.Start.Elbow),
		Wrist:       m.Start.Wrist + s*(m.End.Wrist-m.Start.Wrist),
		GripperOpen: m.Start.GripperOpen,
	}
	if t >= m.Duration {
		cfg.GripperOpen = m.End.GripperOpen
	}
	return cfg
}

// Advance moves the segment's elapsed time forward by dt and reports whether
// the segment has completed.
func (m *MotionSegment) Advance(dt time.Duration) bool {
	m.Elapsed += dt
	if m.Elapsed > m.Duration {
		m.Elapsed = m.Duration
	}
	return m.Done()
}

// Current returns the configuration at the segment's elapsed time.
func (m *MotionSegment) Current() ArmConfiguration {
	return m.At(m.Elapsed)
}

// Done reports whether the segment has run to completion.
func (m *MotionSegment) Done() bool {
	return m.Elapsed >= m.Duration
}

// Remaining returns the unscaled time left in the segment.
func (m *MotionSegment) Remaining() time.Duration {
	if m.Done() {
		return 0
	}
	return m.Duration - m.Elapsed
}
