package workcell

import (
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/referenceframe"
)

// ArmConfiguration holds the four joint angles of the two-link arm in radians
// plus the end-effector state. It is a value type: recomputed every control
// tick and never persisted.
type ArmConfiguration struct {
	BaseYaw     float64 // rotation of the whole arm toward the target bearing
	Shoulder    float64 // pitch of the upper arm from horizontal
	Elbow       float64 // interior flex between upper arm and forearm
	Wrist       float64 // pitch keeping the end effector level
	GripperOpen bool
}

// Joint limits for the simulated arm. Base yaw is unconstrained modulo 2*pi.
var armJointLimits = [][2]float64{
	{-math.Pi, math.Pi},         // shoulder
	{0, math.Pi},                // elbow
	{-math.Pi / 2, math.Pi / 2}, // wrist
}

// ArmGeometry describes the fixed link lengths and mount height of the arm.
type ArmGeometry struct {
	L1 float64 `json:"upper_arm_length"`
	L2 float64 `json:"forearm_length"`
	H  float64 `json:"shoulder_height"`
}

// MaxReach returns the outer radius of the arm's annular workspace.
func (g ArmGeometry) MaxReach() float64 { return g.L1 + g.L2 }

// MinReach returns the inner radius of the arm's annular workspace.
func (g ArmGeometry) MinReach() float64 { return math.Abs(g.L1 - g.L2) }

// Reachable reports whether a Cartesian target lies within the annular
// workspace measured from the shoulder.
func (g ArmGeometry) Reachable(target r3.Vector) bool {
	dh := math.Hypot(target.X, target.Z)
	dv := target.Y - g.H
	d := math.Hypot(dh, dv)
	return d <= g.MaxReach() && d >= g.MinReach()
}

// Solve computes joint angles placing the end effector at target. It is a
// closed-form solver: deterministic and side-effect free. When the target is
// outside the workspace the second return is false and the configuration is a
// best-effort posture pointed at the target's bearing, fully extended or
// retracted; callers must not treat that as fatal.
func (g ArmGeometry) Solve(target r3.Vector) (ArmConfiguration, bool) {
	yaw := math.Atan2(target.X, target.Z)
	dh := math.Hypot(target.X, target.Z)
	dv := target.Y - g.H
	d := math.Hypot(dh, dv)

	if d > g.MaxReach() || d < g.MinReach() {
		shoulder := math.Atan2(dv, dh)
		return clampJoints(ArmConfiguration{
			BaseYaw:  yaw,
			Shoulder: shoulder,
			Elbow:    0,
			Wrist:    -shoulder,
		}), false
	}

	// Law of cosines. The acos arguments are clamped: rounding near the
	// workspace boundary must never produce NaN.
	elbow := math.Pi - math.Acos(clamp((g.L1*g.L1+g.L2*g.L2-d*d)/(2*g.L1*g.L2), -1, 1))
	shoulder := math.Atan2(dv, dh) + math.Acos(clamp((g.L1*g.L1+d*d-g.L2*g.L2)/(2*g.L1*d), -1, 1))
	wrist := -(shoulder + elbow - math.Pi)

	return clampJoints(ArmConfiguration{
		BaseYaw:  yaw,
		Shoulder: shoulder,
		Elbow:    elbow,
		Wrist:    wrist,
	}), true
}

// EndEffector computes the forward kinematics of a configuration: the
// Cartesian position of the end effector.
func (g ArmGeometry) EndEffector(cfg ArmConfiguration) r3.Vector {
	// Absolute forearm angle; elbow is the interior flex folded from full
	// extension, so the forearm pitches down by exactly that amount.
	forearm := cfg.Shoulder - cfg.Elbow
	dh := g.L1*math.Cos(cfg.Shoulder) + g.L2*math.Cos(forearm)
	dv := g.L1*math.Sin(cfg.Shoulder) + g.L2*math.Sin(forearm)
	return r3.Vector{
		X: dh * math.Sin(cfg.BaseYaw),
		Y: g.H + dv,
		Z: dh * math.Cos(cfg.BaseYaw),
	}
}

// Inputs converts the configuration to the referenceframe input list consumed
// by arm controllers, ordered base yaw, shoulder, elbow, wrist.
func (c ArmConfiguration) Inputs() []referenceframe.Input {
	return []referenceframe.Input{
		c.BaseYaw,
		c.Shoulder,
		c.Elbow,
		c.Wrist,
	}
}

// ConfigurationFromInputs builds an ArmConfiguration from a referenceframe
// input list produced by Inputs.
func ConfigurationFromInputs(inputs []referenceframe.Input, gripperOpen bool) ArmConfiguration {
	cfg := ArmConfiguration{GripperOpen: gripperOpen}
	if len(inputs) > 0 {
		cfg.BaseYaw = inputs[0]
	}
	if len(inputs) > 1 {
		cfg.Shoulder = inputs[1]
	}
	if len(inputs) > 2 {
		cfg.Elbow = inputs[2]
	}
	if len(inputs) > 3 {
		cfg.Wrist = inputs[3]
	}
	return cfg
}

func clampJoints(cfg ArmConfiguration) ArmConfiguration {
	cfg.BaseYaw = normalizeAngle(cfg.BaseYaw)
	cfg.Shoulder = clamp(cfg.Shoulder, armJointLimits[0][0], armJointLimits[0][1])
	cfg.Elbow = clamp(cfg.Elbow, armJointLimits[1][0], armJointLimits[1][1])
	cfg.Wrist = clamp(cfg.Wrist, armJointLimits[2][0], armJointLimits[2][1])
	return cfg
}

func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
