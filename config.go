package workcell

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// Speed multiplier bounds for the whole cell.
const (
	MinSpeed = 0.1
	MaxSpeed = 5.0
)

// StageDurations holds the nominal (speed 1.0) duration of each timed stage.
type StageDurations struct {
	Feed      time.Duration `json:"feed,omitempty"`      // travel to the detection point
	Approach  time.Duration `json:"approach,omitempty"`  // arm motion to above the piece
	Grasp     time.Duration `json:"grasp,omitempty"`     // end-effector close dwell
	Transport time.Duration `json:"transport,omitempty"` // arm motion to the chosen bin
	Release   time.Duration `json:"release,omitempty"`   // end-effector open dwell
	Return    time.Duration `json:"return,omitempty"`    // arm motion back to idle
}

// CellConfig is the configuration for one pick-and-place cell.
type CellConfig struct {
	Arm ArmGeometry `json:"arm,omitempty"`

	// Fixed stations of the cell.
	FeedPoint     r3.Vector        `json:"feed_point,omitempty"`   // where admitted pieces appear
	DetectPoint   r3.Vector        `json:"detect_point,omitempty"` // inspection coordinate
	PassBinDrop   r3.Vector        `json:"pass_bin_drop,omitempty"`
	FailBinDrop   r3.Vector        `json:"fail_bin_drop,omitempty"`
	IdlePosture   ArmConfiguration `json:"-"`
	GripperOffset float64          `json:"gripper_offset,omitempty"` // end effector to piece center

	Durations StageDurations `json:"durations,omitempty"`

	// SettleDelay is how long a completed piece remains visible before purge.
	SettleDelay time.Duration `json:"settle_delay,omitempty"`

	// Speed is the initial global speed multiplier, within [0.1, 5.0].
	Speed float64 `json:"speed,omitempty"`

	// ClassifyTimeout bounds the wait for the classification collaborator,
	// in simulation time. A timeout routes the piece as Fail.
	ClassifyTimeout time.Duration `json:"classify_timeout,omitempty"`

	// TickInterval is the control-loop period of the background run loop.
	TickInterval time.Duration `json:"tick_interval,omitempty"`

	// FeedInterval, when positive, admits a new piece automatically every
	// interval of simulation time.
	FeedInterval time.Duration `json:"feed_interval,omitempty"`

	// Debug makes invariant violations panic instead of logging.
	Debug bool `json:"debug,omitempty"`

	// Not serialized.
	Logger logging.Logger `json:"-"`
}

// Validate fills defaults and ensures all parts of the config are valid.
func (cfg *CellConfig) Validate() error {
	if cfg.Arm.L1 == 0 && cfg.Arm.L2 == 0 {
		cfg.Arm = ArmGeometry{L1: 3.0, L2: 2.4, H: 0.95}
	}
	if cfg.Arm.L1 <= 0 || cfg.Arm.L2 <= 0 {
		return errors.Errorf("arm link lengths must be positive, got L1=%.3f L2=%.3f", cfg.Arm.L1, cfg.Arm.L2)
	}
	if cfg.Arm.H < 0 {
		return errors.Errorf("shoulder height must be non-negative, got %.3f", cfg.Arm.H)
	}

	zero := r3.Vector{}
	if cfg.FeedPoint == zero {
		cfg.FeedPoint = r3.Vector{X: 0, Y: 0.5, Z: 4.5}
	}
	if cfg.DetectPoint == zero {
		cfg.DetectPoint = r3.Vector{X: 0, Y: 0.5, Z: 2.5}
	}
	if cfg.PassBinDrop == zero {
		cfg.PassBinDrop = r3.Vector{X: 2.2, Y: 0.4, Z: 1.2}
	}
	if cfg.FailBinDrop == zero {
		cfg.FailBinDrop = r3.Vector{X: -2.2, Y: 0.4, Z: 1.2}
	}
	if cfg.GripperOffset == 0 {
		cfg.GripperOffset = 0.3
	}
	if cfg.GripperOffset < 0 {
		return errors.Errorf("gripper offset must be non-negative, got %.3f", cfg.GripperOffset)
	}
	if (cfg.IdlePosture == ArmConfiguration{}) {
		cfg.IdlePosture = ArmConfiguration{
			BaseYaw:     0,
			Shoulder:    math.Pi / 3,
			Elbow:       2 * math.Pi / 3,
			Wrist:       0,
			GripperOpen: true,
		}
	}

	d := &cfg.Durations
	if d.Feed == 0 {
		d.Feed = 1500 * time.Millisecond
	}
	if d.Approach == 0 {
		d.Approach = 1200 * time.Millisecond
	}
	if d.Grasp == 0 {
		d.Grasp = 400 * time.Millisecond
	}
	if d.Transport == 0 {
		d.Transport = 1600 * time.Millisecond
	}
	if d.Release == 0 {
		d.Release = 400 * time.Millisecond
	}
	if d.Return == 0 {
		d.Return = 1000 * time.Millisecond
	}
	for _, dur := range []time.Duration{d.Feed, d.Approach, d.Grasp, d.Transport, d.Release, d.Return} {
		if dur <= 0 {
			return errors.Wrapf(ErrInvalidDuration, "got %v", dur)
		}
	}

	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	if cfg.SettleDelay < 0 {
		return errors.Wrapf(ErrInvalidDuration, "settle delay %v", cfg.SettleDelay)
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1.0
	}
	if cfg.Speed < MinSpeed || cfg.Speed > MaxSpeed {
		return errors.Wrapf(ErrInvalidSpeed, "got %.2f", cfg.Speed)
	}
	if cfg.ClassifyTimeout == 0 {
		cfg.ClassifyTimeout = 2 * time.Second
	}
	if cfg.ClassifyTimeout < 0 {
		return errors.Wrapf(ErrInvalidTimeout, "got %v", cfg.ClassifyTimeout)
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 20 * time.Millisecond // 50 Hz nominal
	}
	if cfg.TickInterval < 0 {
		return errors.Wrapf(ErrInvalidDuration, "tick interval %v", cfg.TickInterval)
	}
	if cfg.FeedInterval < 0 {
		return errors.Wrapf(ErrInvalidDuration, "feed interval %v", cfg.FeedInterval)
	}

	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("workcell")
	}
	return nil
}

// BinDrop returns the drop coordinate of a bin.
func (cfg *CellConfig) BinDrop(bin BinID) r3.Vector {
	if bin == BinPass {
		return cfg.PassBinDrop
	}
	return cfg.FailBinDrop
}
