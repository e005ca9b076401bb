package workcell

import (
	"context"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	rdkutils "go.viam.com/rdk/utils"
)

// STS3215 position resolution: 4096 counts over a full turn, centered.
const (
	servoCenterCounts = 2048
	servoCountsPerRev = 4096

	gripperOpenCounts   = 2800
	gripperClosedCounts = 1300
)

// ServoMirrorConfig configures a hardware mirror of the simulated arm.
type ServoMirrorConfig struct {
	Port     string        `json:"port"`
	BaudRate int           `json:"baudrate,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`

	// ServoIDs are the bus IDs of the four arm joints, in joint order
	// (base yaw, shoulder, elbow, wrist).
	ServoIDs []int `json:"servo_ids,omitempty"`

	// GripperID is the bus ID of the gripper servo.
	GripperID int `json:"gripper_id,omitempty"`
}

// Validate fills defaults and ensures the config is valid.
func (cfg *ServoMirrorConfig) Validate() error {
	if cfg.Port == "" {
		return errors.New("must specify port for serial communication")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 1000000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if len(cfg.ServoIDs) == 0 {
		cfg.ServoIDs = []int{1, 2, 3, 4}
	}
	if len(cfg.ServoIDs) != 4 {
		return errors.Errorf("expected 4 servo IDs for the arm joints, got %d", len(cfg.ServoIDs))
	}
	if cfg.GripperID == 0 {
		cfg.GripperID = 6
	}
	return nil
}

// ServoMirror is a Sink that mirrors the simulated joint stream onto physical
// servos over a feetech bus, so an SO-101-class arm can shadow the cell.
type ServoMirror struct {
	logger    logging.Logger
	bus       *feetech.Bus
	group     *feetech.ServoGroup
	jointIDs  []int
	gripperID int
}

// NewServoMirror opens the bus, enables torque and returns the mirror.
func NewServoMirror(ctx context.Context, cfg ServoMirrorConfig, logger logging.Logger) (*ServoMirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open feetech servo bus")
	}

	ids := make([]int, 0, len(cfg.ServoIDs)+1)
	ids = append(ids, cfg.ServoIDs...)
	ids = append(ids, cfg.GripperID)
	group := feetech.NewServoGroupByIDs(bus, ids...)

	if err := group.EnableAll(ctx); err != nil {
		if closeErr := bus.Close(); closeErr != nil {
			logger.Warnf("error closing bus after enable failure: %v", closeErr)
		}
		return nil, errors.Wrap(err, "failed to enable torque")
	}

	logger.Infof("servo mirror attached on %s (joints %v, gripper %d)", cfg.Port, cfg.ServoIDs, cfg.GripperID)
	return &ServoMirror{
		logger:    logger,
		bus:       bus,
		group:     group,
		jointIDs:  cfg.ServoIDs,
		gripperID: cfg.GripperID,
	}, nil
}

// Consume writes the current joint configuration to the servos with one sync
// write per tick.
func (m *ServoMirror) Consume(ctx context.Context, state CellState) error {
	targets := make(feetech.PositionMap, len(m.jointIDs)+1)
	for i, input := range state.Arm.Inputs() {
		targets[m.jointIDs[i]] = degreesToCounts(rdkutils.RadToDeg(input))
	}
	if state.Arm.GripperOpen {
		targets[m.gripperID] = gripperOpenCounts
	} else {
		targets[m.gripperID] = gripperClosedCounts
	}

	return errors.Wrap(m.group.SetPositions(ctx, targets), "mirror write failed")
}

// Close disables torque and releases the bus.
func (m *ServoMirror) Close() error {
	if err := m.group.DisableAll(context.Background()); err != nil {
		m.logger.Warnf("failed to disable torque: %v", err)
	}
	return m.bus.Close()
}

func degreesToCounts(deg float64) int {
	counts := servoCenterCounts + int(deg*servoCountsPerRev/360.0)
	if counts < 0 {
		counts = 0
	}
	if counts > servoCountsPerRev-1 {
		counts = servoCountsPerRev - 1
	}
	return counts
}
