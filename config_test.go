package workcell

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

func TestConfigValidateFillsDefaults(t *testing.T) {
	cfg := &CellConfig{Logger: logging.NewTestLogger(t)}

	require.NoError(t, cfg.Validate())

	assert.Equal(t, ArmGeometry{L1: 3.0, L2: 2.4, H: 0.95}, cfg.Arm)
	assert.Equal(t, 1.0, cfg.Speed)
	assert.Equal(t, 2*time.Second, cfg.ClassifyTimeout)
	assert.Equal(t, 20*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 0.3, cfg.GripperOffset)
	assert.NotZero(t, cfg.Durations.Feed)
	assert.NotZero(t, cfg.Durations.Return)
	assert.True(t, cfg.IdlePosture.GripperOpen)

	// Stations must sit inside the default arm's workspace.
	assert.True(t, cfg.Arm.Reachable(cfg.DetectPoint))
	assert.True(t, cfg.Arm.Reachable(cfg.PassBinDrop))
	assert.True(t, cfg.Arm.Reachable(cfg.FailBinDrop))
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CellConfig)
		wantErr error
	}{
		{"speed too low", func(c *CellConfig) { c.Speed = 0.05 }, ErrInvalidSpeed},
		{"speed too high", func(c *CellConfig) { c.Speed = 9 }, ErrInvalidSpeed},
		{"negative settle", func(c *CellConfig) { c.SettleDelay = -time.Second }, ErrInvalidDuration},
		{"negative timeout", func(c *CellConfig) { c.ClassifyTimeout = -time.Second }, ErrInvalidTimeout},
		{"negative tick", func(c *CellConfig) { c.TickInterval = -time.Millisecond }, ErrInvalidDuration},
		{"negative feed interval", func(c *CellConfig) { c.FeedInterval = -time.Second }, ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &CellConfig{Logger: logging.NewTestLogger(t)}
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestConfigValidateRejectsBadArm(t *testing.T) {
	cfg := &CellConfig{Arm: ArmGeometry{L1: -1, L2: 2}}
	assert.Error(t, cfg.Validate())

	cfg = &CellConfig{Arm: ArmGeometry{L1: 1, L2: 1, H: -0.5}}
	assert.Error(t, cfg.Validate())
}

func TestBinDrop(t *testing.T) {
	cfg := &CellConfig{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, cfg.PassBinDrop, cfg.BinDrop(BinPass))
	assert.Equal(t, cfg.FailBinDrop, cfg.BinDrop(BinFail))
	assert.NotEqual(t, cfg.BinDrop(BinPass), cfg.BinDrop(BinFail))
}
