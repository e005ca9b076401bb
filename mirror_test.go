package workcell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServoMirrorConfigValidate(t *testing.T) {
	cfg := &ServoMirrorConfig{Port: "/dev/ttyUSB0"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000000, cfg.BaudRate)
	assert.Equal(t, []int{1, 2, 3, 4}, cfg.ServoIDs)
	assert.Equal(t, 6, cfg.GripperID)
}

func TestServoMirrorConfigRejectsMissingPort(t *testing.T) {
	cfg := &ServoMirrorConfig{}
	assert.Error(t, cfg.Validate())
}

func TestServoMirrorConfigRejectsWrongServoCount(t *testing.T) {
	cfg := &ServoMirrorConfig{Port: "COM3", ServoIDs: []int{1, 2}}
	assert.Error(t, cfg.Validate())
}

func TestDegreesToCounts(t *testing.T) {
	tests := []struct {
		deg  float64
		want int
	}{
		{0, 2048},      // centered
		{90, 3072},     // quarter turn
		{-90, 1024},
		{180, 4095},    // clamped at the register limit
		{-180, 0},
		{400, 4095},    // far out of range still clamps
		{-400, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, degreesToCounts(tt.deg), "degreesToCounts(%f)", tt.deg)
	}
}
