package workcell

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimClassifierDeterministicWithSeed(t *testing.T) {
	run := func() []Classification {
		c := NewSimClassifier(SimClassifierConfig{Seed: 42, DefectRate: 0.5})
		var out []Classification
		for i := 0; i < 20; i++ {
			cls, err := c.Classify(context.Background(), PieceSnapshot{ID: int64(i)})
			require.NoError(t, err)
			out = append(out, cls)
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestSimClassifierMaxThresholdPassesEverything(t *testing.T) {
	c := NewSimClassifier(SimClassifierConfig{Seed: 1, DefectRate: 1.0})
	c.SetThreshold(255)

	for i := 0; i < 50; i++ {
		cls, err := c.Classify(context.Background(), PieceSnapshot{})
		require.NoError(t, err)
		assert.Equal(t, ResultPass, cls.Result)
		assert.Equal(t, 0, cls.DefectCount)
	}
}

func TestSimClassifierDefectsImplyFail(t *testing.T) {
	c := NewSimClassifier(SimClassifierConfig{Seed: 5, DefectRate: 1.0, Threshold: 1})

	failSeen := false
	for i := 0; i < 50; i++ {
		cls, err := c.Classify(context.Background(), PieceSnapshot{})
		require.NoError(t, err)
		if cls.DefectCount > 0 {
			assert.Equal(t, ResultFail, cls.Result)
			failSeen = true
		} else {
			assert.Equal(t, ResultPass, cls.Result)
		}
	}
	assert.True(t, failSeen, "defect rate 1.0 with low threshold should fail at least once in 50 pieces")
}

func TestSimClassifierThresholdClamped(t *testing.T) {
	c := NewSimClassifier(SimClassifierConfig{})

	c.SetThreshold(-10)
	assert.Equal(t, 0, c.Threshold())

	c.SetThreshold(400)
	assert.Equal(t, 255, c.Threshold())
}

func TestSimClassifierHonorsContext(t *testing.T) {
	c := NewSimClassifier(SimClassifierConfig{Latency: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Classify(ctx, PieceSnapshot{})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Classify did not return after context cancellation")
	}
}
