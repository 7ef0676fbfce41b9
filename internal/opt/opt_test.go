// Package opt provides comprehensive unit tests for optimizers.
package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSGDState tests the state round trip used by schedulers.
func TestSGDState(t *testing.T) {
	sgd := &SGD{LearningRate: 0.1}

	state := sgd.State()
	assert.Equal(t, 0.1, state["LearningRate"])

	state["LearningRate"] = 0.05
	sgd.SetState(state)
	assert.Equal(t, 0.05, sgd.LR())

	// Unknown keys and wrong types are ignored.
	sgd.SetState(map[string]interface{}{"LearningRate": "fast", "Momentum": 0.9})
	assert.Equal(t, 0.05, sgd.LR())
}

func TestStepLR(t *testing.T) {
	sgd := &SGD{LearningRate: 1}
	s := NewStepLR(sgd, 2, 0.5)

	want := []float64{1, 0.5, 0.5, 0.25, 0.25}
	for i, w := range want {
		s.Step()
		if math.Abs(s.GetLR()-w) > 1e-12 {
			t.Errorf("step %d: lr = %v, want %v", i+1, s.GetLR(), w)
		}
	}
}

func TestExponentialLR(t *testing.T) {
	sgd := &SGD{LearningRate: 1}
	s := NewExponentialLR(sgd, 0.9)

	s.Step()
	s.Step()
	assert.InDelta(t, 0.81, sgd.LR(), 1e-12)
	assert.InDelta(t, 0.81, s.GetLR(), 1e-12)

	// StepWithLoss is a no-op for epoch-based schedules.
	s.StepWithLoss(123)
	assert.InDelta(t, 0.81, sgd.LR(), 1e-12)
}

func TestReduceLROnPlateau(t *testing.T) {
	sgd := &SGD{LearningRate: 1}
	s := NewReduceLROnPlateau(sgd, 0.1, 2, 1e-3, 0.05)

	s.StepWithLoss(1.0) // best
	s.StepWithLoss(1.0) // bad 1
	assert.Equal(t, 1.0, s.GetLR())
	s.StepWithLoss(1.0) // bad 2 -> reduce
	assert.InDelta(t, 0.1, s.GetLR(), 1e-12)

	s.StepWithLoss(2.0)
	s.StepWithLoss(2.0) // reduce again, clamped at minLR
	assert.InDelta(t, 0.05, s.GetLR(), 1e-12)

	s.StepWithLoss(0.5) // improvement resets the counter
	s.StepWithLoss(0.5)
	assert.InDelta(t, 0.05, s.GetLR(), 1e-12)
}

var (
	_ Optimizer = (*SGD)(nil)
	_ Scheduler = (*StepLR)(nil)
	_ Scheduler = (*ExponentialLR)(nil)
	_ Scheduler = (*ReduceLROnPlateau)(nil)
)
