// Package activations provides unit tests for activation functions.
package activations

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestReLU tests ReLU activation.
func TestReLU(t *testing.T) {
	relu := ReLU{}

	tests := []struct {
		input    float64
		expected float64
	}{
		{-1.0, 0.0}, // Negative -> 0
		{0.0, 0.0},  // Zero -> 0
		{1.0, 1.0},  // Positive -> identity
		{2.5, 2.5},  // Larger positive -> identity
		{-0.1, 0.0}, // Small negative -> 0
	}

	for _, tt := range tests {
		output := relu.Activate(tt.input)
		if math.Abs(output-tt.expected) > 1e-12 {
			t.Errorf("ReLU(%v) = %v, want %v", tt.input, output, tt.expected)
		}
	}
}

// TestReLUDerivative tests ReLU derivative.
func TestReLUDerivative(t *testing.T) {
	relu := ReLU{}

	tests := []struct {
		input    float64
		expected float64
	}{
		{-1.0, 0.0}, // Negative -> 0
		{0.0, 0.0},  // At zero, derivative is 0 (x must be > 0)
		{1.0, 1.0},  // Positive -> 1
		{2.5, 1.0},  // Larger positive -> 1
	}

	for _, tt := range tests {
		output := relu.Derivative(tt.input)
		if output != tt.expected {
			t.Errorf("ReLU.Derivative(%v) = %v, want %v", tt.input, output, tt.expected)
		}
	}
}

func TestLinear(t *testing.T) {
	lin := Linear{}
	for _, x := range []float64{-3, 0, 4.5} {
		assert.Equal(t, x, lin.Activate(x))
		assert.Equal(t, 1.0, lin.Derivative(x))
	}
}

func TestApplyReLU(t *testing.T) {
	xs := []float64{-2, 0, 3, -0.5}
	ApplyReLU(xs)
	assert.Equal(t, []float64{0, 0, 3, 0}, xs)
}

func TestMaskReLU(t *testing.T) {
	grad := []float64{1, 2, 3, 4}
	MaskReLU(grad, []float64{0, 1, -1, 5})
	assert.Equal(t, []float64{0, 2, 0, 4}, grad)
}

// Both implementations satisfy the interface.
var (
	_ Activation = ReLU{}
	_ Activation = Linear{}
)
