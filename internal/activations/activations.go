// Package activations provides activation functions optimized for performance.
package activations

// Activation is an activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x)
	Derivative(x float64) float64
}

// ReLU activation function.
type ReLU struct{}

// Activate computes max(0, x)
func (r ReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Derivative returns 1 if x > 0, else 0
func (r ReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// ApplyReLU clamps every negative element of xs to zero in place.
func ApplyReLU(xs []float64) {
	for i, v := range xs {
		if v < 0 {
			xs[i] = 0
		}
	}
}

// MaskReLU zeroes grad wherever the matching forward value is not positive.
// grad and forward must have the same length.
func MaskReLU(grad, forward []float64) {
	for i, v := range forward {
		if v <= 0 {
			grad[i] = 0
		}
	}
}

// Linear is the identity activation used by terminal layers.
type Linear struct{}

// Activate returns x unchanged.
func (l Linear) Activate(x float64) float64 {
	return x
}

// Derivative returns 1.
func (l Linear) Derivative(x float64) float64 {
	return 1
}
