// Package layer provides neural network layer implementations.
package layer

import "errors"

// Momentum is the smoothing factor applied to running batch statistics.
const Momentum = 0.9

// Epsilon keeps the inverse deviation finite when a unit has zero variance.
const Epsilon = 1e-5

var (
	// ErrParamLength is returned when restored parameters do not match the layer dimensions.
	ErrParamLength = errors.New("layer: parameter length mismatch")

	// ErrGeometry is returned when a convolution does not tile its padded input exactly.
	ErrGeometry = errors.New("layer: invalid convolution geometry")
)

// Layer is the part of a layer's surface shared by Dense and Conv.
type Layer interface {
	InSize() int
	OutSize() int
	SetFrozen(value bool)
	Frozen() bool
}

// Mode selects how a dense layer transforms its linear output.
type Mode int

const (
	// ModeLinear stops after the matrix product. Used by terminal layers.
	ModeLinear Mode = iota
	// ModeHiddenTraining applies ReLU and batch normalization with batch statistics,
	// updating the running statistics.
	ModeHiddenTraining
	// ModeHiddenInference applies ReLU and batch normalization with the running statistics.
	ModeHiddenInference
)

// Hidden reports whether the mode applies activation and normalization.
func (m Mode) Hidden() bool {
	return m == ModeHiddenTraining || m == ModeHiddenInference
}

func (m Mode) String() string {
	switch m {
	case ModeLinear:
		return "linear"
	case ModeHiddenTraining:
		return "hidden-training"
	case ModeHiddenInference:
		return "hidden-inference"
	default:
		return "unknown"
	}
}

// HiddenMode returns the hidden mode for training or inference.
func HiddenMode(training bool) Mode {
	if training {
		return ModeHiddenTraining
	}
	return ModeHiddenInference
}
