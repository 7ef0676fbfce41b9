// Package opt provides learning-rate control for layer updates.
//
// Layers apply their own gradient-descent updates; an Optimizer only supplies
// the learning rate handed to them on each backward pass.
package opt

// Optimizer supplies the current learning rate.
type Optimizer interface {
	// LR returns the learning rate for the next update.
	LR() float64

	// State returns the mutable hyperparameters keyed by name.
	State() map[string]interface{}

	// SetState restores hyperparameters produced by State.
	SetState(state map[string]interface{})
}

// SGD (Stochastic Gradient Descent) with a fixed learning rate.
type SGD struct {
	LearningRate float64
}

// LR returns the learning rate.
func (s *SGD) LR() float64 {
	return s.LearningRate
}

// State returns {"LearningRate": lr}.
func (s *SGD) State() map[string]interface{} {
	return map[string]interface{}{"LearningRate": s.LearningRate}
}

// SetState updates the learning rate if present.
func (s *SGD) SetState(state map[string]interface{}) {
	if lr, ok := state["LearningRate"].(float64); ok {
		s.LearningRate = lr
	}
}
