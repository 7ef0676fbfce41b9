package net

import (
	"fmt"

	"github.com/FlavioCFOliveira/normconv/internal/tensor"
)

// Config controls Fit.
type Config struct {
	Epochs    int
	BatchSize int
	Shuffle   bool
	Seed      int64
}

// DefaultConfig returns the settings used by the demos.
func DefaultConfig() Config {
	return Config{Epochs: 10, BatchSize: 32, Shuffle: true, Seed: 42}
}

// Stopper is implemented by callbacks that can end training early.
type Stopper interface {
	ShouldStop() bool
}

// Fit trains on (x, y) for cfg.Epochs epochs of mini-batches and returns the
// mean training loss of every epoch. A trailing batch with a single sample is
// skipped because batch statistics are undefined for it.
func (n *Network) Fit(x, y *tensor.Matrix, cfg Config, callbacks ...Callback) ([]float64, error) {
	if x.Rows() != y.Rows() {
		return nil, fmt.Errorf("net: %d samples but %d targets", x.Rows(), y.Rows())
	}
	if cfg.Epochs <= 0 || cfg.BatchSize < 2 {
		return nil, fmt.Errorf("net: invalid config epochs=%d batch=%d", cfg.Epochs, cfg.BatchSize)
	}
	if x.Rows() < 2 {
		return nil, fmt.Errorf("net: need at least 2 samples, got %d", x.Rows())
	}

	rng := tensor.NewRNG(cfg.Seed)
	order := make([]int, x.Rows())
	for i := range order {
		order[i] = i
	}

	for _, cb := range callbacks {
		cb.OnTrainBegin(n)
	}

	var history []float64
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for _, cb := range callbacks {
			cb.OnEpochBegin(epoch, n)
		}
		if cfg.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		total, batches := 0.0, 0
		for start := 0; start < len(order); start += cfg.BatchSize {
			end := min(start+cfg.BatchSize, len(order))
			if end-start < 2 {
				continue
			}
			for _, cb := range callbacks {
				cb.OnBatchBegin(batches, n)
			}
			l := n.TrainBatch(gatherRows(x, order[start:end]), gatherRows(y, order[start:end]))
			for _, cb := range callbacks {
				cb.OnBatchEnd(batches, l, n)
			}
			total += l
			batches++
		}

		epochLoss := total / float64(batches)
		history = append(history, epochLoss)
		for _, cb := range callbacks {
			cb.OnEpochEnd(epoch, epochLoss, n)
		}
		if shouldStop(callbacks) {
			break
		}
	}

	for _, cb := range callbacks {
		cb.OnTrainEnd(n)
	}
	return history, nil
}

func shouldStop(callbacks []Callback) bool {
	for _, cb := range callbacks {
		if s, ok := cb.(Stopper); ok && s.ShouldStop() {
			return true
		}
	}
	return false
}

// gatherRows copies the selected rows of m into a new matrix.
func gatherRows(m *tensor.Matrix, idx []int) *tensor.Matrix {
	out := tensor.New(len(idx), m.Cols())
	for i, r := range idx {
		copy(out.Row(i), m.Row(r))
	}
	return out
}
