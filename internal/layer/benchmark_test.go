// Package layer provides benchmarks for neural network layer implementations.
package layer

import (
	"testing"

	"github.com/FlavioCFOliveira/normconv/internal/tensor"
)

func randomBatch(rows, cols int) *tensor.Matrix {
	m := tensor.New(rows, cols)
	m.Randomize(tensor.NewRNG(1), 1)
	return m
}

// BenchmarkDenseForward benchmarks the training-mode forward pass of a dense layer.
func BenchmarkDenseForward(b *testing.B) {
	layer := NewDense(784, 256, tensor.NewRNG(1))
	input := randomBatch(32, 784)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		layer.FeedForward(input, ModeHiddenTraining)
	}
}

// BenchmarkDenseFull benchmarks a complete forward and backward pass.
func BenchmarkDenseFull(b *testing.B) {
	layer := NewDense(784, 256, tensor.NewRNG(1))
	input := randomBatch(32, 784)
	grad := randomBatch(32, 256)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		layer.FeedForward(input, ModeHiddenTraining)
		layer.Backward(grad, 0.01)
	}
}

// BenchmarkConvForward benchmarks the forward pass of a convolutional layer.
func BenchmarkConvForward(b *testing.B) {
	layer, err := NewConv(ConvConfig{
		InputChannels: 1, InputWidth: 28, InputHeight: 28,
		OutputChannels: 8, FilterSize: 3, Stride: 1, Padding: 1,
	}, tensor.NewRNG(1))
	if err != nil {
		b.Fatal(err)
	}
	input := randomBatch(16, layer.InSize())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		layer.FeedForward(input)
	}
}

// BenchmarkConvFull benchmarks a complete forward and backward pass.
func BenchmarkConvFull(b *testing.B) {
	layer, err := NewConv(ConvConfig{
		InputChannels: 1, InputWidth: 28, InputHeight: 28,
		OutputChannels: 8, FilterSize: 3, Stride: 1, Padding: 1,
	}, tensor.NewRNG(1))
	if err != nil {
		b.Fatal(err)
	}
	input := randomBatch(16, layer.InSize())
	grad := randomBatch(16, layer.OutSize())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		layer.FeedForward(input)
		layer.BackPropagation(grad, 0.01)
	}
}
