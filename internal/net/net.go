// Package net provides core neural network types.
package net

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/normconv/internal/layer"
	"github.com/FlavioCFOliveira/normconv/internal/loss"
	"github.com/FlavioCFOliveira/normconv/internal/opt"
	"github.com/FlavioCFOliveira/normconv/internal/tensor"
)

// ErrTopology is returned when consecutive layer sizes do not chain.
var ErrTopology = errors.New("net: layer sizes do not chain")

// Network is an optional convolutional front followed by a stack of dense layers.
// Every dense layer but the last is hidden (ReLU + batch normalization);
// the last one is linear.
type Network struct {
	conv  *layer.Conv
	dense []*layer.Dense
	loss  loss.Loss
	opt   opt.Optimizer
}

// New creates a network. conv may be nil.
func New(conv *layer.Conv, dense []*layer.Dense, lossFn loss.Loss, optimizer opt.Optimizer) (*Network, error) {
	if len(dense) == 0 {
		return nil, fmt.Errorf("%w: at least one dense layer is required", ErrTopology)
	}
	if conv != nil && conv.OutSize() != dense[0].InSize() {
		return nil, fmt.Errorf("%w: conv produces %d values, dense 0 expects %d", ErrTopology, conv.OutSize(), dense[0].InSize())
	}
	for i := 1; i < len(dense); i++ {
		if dense[i-1].OutSize() != dense[i].InSize() {
			return nil, fmt.Errorf("%w: dense %d produces %d values, dense %d expects %d",
				ErrTopology, i-1, dense[i-1].OutSize(), i, dense[i].InSize())
		}
	}
	return &Network{conv: conv, dense: dense, loss: lossFn, opt: optimizer}, nil
}

// NewMLP builds a dense-only network with the given layer sizes.
// sizes[0] is the input size and sizes[len-1] the output size.
func NewMLP(sizes []int, lossFn loss.Loss, optimizer opt.Optimizer, rng *rand.Rand) (*Network, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("%w: need at least input and output sizes", ErrTopology)
	}
	dense := make([]*layer.Dense, len(sizes)-1)
	for i := range dense {
		dense[i] = layer.NewDense(sizes[i], sizes[i+1], rng)
	}
	return New(nil, dense, lossFn, optimizer)
}

// NewCNN builds a convolutional front followed by dense layers.
// hidden lists the dense sizes after the convolution, ending with the output size.
func NewCNN(cfg layer.ConvConfig, hidden []int, lossFn loss.Loss, optimizer opt.Optimizer, rng *rand.Rand) (*Network, error) {
	conv, err := layer.NewConv(cfg, rng)
	if err != nil {
		return nil, err
	}
	if len(hidden) == 0 {
		return nil, fmt.Errorf("%w: need at least an output size", ErrTopology)
	}
	dense := make([]*layer.Dense, len(hidden))
	in := conv.OutSize()
	for i, out := range hidden {
		dense[i] = layer.NewDense(in, out, rng)
		in = out
	}
	return New(conv, dense, lossFn, optimizer)
}

// Forward runs every layer in order. training selects batch statistics
// (and updates the running statistics) in hidden dense layers.
func (n *Network) Forward(x *tensor.Matrix, training bool) *tensor.Matrix {
	curr := x
	if n.conv != nil {
		curr = n.conv.FeedForward(curr)
	}
	last := len(n.dense) - 1
	for i, d := range n.dense {
		mode := layer.HiddenMode(training)
		if i == last {
			mode = layer.ModeLinear
		}
		curr = d.FeedForward(curr, mode)
	}
	return curr
}

// Backward propagates grad through the layers in reverse order, letting each
// layer update its own parameters, and returns the gradient w.r.t. the input.
func (n *Network) Backward(grad *tensor.Matrix, learningRate float64) *tensor.Matrix {
	curr := grad
	for i := len(n.dense) - 1; i >= 0; i-- {
		curr = n.dense[i].Backward(curr, learningRate)
	}
	if n.conv != nil {
		curr = n.conv.BackPropagation(curr, learningRate)
	}
	return curr
}

// TrainBatch performs one forward/backward step on a batch and returns its loss.
func (n *Network) TrainBatch(x, y *tensor.Matrix) float64 {
	yPred := n.Forward(x, true)
	l := n.loss.Forward(yPred, y)
	n.Backward(n.loss.Backward(yPred, y), n.opt.LR())
	return l
}

// Predict runs the network in inference mode.
func (n *Network) Predict(x *tensor.Matrix) *tensor.Matrix {
	return n.Forward(x, false)
}

// Evaluate returns the loss of inference-mode predictions.
func (n *Network) Evaluate(x, y *tensor.Matrix) float64 {
	return n.loss.Forward(n.Predict(x), y)
}

// Accuracy returns the fraction of rows whose arg-max prediction matches
// the arg-max target.
func (n *Network) Accuracy(x, y *tensor.Matrix) float64 {
	pred := n.Predict(x)
	correct := 0
	for i := 0; i < pred.Rows(); i++ {
		if floats.MaxIdx(pred.Row(i)) == floats.MaxIdx(y.Row(i)) {
			correct++
		}
	}
	return float64(correct) / float64(pred.Rows())
}

// Layers returns the layers in forward order, convolution first.
func (n *Network) Layers() []layer.Layer {
	var layers []layer.Layer
	if n.conv != nil {
		layers = append(layers, n.conv)
	}
	for _, d := range n.dense {
		layers = append(layers, d)
	}
	return layers
}

// Conv returns the convolutional front, or nil.
func (n *Network) Conv() *layer.Conv {
	return n.conv
}

// Dense returns the dense layers in forward order.
func (n *Network) Dense() []*layer.Dense {
	return n.dense
}

// Optimizer returns the optimizer supplying the learning rate.
func (n *Network) Optimizer() opt.Optimizer {
	return n.opt
}

// Freeze toggles updates for the layer at index i of Layers().
func (n *Network) Freeze(i int, frozen bool) error {
	layers := n.Layers()
	if i < 0 || i >= len(layers) {
		return fmt.Errorf("net: layer index %d out of range [0,%d)", i, len(layers))
	}
	layers[i].SetFrozen(frozen)
	return nil
}

// InSize returns the flattened size of one input sample.
func (n *Network) InSize() int {
	return n.Layers()[0].InSize()
}

// OutSize returns the size of one output row.
func (n *Network) OutSize() int {
	return n.dense[len(n.dense)-1].OutSize()
}
