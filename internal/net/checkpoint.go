package net

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/FlavioCFOliveira/normconv/internal/layer"
	"github.com/FlavioCFOliveira/normconv/internal/loss"
	"github.com/FlavioCFOliveira/normconv/internal/opt"
)

// Checkpoint is the serialized form of a Network.
type Checkpoint struct {
	LossType     string
	LearningRate float64

	HasConv    bool
	ConvConfig layer.ConvConfig
	ConvParams layer.ConvParams

	DenseSizes  [][2]int
	DenseParams []layer.DenseParams
}

// Save saves the network to a file using gob encoding.
func (n *Network) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return n.Encode(file)
}

// Load loads a network from a file.
func Load(filename string) (*Network, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return Decode(file)
}

// Checkpoint captures the current parameters and running statistics.
func (n *Network) Checkpoint() Checkpoint {
	cp := Checkpoint{
		LossType:     lossName(n.loss),
		LearningRate: n.opt.LR(),
	}
	if n.conv != nil {
		cp.HasConv = true
		cp.ConvConfig = n.conv.Config()
		cp.ConvParams = n.conv.Params()
	}
	for _, d := range n.dense {
		cp.DenseSizes = append(cp.DenseSizes, [2]int{d.InSize(), d.OutSize()})
		cp.DenseParams = append(cp.DenseParams, d.Params())
	}
	return cp
}

// Encode writes the network to an io.Writer using gob encoding.
func (n *Network) Encode(w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(n.Checkpoint()); err != nil {
		return fmt.Errorf("failed to encode network: %w", err)
	}
	return nil
}

// Decode reads a network written by Encode.
func Decode(r io.Reader) (*Network, error) {
	var cp Checkpoint
	if err := gob.NewDecoder(r).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode network: %w", err)
	}
	return FromCheckpoint(cp)
}

// FromCheckpoint rebuilds a network through the layer restoration constructors.
func FromCheckpoint(cp Checkpoint) (*Network, error) {
	if len(cp.DenseSizes) != len(cp.DenseParams) {
		return nil, fmt.Errorf("checkpoint has %d dense sizes but %d parameter sets", len(cp.DenseSizes), len(cp.DenseParams))
	}

	var conv *layer.Conv
	if cp.HasConv {
		c, err := layer.NewConvFromParams(cp.ConvConfig, cp.ConvParams)
		if err != nil {
			return nil, fmt.Errorf("failed to restore conv layer: %w", err)
		}
		conv = c
	}

	dense := make([]*layer.Dense, len(cp.DenseSizes))
	for i, size := range cp.DenseSizes {
		d, err := layer.NewDenseFromParams(size[0], size[1], cp.DenseParams[i])
		if err != nil {
			return nil, fmt.Errorf("failed to restore dense layer %d: %w", i, err)
		}
		dense[i] = d
	}

	l, err := lossByName(cp.LossType)
	if err != nil {
		return nil, err
	}
	return New(conv, dense, l, &opt.SGD{LearningRate: cp.LearningRate})
}

func lossName(l loss.Loss) string {
	switch l.(type) {
	case loss.SoftmaxCrossEntropy, *loss.SoftmaxCrossEntropy:
		return "SoftmaxCrossEntropy"
	default:
		return "MSE"
	}
}

func lossByName(name string) (loss.Loss, error) {
	switch name {
	case "MSE", "":
		return loss.MSE{}, nil
	case "SoftmaxCrossEntropy":
		return loss.SoftmaxCrossEntropy{}, nil
	default:
		return nil, fmt.Errorf("unknown loss type %q", name)
	}
}
