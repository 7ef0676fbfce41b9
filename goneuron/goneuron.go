// Package goneuron re-exports the network, layer, loss and schedule types
// so programs can build and train models from a single import.
package goneuron

import (
	"math/rand"

	"github.com/FlavioCFOliveira/normconv/internal/layer"
	"github.com/FlavioCFOliveira/normconv/internal/loss"
	"github.com/FlavioCFOliveira/normconv/internal/net"
	"github.com/FlavioCFOliveira/normconv/internal/opt"
	"github.com/FlavioCFOliveira/normconv/internal/tensor"
)

// Re-export common types and functions for easier access
type (
	Model       = net.Network
	Config      = net.Config
	Dataset     = net.Dataset
	Matrix      = tensor.Matrix
	Dense       = layer.Dense
	DenseParams = layer.DenseParams
	Conv        = layer.Conv
	ConvConfig  = layer.ConvConfig
	ConvParams  = layer.ConvParams
	Mode        = layer.Mode
	Optimizer   = opt.Optimizer
	Loss        = loss.Loss
	Callback    = net.Callback
)

// Layer modes
const (
	ModeLinear          = layer.ModeLinear
	ModeHiddenTraining  = layer.ModeHiddenTraining
	ModeHiddenInference = layer.ModeHiddenInference
)

// Matrices
func NewMatrix(rows, cols int) *Matrix {
	return tensor.New(rows, cols)
}

func MatrixFromData(rows, cols int, data []float64) (*Matrix, error) {
	return tensor.NewFromData(rows, cols, data)
}

func NewRNG(seed int64) *rand.Rand {
	return tensor.NewRNG(seed)
}

// Models
func NewMLP(sizes []int, l Loss, o Optimizer, rng *rand.Rand) (*Model, error) {
	return net.NewMLP(sizes, l, o, rng)
}

func NewCNN(cfg ConvConfig, hidden []int, l Loss, o Optimizer, rng *rand.Rand) (*Model, error) {
	return net.NewCNN(cfg, hidden, l, o, rng)
}

func DefaultConfig() Config {
	return net.DefaultConfig()
}

// Layers
func NewDense(in, out int, rng *rand.Rand) *Dense {
	return layer.NewDense(in, out, rng)
}

func NewConv(cfg ConvConfig, rng *rand.Rand) (*Conv, error) {
	return layer.NewConv(cfg, rng)
}

// Optimizers
func SGD(lr float64) *opt.SGD {
	return &opt.SGD{LearningRate: lr}
}

func StepLR(optimizer Optimizer, stepSize int, gamma float64) *opt.StepLR {
	return opt.NewStepLR(optimizer, stepSize, gamma)
}

func ExponentialLR(optimizer Optimizer, gamma float64) *opt.ExponentialLR {
	return opt.NewExponentialLR(optimizer, gamma)
}

func ReduceLROnPlateau(optimizer Optimizer, factor float64, patience int, threshold, minLR float64) *opt.ReduceLROnPlateau {
	return opt.NewReduceLROnPlateau(optimizer, factor, patience, threshold, minLR)
}

// Callbacks
func Logger(interval int) net.Logger {
	return net.Logger{Interval: interval}
}

func ModelCheckpoint(filename string) Callback {
	return net.NewModelCheckpoint(filename)
}

func EarlyStopping(patience int, minDelta float64) *net.EarlyStopping {
	return net.NewEarlyStopping(patience, minDelta)
}

func SchedulerCallback(scheduler opt.Scheduler) Callback {
	return net.NewSchedulerCallback(scheduler)
}

func CSVLogger(filename string, append bool) Callback {
	return net.NewCSVLogger(filename, append)
}

// Losses
var (
	MSE                 = loss.MSE{}
	SoftmaxCrossEntropy = loss.SoftmaxCrossEntropy{}
)

// Data
func LoadCSV(filename string, labelCols []int, hasHeader bool) (*Dataset, error) {
	return net.LoadCSV(filename, labelCols, hasHeader)
}

func OneHot(labels *Matrix, classes int) (*Matrix, error) {
	return net.OneHot(labels, classes)
}

// Model Persistence
func Load(filename string) (*Model, error) {
	return net.Load(filename)
}
