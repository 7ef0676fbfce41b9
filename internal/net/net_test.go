package net

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlavioCFOliveira/normconv/internal/layer"
	"github.com/FlavioCFOliveira/normconv/internal/loss"
	"github.com/FlavioCFOliveira/normconv/internal/opt"
	"github.com/FlavioCFOliveira/normconv/internal/tensor"
)

var testConvConfig = layer.ConvConfig{
	InputChannels: 1, InputWidth: 4, InputHeight: 4,
	OutputChannels: 2, FilterSize: 3, Stride: 1, Padding: 1,
}

func newTestMLP(t *testing.T, sizes ...int) *Network {
	t.Helper()
	n, err := NewMLP(sizes, loss.MSE{}, &opt.SGD{LearningRate: 0.01}, tensor.NewRNG(1))
	require.NoError(t, err)
	return n
}

// sumTask returns inputs in [-1, 1) and targets x0 + x1.
func sumTask(rows int) (*tensor.Matrix, *tensor.Matrix) {
	x := tensor.New(rows, 2)
	x.Randomize(tensor.NewRNG(7), 1)
	y := tensor.New(rows, 1)
	for i := 0; i < rows; i++ {
		y.Set(i, 0, x.At(i, 0)+x.At(i, 1))
	}
	return x, y
}

func TestNewRejectsBrokenTopology(t *testing.T) {
	rng := tensor.NewRNG(1)
	tests := []struct {
		name  string
		conv  *layer.Conv
		dense []*layer.Dense
	}{
		{"no dense layers", nil, nil},
		{"dense mismatch", nil, []*layer.Dense{layer.NewDense(2, 3, rng), layer.NewDense(4, 1, rng)}},
	}

	conv, err := layer.NewConv(testConvConfig, rng)
	require.NoError(t, err)
	tests = append(tests, struct {
		name  string
		conv  *layer.Conv
		dense []*layer.Dense
	}{"conv mismatch", conv, []*layer.Dense{layer.NewDense(16, 1, rng)}})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.conv, tt.dense, loss.MSE{}, &opt.SGD{LearningRate: 0.1})
			if !errors.Is(err, ErrTopology) {
				t.Errorf("New() error = %v, want ErrTopology", err)
			}
		})
	}

	_, err = NewMLP([]int{3}, loss.MSE{}, &opt.SGD{}, rng)
	assert.True(t, errors.Is(err, ErrTopology))
}

func TestForwardShapes(t *testing.T) {
	mlp := newTestMLP(t, 2, 5, 4, 3)
	assert.Equal(t, 2, mlp.InSize())
	assert.Equal(t, 3, mlp.OutSize())
	assert.Len(t, mlp.Layers(), 3)
	assert.Nil(t, mlp.Conv())

	x, _ := sumTask(6)
	out := mlp.Forward(x, true)
	assert.Equal(t, 6, out.Rows())
	assert.Equal(t, 3, out.Cols())

	cnn, err := NewCNN(testConvConfig, []int{8, 2}, loss.MSE{}, &opt.SGD{LearningRate: 0.01}, tensor.NewRNG(2))
	require.NoError(t, err)
	require.NotNil(t, cnn.Conv())
	assert.Equal(t, 16, cnn.InSize())
	assert.Len(t, cnn.Layers(), 3)

	img := tensor.New(5, 16)
	img.Randomize(tensor.NewRNG(3), 1)
	pred := cnn.Predict(img)
	assert.Equal(t, 5, pred.Rows())
	assert.Equal(t, 2, pred.Cols())
}

func TestBackwardReturnsInputGradient(t *testing.T) {
	cnn, err := NewCNN(testConvConfig, []int{3}, loss.MSE{}, &opt.SGD{}, tensor.NewRNG(4))
	require.NoError(t, err)

	img := tensor.New(3, 16)
	img.Randomize(tensor.NewRNG(5), 1)
	out := cnn.Forward(img, true)
	grad := cnn.Backward(tensor.Filled(out.Rows(), out.Cols(), 1), 0)

	assert.Equal(t, 3, grad.Rows())
	assert.Equal(t, 16, grad.Cols())
}

func TestFitReducesLoss(t *testing.T) {
	x, y := sumTask(64)
	n := newTestMLP(t, 2, 8, 1)

	history, err := n.Fit(x, y, Config{Epochs: 60, BatchSize: 16, Shuffle: true, Seed: 3})
	require.NoError(t, err)
	require.Len(t, history, 60)
	assert.Less(t, history[len(history)-1], history[0])
}

func TestFitRejectsBadInput(t *testing.T) {
	n := newTestMLP(t, 2, 4, 1)
	x, y := sumTask(8)

	tests := []struct {
		name string
		x, y *tensor.Matrix
		cfg  Config
	}{
		{"row mismatch", x, tensor.New(7, 1), DefaultConfig()},
		{"zero epochs", x, y, Config{Epochs: 0, BatchSize: 4}},
		{"batch of one", x, y, Config{Epochs: 1, BatchSize: 1}},
		{"single sample", tensor.New(1, 2), tensor.New(1, 1), DefaultConfig()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Fit(tt.x, tt.y, tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestFitSkipsSingleSampleTail(t *testing.T) {
	n := newTestMLP(t, 2, 4, 1)
	x, y := sumTask(5)

	counter := &batchCounter{}
	_, err := n.Fit(x, y, Config{Epochs: 1, BatchSize: 2}, counter)
	require.NoError(t, err)
	assert.Equal(t, 2, counter.batches)
}

type batchCounter struct {
	BaseCallback
	batches int
}

func (c *batchCounter) OnBatchEnd(batch int, loss float64, n *Network) { c.batches++ }

func TestEarlyStoppingEndsFit(t *testing.T) {
	n := newTestMLP(t, 2, 4, 1)
	x, y := sumTask(16)

	// No epoch can beat the best loss by 1e9, so patience 1 stops after epoch 1.
	es := NewEarlyStopping(1, 1e9)
	history, err := n.Fit(x, y, Config{Epochs: 20, BatchSize: 8}, es)
	require.NoError(t, err)
	assert.True(t, es.Stopped)
	assert.Len(t, history, 2)
}

func TestSchedulerCallbackDecaysLearningRate(t *testing.T) {
	sgd := &opt.SGD{LearningRate: 0.1}
	n, err := NewMLP([]int{2, 4, 1}, loss.MSE{}, sgd, tensor.NewRNG(1))
	require.NoError(t, err)
	x, y := sumTask(8)

	_, err = n.Fit(x, y, Config{Epochs: 3, BatchSize: 4}, NewSchedulerCallback(opt.NewStepLR(sgd, 1, 0.5)))
	require.NoError(t, err)
	assert.InDelta(t, 0.0125, sgd.LR(), 1e-12)
}

func TestFreezeKeepsParameters(t *testing.T) {
	n := newTestMLP(t, 2, 4, 1)
	x, y := sumTask(8)

	require.NoError(t, n.Freeze(0, true))
	require.NoError(t, n.Freeze(1, true))
	assert.Error(t, n.Freeze(2, true))

	before := n.Checkpoint()
	n.TrainBatch(x, y)
	after := n.Checkpoint()

	for i := range before.DenseParams {
		assert.Equal(t, before.DenseParams[i].Weights, after.DenseParams[i].Weights)
		assert.Equal(t, before.DenseParams[i].Gamma, after.DenseParams[i].Gamma)
		assert.Equal(t, before.DenseParams[i].Beta, after.DenseParams[i].Beta)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	n, err := NewCNN(testConvConfig, []int{6, 2}, loss.SoftmaxCrossEntropy{}, &opt.SGD{LearningRate: 0.05}, tensor.NewRNG(8))
	require.NoError(t, err)

	img := tensor.New(6, 16)
	img.Randomize(tensor.NewRNG(9), 1)
	labels := tensor.New(6, 2)
	for i := 0; i < 6; i++ {
		labels.Set(i, i%2, 1)
	}
	n.TrainBatch(img, labels)

	var buf bytes.Buffer
	require.NoError(t, n.Encode(&buf))
	restored, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, n.Checkpoint(), restored.Checkpoint())
	assert.IsType(t, loss.SoftmaxCrossEntropy{}, restored.loss)
	assert.True(t, n.Predict(img).EqualApprox(restored.Predict(img), 1e-12))
}

func TestSaveLoad(t *testing.T) {
	n := newTestMLP(t, 2, 3, 1)
	path := filepath.Join(t.TempDir(), "model.gob")

	require.NoError(t, n.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, n.Checkpoint(), loaded.Checkpoint())

	_, err = Load(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}

func TestFromCheckpointRejectsBadParams(t *testing.T) {
	cp := newTestMLP(t, 2, 3, 1).Checkpoint()
	cp.DenseParams[0].Gamma = cp.DenseParams[0].Gamma[:1]

	_, err := FromCheckpoint(cp)
	assert.True(t, errors.Is(err, layer.ErrParamLength))

	cp = newTestMLP(t, 2, 3, 1).Checkpoint()
	cp.LossType = "Hinge"
	_, err = FromCheckpoint(cp)
	assert.Error(t, err)
}

func TestAccuracy(t *testing.T) {
	n := newTestMLP(t, 2, 4, 3)
	x, _ := sumTask(10)

	// A network agrees with its own predictions.
	assert.Equal(t, 1.0, n.Accuracy(x, n.Predict(x)))
}

func TestSummary(t *testing.T) {
	n, err := NewCNN(testConvConfig, []int{5, 2}, loss.MSE{}, &opt.SGD{}, tensor.NewRNG(1))
	require.NoError(t, err)

	var buf bytes.Buffer
	n.Summary(&buf)
	out := buf.String()

	assert.Contains(t, out, "Conv_0")
	assert.Contains(t, out, "(2, 4, 4)")
	assert.Contains(t, out, "Dense_1 (linear)")
	// conv 2*9+2, dense 32*5+10, dense 5*2+4
	assert.Contains(t, out, "Total params: 204")
}

func TestModelCheckpointWritesBestModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "best.gob")
	n := newTestMLP(t, 2, 4, 1)
	x, y := sumTask(8)

	_, err := n.Fit(x, y, Config{Epochs: 2, BatchSize: 4}, NewModelCheckpoint(path))
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = Load(path)
	assert.NoError(t, err)
}

func TestCSVLoggerRecordsEpochs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	n := newTestMLP(t, 2, 4, 1)
	x, y := sumTask(8)

	_, err := n.Fit(x, y, Config{Epochs: 3, BatchSize: 4}, NewCSVLogger(path, false))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "epoch,loss,learning_rate,time_seconds", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0,"))
	assert.Contains(t, lines[3], ",0.01,")
}
