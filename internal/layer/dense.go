package layer

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/FlavioCFOliveira/normconv/internal/activations"
	"github.com/FlavioCFOliveira/normconv/internal/tensor"
)

// DenseParams holds the persistent state of a Dense layer as flat buffers.
// Weights are row-major [in, out].
type DenseParams struct {
	Weights         []float64
	Gamma           []float64
	Beta            []float64
	RunningMean     []float64
	RunningVariance []float64
}

// Dense is a fully connected layer with batch normalization on hidden outputs.
//
// Hidden layers compute normalize(relu(input x weights)) scaled by gamma and
// shifted by beta. Terminal layers compute input x weights only.
type Dense struct {
	inputDimension  int
	outputDimension int

	weights         *tensor.Matrix // [in, out]
	gamma           *tensor.Matrix // [1, out]
	beta            *tensor.Matrix // [1, out]
	runningMean     *tensor.Matrix // [1, out]
	runningVariance *tensor.Matrix // [1, out]

	// Per forward pass. Each call replaces the previous generation.
	mode             Mode
	input            *tensor.Matrix
	activated        *tensor.Matrix
	output           *tensor.Matrix
	outputNormalized *tensor.Matrix
	deviationInv     *tensor.Matrix

	frozen bool
}

// NewDense creates a dense layer with randomized weights, gamma = 1 and beta = 0.
func NewDense(in, out int, rng *rand.Rand) *Dense {
	if in <= 0 || out <= 0 {
		panic(fmt.Sprintf("Dense: invalid dimensions %dx%d", in, out))
	}
	d := newDense(in, out)

	// He initialization (better for ReLU)
	d.weights.Randomize(rng, math.Sqrt(2.0/float64(in)))
	for j := 0; j < out; j++ {
		d.gamma.Set(0, j, 1)
	}
	return d
}

// NewDenseFromParams restores a dense layer from saved parameters.
func NewDenseFromParams(in, out int, p DenseParams) (*Dense, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrParamLength, in, out)
	}
	checks := []struct {
		name string
		got  int
		want int
	}{
		{"weights", len(p.Weights), in * out},
		{"gamma", len(p.Gamma), out},
		{"beta", len(p.Beta), out},
		{"running mean", len(p.RunningMean), out},
		{"running variance", len(p.RunningVariance), out},
	}
	for _, c := range checks {
		if c.got != c.want {
			return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrParamLength, c.name, c.got, c.want)
		}
	}

	d := newDense(in, out)
	copy(d.weights.RawData(), p.Weights)
	copy(d.gamma.RawData(), p.Gamma)
	copy(d.beta.RawData(), p.Beta)
	copy(d.runningMean.RawData(), p.RunningMean)
	copy(d.runningVariance.RawData(), p.RunningVariance)
	return d, nil
}

func newDense(in, out int) *Dense {
	return &Dense{
		inputDimension:  in,
		outputDimension: out,
		weights:         tensor.New(in, out),
		gamma:           tensor.New(1, out),
		beta:            tensor.New(1, out),
		runningMean:     tensor.New(1, out),
		runningVariance: tensor.New(1, out),
	}
}

// FeedForward computes the layer output for a batch (one sample per row)
// and returns a copy of it.
func (d *Dense) FeedForward(input *tensor.Matrix, mode Mode) *tensor.Matrix {
	if input.Cols() != d.inputDimension {
		panic(fmt.Sprintf("Dense: input has %d columns, want %d", input.Cols(), d.inputDimension))
	}

	d.mode = mode
	d.input = input.Clone()
	d.activated = nil
	d.outputNormalized = nil
	d.deviationInv = nil
	d.output = d.input.Multiply(d.weights)

	if mode.Hidden() {
		d.activated = d.output.Apply(d.activation().Activate)
		if mode == ModeHiddenInference {
			d.validationOutput()
		} else {
			d.trainingOutput()
		}
	}

	return d.output.Clone()
}

func (d *Dense) activation() activations.Activation {
	if d.mode.Hidden() {
		return activations.ReLU{}
	}
	return activations.Linear{}
}

// trainingOutput normalizes with the statistics of the current batch.
// The variance is taken from the activations before centering.
func (d *Dense) trainingOutput() {
	mean, variance := d.activated.MeanVariance()
	centered := d.activated.Centralized(mean)

	d.updateRunningStatus(mean, variance)

	d.deviationInv = tensor.InvDeviation(variance, Epsilon)
	d.outputNormalized = centered.Hadamard(d.deviationInv)
	d.output = d.outputNormalized.HadamardAffine(d.gamma, d.beta)
}

// validationOutput normalizes with the running statistics and leaves them untouched.
func (d *Dense) validationOutput() {
	centered := d.activated.Centralized(d.runningMean)

	d.deviationInv = tensor.InvDeviation(d.runningVariance, Epsilon)
	d.outputNormalized = centered.Hadamard(d.deviationInv)
	d.output = d.outputNormalized.HadamardAffine(d.gamma, d.beta)
}

func (d *Dense) updateRunningStatus(mean, variance *tensor.Matrix) {
	rm := d.runningMean.RawData()
	rv := d.runningVariance.RawData()
	bm := mean.RawData()
	bv := variance.RawData()
	for i := 0; i < d.outputDimension; i++ {
		rm[i] = Momentum*rm[i] + (1-Momentum)*bm[i]
		rv[i] = Momentum*rv[i] + (1-Momentum)*bv[i]
	}
}

// Backward takes the gradient of the loss with respect to the last output,
// updates weights (and gamma/beta for hidden layers) unless frozen, and returns
// the gradient with respect to the last input.
func (d *Dense) Backward(dOut *tensor.Matrix, learningRate float64) *tensor.Matrix {
	if d.output == nil {
		panic("Dense: Backward called before FeedForward")
	}
	if !dOut.SameShape(d.output) {
		panic(fmt.Sprintf("Dense: gradient is %dx%d, output is %dx%d",
			dOut.Rows(), dOut.Cols(), d.output.Rows(), d.output.Cols()))
	}

	dZ := dOut.Clone()
	var dGamma, dBeta *tensor.Matrix

	if d.mode.Hidden() {
		dGamma = dOut.Hadamard(d.outputNormalized).ColumnSums()
		dBeta = dOut.ColumnSums()
		dXHat := dOut.Hadamard(d.gamma)

		if d.mode == ModeHiddenTraining {
			dZ = d.batchNormBackward(dXHat)
		} else {
			dZ = dXHat.Hadamard(d.deviationInv)
		}

		act := d.activation()
		z := dZ.RawData()
		a := d.activated.RawData()
		for i := range z {
			z[i] *= act.Derivative(a[i])
		}
	}

	dWeights := d.input.Transpose().Multiply(dZ)
	dInput := dZ.Multiply(d.weights.Transpose())

	d.UpdateWeights(dWeights, learningRate)
	if dGamma != nil {
		d.UpdateGammaBeta(dGamma, dBeta, learningRate)
	}
	return dInput
}

// batchNormBackward propagates through normalization with batch statistics:
// dA = deviationInv/N * (N*dXHat - sum(dXHat) - xHat*sum(dXHat*xHat)).
func (d *Dense) batchNormBackward(dXHat *tensor.Matrix) *tensor.Matrix {
	rows, cols := dXHat.Dims()
	n := float64(rows)
	sumD := dXHat.ColumnSums().RawData()
	sumDX := dXHat.Hadamard(d.outputNormalized).ColumnSums().RawData()
	inv := d.deviationInv.RawData()

	dA := tensor.New(rows, cols)
	for i := 0; i < rows; i++ {
		dRow := dXHat.Row(i)
		xRow := d.outputNormalized.Row(i)
		out := dA.Row(i)
		for j := 0; j < cols; j++ {
			out[j] = inv[j] / n * (n*dRow[j] - sumD[j] - xRow[j]*sumDX[j])
		}
	}
	return dA
}

// UpdateWeights applies weights -= learningRate * dWeights in place.
// It does nothing when the layer is frozen.
func (d *Dense) UpdateWeights(dWeights *tensor.Matrix, learningRate float64) {
	if d.frozen {
		return
	}
	if !dWeights.SameShape(d.weights) {
		panic(fmt.Sprintf("Dense: dWeights is %dx%d, weights are %dx%d",
			dWeights.Rows(), dWeights.Cols(), d.inputDimension, d.outputDimension))
	}
	d.weights.CopyFrom(d.weights.Sum(dWeights, -learningRate))
}

// UpdateGammaBeta applies gamma -= lr*dGamma and beta -= lr*dBeta.
// Both gradients must be 1 x outputDimension rows. It does nothing when the layer is frozen.
func (d *Dense) UpdateGammaBeta(dGamma, dBeta *tensor.Matrix, learningRate float64) {
	if d.frozen {
		return
	}
	if dGamma.Rows() != 1 || dBeta.Rows() != 1 {
		panic(fmt.Sprintf("Dense: dGamma/dBeta must be row vectors, got %d and %d rows", dGamma.Rows(), dBeta.Rows()))
	}
	if dGamma.Cols() != d.gamma.Cols() || dBeta.Cols() != d.beta.Cols() {
		panic(fmt.Sprintf("Dense: dGamma/dBeta have %d/%d columns, want %d",
			dGamma.Cols(), dBeta.Cols(), d.outputDimension))
	}

	g := d.gamma.RawData()
	b := d.beta.RawData()
	dg := dGamma.RawData()
	db := dBeta.RawData()
	for i := range dg {
		g[i] -= learningRate * dg[i]
		b[i] -= learningRate * db[i]
	}
}

// Output returns a copy of the last output, or nil before the first forward pass.
func (d *Dense) Output() *tensor.Matrix { return cloneOrNil(d.output) }

// OutputNormalized returns a copy of the last normalized output (before gamma/beta),
// or nil if the last pass was linear.
func (d *Dense) OutputNormalized() *tensor.Matrix { return cloneOrNil(d.outputNormalized) }

// DeviationInv returns a copy of the last 1/sqrt(variance+Epsilon) row,
// or nil if the last pass was linear.
func (d *Dense) DeviationInv() *tensor.Matrix { return cloneOrNil(d.deviationInv) }

// Weights returns a copy of the weights.
func (d *Dense) Weights() *tensor.Matrix { return d.weights.Clone() }

// Gamma returns a copy of the normalization scale.
func (d *Dense) Gamma() *tensor.Matrix { return d.gamma.Clone() }

// Beta returns a copy of the normalization shift.
func (d *Dense) Beta() *tensor.Matrix { return d.beta.Clone() }

// RunningMean returns a copy of the running mean.
func (d *Dense) RunningMean() *tensor.Matrix { return d.runningMean.Clone() }

// RunningVariance returns a copy of the running variance.
func (d *Dense) RunningVariance() *tensor.Matrix { return d.runningVariance.Clone() }

// Params returns copies of all persistent parameters.
func (d *Dense) Params() DenseParams {
	return DenseParams{
		Weights:         d.weights.Data(),
		Gamma:           d.gamma.Data(),
		Beta:            d.beta.Data(),
		RunningMean:     d.runningMean.Data(),
		RunningVariance: d.runningVariance.Data(),
	}
}

// SetFrozen toggles whether updates take effect. Forward computation is unaffected.
func (d *Dense) SetFrozen(value bool) { d.frozen = value }

// Frozen reports whether updates are disabled.
func (d *Dense) Frozen() bool { return d.frozen }

// InSize returns the input size of the layer.
func (d *Dense) InSize() int { return d.inputDimension }

// OutSize returns the output size of the layer.
func (d *Dense) OutSize() int { return d.outputDimension }

func cloneOrNil(m *tensor.Matrix) *tensor.Matrix {
	if m == nil {
		return nil
	}
	return m.Clone()
}
