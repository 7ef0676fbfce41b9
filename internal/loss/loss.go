// Package loss provides batch loss functions.
package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/normconv/internal/tensor"
)

// Loss is a loss function with derivative over a batch (one sample per row).
type Loss interface {
	// Forward computes the mean loss over the batch.
	Forward(yPred, yTrue *tensor.Matrix) float64

	// Backward computes the gradient of the mean loss w.r.t. yPred.
	Backward(yPred, yTrue *tensor.Matrix) *tensor.Matrix
}

func mustMatch(name string, yPred, yTrue *tensor.Matrix) {
	if !yPred.SameShape(yTrue) {
		panic(fmt.Sprintf("%s: prediction is %dx%d, target is %dx%d",
			name, yPred.Rows(), yPred.Cols(), yTrue.Rows(), yTrue.Cols()))
	}
}

// MSE (Mean Squared Error) loss.
type MSE struct{}

// Forward computes mean squared error: (1/n) * sum((y_pred - y_true)^2) over every element.
func (m MSE) Forward(yPred, yTrue *tensor.Matrix) float64 {
	mustMatch("MSE", yPred, yTrue)
	d := yPred.Sum(yTrue, -1).RawData()
	return floats.Dot(d, d) / float64(len(d))
}

// Backward computes gradient: dL/dy_pred = (2/n) * (y_pred - y_true)
func (m MSE) Backward(yPred, yTrue *tensor.Matrix) *tensor.Matrix {
	mustMatch("MSE", yPred, yTrue)
	return yPred.Sum(yTrue, -1).Scale(2.0 / float64(yPred.Len()))
}

// SoftmaxCrossEntropy applies softmax to logits and computes cross entropy
// against one-hot (or probability) targets, averaged over the batch.
type SoftmaxCrossEntropy struct{}

// Softmax returns the row-wise softmax of logits.
func Softmax(logits *tensor.Matrix) *tensor.Matrix {
	out := logits.Clone()
	for i := 0; i < out.Rows(); i++ {
		row := out.Row(i)
		// Subtract max for numerical stability
		maxVal := floats.Max(row)
		sum := 0.0
		for j := range row {
			row[j] = math.Exp(row[j] - maxVal)
			sum += row[j]
		}
		floats.Scale(1/sum, row)
	}
	return out
}

// Forward computes -mean(sum(y_true * log(softmax(logits) + eps))).
func (s SoftmaxCrossEntropy) Forward(logits, yTrue *tensor.Matrix) float64 {
	mustMatch("SoftmaxCrossEntropy", logits, yTrue)

	const eps = 1e-10
	probs := Softmax(logits).RawData()
	target := yTrue.RawData()
	var sum float64
	for i, p := range probs {
		if target[i] != 0 {
			sum -= target[i] * math.Log(p+eps)
		}
	}
	return sum / float64(logits.Rows())
}

// Backward computes (softmax(logits) - y_true) / batch.
func (s SoftmaxCrossEntropy) Backward(logits, yTrue *tensor.Matrix) *tensor.Matrix {
	mustMatch("SoftmaxCrossEntropy", logits, yTrue)
	return Softmax(logits).Sum(yTrue, -1).Scale(1 / float64(logits.Rows()))
}
