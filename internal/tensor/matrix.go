// Package tensor provides the dense matrix container used by the layers.
package tensor

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrShape is returned when supplied data does not match the declared extents.
var ErrShape = errors.New("tensor: data length does not match shape")

// Matrix is a row-major float64 matrix backed by a gonum Dense.
// Rows index samples in a batch; columns index features.
type Matrix struct {
	dense *mat.Dense
}

// New allocates a zero-filled rows x cols matrix.
func New(rows, cols int) *Matrix {
	return &Matrix{dense: mat.NewDense(rows, cols, nil)}
}

// NewFromData allocates a matrix holding a copy of data.
func NewFromData(rows, cols int, data []float64) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrShape, rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %dx%d needs %d values, got %d", ErrShape, rows, cols, rows*cols, len(data))
	}
	buf := make([]float64, len(data))
	copy(buf, data)
	return &Matrix{dense: mat.NewDense(rows, cols, buf)}, nil
}

// MustFromData is like NewFromData but panics on a length mismatch.
func MustFromData(rows, cols int, data []float64) *Matrix {
	m, err := NewFromData(rows, cols, data)
	if err != nil {
		panic(err)
	}
	return m
}

// Filled allocates a matrix with every element set to v.
func Filled(rows, cols int, v float64) *Matrix {
	m := New(rows, cols)
	data := m.RawData()
	for i := range data {
		data[i] = v
	}
	return m
}

// FromDense wraps a copy of any gonum matrix.
func FromDense(a mat.Matrix) *Matrix {
	return &Matrix{dense: mat.DenseCopyOf(a)}
}

// NewRNG returns a deterministic random source for weight initialization.
func NewRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int {
	r, _ := m.dense.Dims()
	return r
}

// Cols returns the number of columns.
func (m *Matrix) Cols() int {
	_, c := m.dense.Dims()
	return c
}

// Dims returns rows and columns.
func (m *Matrix) Dims() (int, int) {
	return m.dense.Dims()
}

// Len returns the total element count.
func (m *Matrix) Len() int {
	r, c := m.dense.Dims()
	return r * c
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float64 {
	return m.dense.At(i, j)
}

// Set sets element (i, j).
func (m *Matrix) Set(i, j int, v float64) {
	m.dense.Set(i, j, v)
}

// Data returns a copy of the elements in row-major order.
func (m *Matrix) Data() []float64 {
	raw := m.RawData()
	out := make([]float64, len(raw))
	copy(out, raw)
	return out
}

// RawData returns the backing slice. Writes through it mutate the matrix.
// Every Matrix built by this package is contiguous, so the slice has Len() elements.
func (m *Matrix) RawData() []float64 {
	return m.dense.RawMatrix().Data
}

// Row returns a view of row i. Writes through it mutate the matrix.
func (m *Matrix) Row(i int) []float64 {
	return m.dense.RawRowView(i)
}

// Mat exposes the matrix as a read-only gonum matrix.
func (m *Matrix) Mat() mat.Matrix {
	return m.dense
}

// Clone returns an independent copy.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{dense: mat.DenseCopyOf(m.dense)}
}

// SameShape reports whether o has the same extents as m.
func (m *Matrix) SameShape(o *Matrix) bool {
	r1, c1 := m.Dims()
	r2, c2 := o.Dims()
	return r1 == r2 && c1 == c2
}

// EqualApprox reports whether both matrices match element-wise within tol.
func (m *Matrix) EqualApprox(o *Matrix, tol float64) bool {
	return m.SameShape(o) && mat.EqualApprox(m.dense, o.dense, tol)
}

// CopyFrom overwrites the elements of m with those of src in place.
func (m *Matrix) CopyFrom(src *Matrix) {
	if !m.SameShape(src) {
		panic(fmt.Sprintf("tensor: CopyFrom shape mismatch %dx%d vs %dx%d", m.Rows(), m.Cols(), src.Rows(), src.Cols()))
	}
	m.dense.Copy(src.dense)
}

// Randomize fills the matrix with uniform values in [-scale, scale].
func (m *Matrix) Randomize(rng *rand.Rand, scale float64) {
	data := m.RawData()
	for i := range data {
		data[i] = rng.Float64()*2*scale - scale
	}
}

// Sum returns m + scale*other.
func (m *Matrix) Sum(other *Matrix, scale float64) *Matrix {
	m.mustSameShape(other, "Sum")
	out := m.Clone()
	floats.AddScaled(out.RawData(), scale, other.RawData())
	return out
}

// Scale returns f*m.
func (m *Matrix) Scale(f float64) *Matrix {
	out := New(m.Dims())
	out.dense.Scale(f, m.dense)
	return out
}

// Multiply returns the matrix product m x other.
func (m *Matrix) Multiply(other *Matrix) *Matrix {
	if m.Cols() != other.Rows() {
		panic(fmt.Sprintf("tensor: Multiply inner dimension mismatch %dx%d x %dx%d", m.Rows(), m.Cols(), other.Rows(), other.Cols()))
	}
	out := New(m.Rows(), other.Cols())
	out.dense.Mul(m.dense, other.dense)
	return out
}

// Transpose returns a new matrix holding the transpose of m.
func (m *Matrix) Transpose() *Matrix {
	return &Matrix{dense: mat.DenseCopyOf(m.dense.T())}
}

// Hadamard returns the element-wise product of m and other.
// other is either the same shape as m or a 1 x cols row broadcast over every row.
func (m *Matrix) Hadamard(other *Matrix) *Matrix {
	if m.SameShape(other) {
		out := New(m.Dims())
		out.dense.MulElem(m.dense, other.dense)
		return out
	}
	m.mustRowVector(other, "Hadamard")
	out := m.Clone()
	row := other.RawData()
	for i := 0; i < out.Rows(); i++ {
		floats.Mul(out.Row(i), row)
	}
	return out
}

// HadamardAffine returns m ⊙ scale + shift with both 1 x cols rows broadcast.
func (m *Matrix) HadamardAffine(scale, shift *Matrix) *Matrix {
	m.mustRowVector(scale, "HadamardAffine")
	m.mustRowVector(shift, "HadamardAffine")
	out := m.Hadamard(scale)
	s := shift.RawData()
	for i := 0; i < out.Rows(); i++ {
		floats.Add(out.Row(i), s)
	}
	return out
}

// MeanVariance returns the per-column mean and population variance as 1 x cols rows.
func (m *Matrix) MeanVariance() (mean, variance *Matrix) {
	rows, cols := m.Dims()
	mean = New(1, cols)
	variance = New(1, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m.dense)
		mu, v := stat.PopMeanVariance(col, nil)
		mean.dense.Set(0, j, mu)
		variance.dense.Set(0, j, v)
	}
	return mean, variance
}

// Mean returns the per-column mean as a 1 x cols row.
func (m *Matrix) Mean() *Matrix {
	mean, _ := m.MeanVariance()
	return mean
}

// Variance returns the per-column population variance as a 1 x cols row.
func (m *Matrix) Variance() *Matrix {
	_, variance := m.MeanVariance()
	return variance
}

// Centralized returns m with the 1 x cols mean row subtracted from every row.
func (m *Matrix) Centralized(mean *Matrix) *Matrix {
	m.mustRowVector(mean, "Centralized")
	out := m.Clone()
	mu := mean.RawData()
	for i := 0; i < out.Rows(); i++ {
		floats.Sub(out.Row(i), mu)
	}
	return out
}

// ColumnSums returns the sum over rows for each column as a 1 x cols row.
func (m *Matrix) ColumnSums() *Matrix {
	rows, cols := m.Dims()
	out := New(1, cols)
	sums := out.RawData()
	for i := 0; i < rows; i++ {
		floats.Add(sums, m.Row(i))
	}
	return out
}

// Apply returns a new matrix with fn applied to every element.
func (m *Matrix) Apply(fn func(float64) float64) *Matrix {
	out := New(m.Dims())
	out.dense.Apply(func(_, _ int, v float64) float64 { return fn(v) }, m.dense)
	return out
}

// String formats the matrix for debugging.
func (m *Matrix) String() string {
	return fmt.Sprintf("%v", mat.Formatted(m.dense, mat.Squeeze()))
}

// InvDeviation returns 1/sqrt(variance+eps) for each element of a 1 x n variance row.
func InvDeviation(variance *Matrix, eps float64) *Matrix {
	out := New(variance.Dims())
	out.dense.Apply(func(_, _ int, v float64) float64 {
		return 1 / math.Sqrt(v+eps)
	}, variance.dense)
	return out
}

func (m *Matrix) mustSameShape(o *Matrix, op string) {
	if !m.SameShape(o) {
		panic(fmt.Sprintf("tensor: %s shape mismatch %dx%d vs %dx%d", op, m.Rows(), m.Cols(), o.Rows(), o.Cols()))
	}
}

func (m *Matrix) mustRowVector(o *Matrix, op string) {
	if o.Rows() != 1 || o.Cols() != m.Cols() {
		panic(fmt.Sprintf("tensor: %s expects a 1x%d row, got %dx%d", op, m.Cols(), o.Rows(), o.Cols()))
	}
}
