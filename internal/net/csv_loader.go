package net

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/normconv/internal/tensor"
)

// Dataset holds samples and labels, one row per example.
type Dataset struct {
	Samples *tensor.Matrix
	Labels  *tensor.Matrix
}

// Len returns the number of examples.
func (d *Dataset) Len() int {
	if d.Samples == nil {
		return 0
	}
	return d.Samples.Rows()
}

// LoadCSV loads data from a CSV file.
// labelCols specifies the indices of columns to be used as labels, in order.
// All other columns are used as features.
// hasHeader skips the first line if true.
func LoadCSV(filename string, labelCols []int, hasHeader bool) (*Dataset, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("csv file is empty")
	}

	startRow := 0
	if hasHeader {
		startRow = 1
	}
	if len(records) <= startRow {
		return nil, fmt.Errorf("csv file has no data rows")
	}

	if len(labelCols) == 0 {
		return nil, fmt.Errorf("at least one label column is required")
	}

	numCols := len(records[0])
	isLabelCol := make(map[int]bool)
	for _, col := range labelCols {
		if col < 0 || col >= numCols {
			return nil, fmt.Errorf("label column %d out of range [0,%d)", col, numCols)
		}
		isLabelCol[col] = true
	}
	numFeatures := numCols - len(isLabelCol)
	if numFeatures == 0 {
		return nil, fmt.Errorf("csv file has no feature columns")
	}

	numSamples := len(records) - startRow
	samples := tensor.New(numSamples, numFeatures)
	labels := tensor.New(numSamples, len(labelCols))

	values := make([]float64, numCols)
	for i := startRow; i < len(records); i++ {
		record := records[i]
		if len(record) != numCols {
			return nil, fmt.Errorf("inconsistent number of columns at row %d", i)
		}

		for j, valStr := range record {
			val, err := strconv.ParseFloat(valStr, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse value at row %d, col %d: %w", i, j, err)
			}
			values[j] = val
		}

		sample := samples.Row(i - startRow)
		k := 0
		for j, v := range values {
			if !isLabelCol[j] {
				sample[k] = v
				k++
			}
		}
		label := labels.Row(i - startRow)
		for k, col := range labelCols {
			label[k] = values[col]
		}
	}

	return &Dataset{Samples: samples, Labels: labels}, nil
}

// Normalize performs min-max normalization on each feature column.
// Constant columns become zero.
func (d *Dataset) Normalize() {
	if d.Len() == 0 {
		return
	}

	cols := d.Samples.Cols()
	column := make([]float64, d.Samples.Rows())
	for j := 0; j < cols; j++ {
		for i := range column {
			column[i] = d.Samples.At(i, j)
		}
		lo, hi := floats.Min(column), floats.Max(column)
		for i, v := range column {
			if hi != lo {
				d.Samples.Set(i, j, (v-lo)/(hi-lo))
			} else {
				d.Samples.Set(i, j, 0)
			}
		}
	}
}

// Split splits the dataset into two based on the given ratio (0.0 to 1.0).
// Returns two new Datasets (train, test) that copy their rows.
func (d *Dataset) Split(ratio float64) (*Dataset, *Dataset) {
	n := d.Len()
	splitIdx := int(float64(n) * ratio)
	splitIdx = max(0, min(n, splitIdx))

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	return d.subset(all[:splitIdx]), d.subset(all[splitIdx:])
}

func (d *Dataset) subset(idx []int) *Dataset {
	if len(idx) == 0 {
		return &Dataset{}
	}
	return &Dataset{
		Samples: gatherRows(d.Samples, idx),
		Labels:  gatherRows(d.Labels, idx),
	}
}

// OneHot expands a single column of class indices into one column per class.
func OneHot(labels *tensor.Matrix, classes int) (*tensor.Matrix, error) {
	if labels.Cols() != 1 {
		return nil, fmt.Errorf("one-hot expects a single label column, got %d", labels.Cols())
	}
	out := tensor.New(labels.Rows(), classes)
	for i := 0; i < labels.Rows(); i++ {
		c := int(labels.At(i, 0))
		if float64(c) != labels.At(i, 0) || c < 0 || c >= classes {
			return nil, fmt.Errorf("row %d: label %v is not a class in [0,%d)", i, labels.At(i, 0), classes)
		}
		out.Set(i, c, 1)
	}
	return out, nil
}
