package sequence

import (
	"errors"
	"fmt"
)

var ErrLabelOutOfRange = errors.New("label out of range")

// ToCategorical one-hot encodes class labels into numClasses columns.
func ToCategorical(labels []int, numClasses int) ([][]float32, error) {
	out := make([][]float32, len(labels))
	for i, l := range labels {
		if l < 0 || l >= numClasses {
			return nil, fmt.Errorf("label %d at %d not in [0, %d): %w", l, i, numClasses, ErrLabelOutOfRange)
		}
		row := make([]float32, numClasses)
		row[l] = 1
		out[i] = row
	}
	return out, nil
}

// ToBinary encodes 0/1 labels as single-column targets. Any non-zero label
// is treated as positive.
func ToBinary(labels []int) [][]float32 {
	out := make([][]float32, len(labels))
	for i, l := range labels {
		if l != 0 {
			out[i] = []float32{1}
		} else {
			out[i] = []float32{0}
		}
	}
	return out
}
