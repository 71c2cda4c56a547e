package nn

import (
	"fmt"

	"github.com/samcharles93/cnnlstm/internal/tensor"
)

// MaxPool1D takes the maximum over non-padded temporal windows. Trailing
// steps that do not fill a window are dropped.
type MaxPool1D struct {
	base
	PoolSize int
	Strides  int

	in     Shape
	argmax [][]int
}

// NewMaxPool1D creates a pooling layer whose stride equals its window.
func NewMaxPool1D(poolSize int) *MaxPool1D {
	return &MaxPool1D{PoolSize: poolSize, Strides: poolSize}
}

func (l *MaxPool1D) Kind() string { return "MaxPooling1D" }

func (l *MaxPool1D) build(in Shape, e *env) (Shape, error) {
	if l.PoolSize <= 0 {
		return Shape{}, fmt.Errorf("%s: pool_size=%d: %w", l.name, l.PoolSize, ErrBadConfig)
	}
	if l.Strides <= 0 {
		l.Strides = l.PoolSize
	}
	if !in.Sequence() || in.Steps < l.PoolSize {
		return Shape{}, fmt.Errorf("%s: input %s too short for pool %d: %w",
			l.name, in, l.PoolSize, ErrShapeMismatch)
	}
	l.in = in
	steps := (in.Steps-l.PoolSize)/l.Strides + 1
	return l.markBuilt(e, Shape{Steps: steps, Features: in.Features})
}

func (l *MaxPool1D) forward(x []tensor.Mat, _ bool) ([]tensor.Mat, error) {
	if err := checkRows(x, l.in, l.name); err != nil {
		return nil, err
	}
	f := l.in.Features
	out := make([]tensor.Mat, len(x))
	l.argmax = make([][]int, len(x))
	for b := range x {
		y := tensor.NewMat(l.out.Steps, f)
		idx := make([]int, l.out.Steps*f)
		for o := 0; o < l.out.Steps; o++ {
			start := o * l.Strides
			row := y.Row(o)
			copy(row, x[b].Row(start))
			for j := 0; j < f; j++ {
				idx[o*f+j] = start
			}
			for t := start + 1; t < start+l.PoolSize; t++ {
				xr := x[b].Row(t)
				for j := 0; j < f; j++ {
					if xr[j] > row[j] {
						row[j] = xr[j]
						idx[o*f+j] = t
					}
				}
			}
		}
		l.argmax[b] = idx
		out[b] = y
	}
	return out, nil
}

func (l *MaxPool1D) backward(grad []tensor.Mat) ([]tensor.Mat, error) {
	f := l.in.Features
	out := make([]tensor.Mat, len(grad))
	for b := range grad {
		dx := tensor.NewMat(l.in.Steps, f)
		idx := l.argmax[b]
		for o := 0; o < l.out.Steps; o++ {
			g := grad[b].Row(o)
			for j := 0; j < f; j++ {
				dx.Row(idx[o*f+j])[j] += g[j]
			}
		}
		out[b] = dx
	}
	return out, nil
}
