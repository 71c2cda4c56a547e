// Package nn is a small sequential layer framework for sequence classifiers.
//
// Layers are stacked on a Sequential container, bound to a loss and an
// optimizer with Compile, and trained with Fit. A batch is a slice of
// tensor.Mat, one per sample: sequence activations are [steps x features]
// and flat activations are [1 x features].
package nn

import (
	"fmt"
	"math/rand"

	"github.com/samcharles93/cnnlstm/internal/tensor"
)

// Shape is the per-sample shape of a layer output. Steps is zero for flat
// (non-sequence) activations.
type Shape struct {
	Steps    int
	Features int
}

// Sequence reports whether the shape carries a time axis.
func (s Shape) Sequence() bool { return s.Steps > 0 }

func (s Shape) String() string {
	if s.Steps > 0 {
		return fmt.Sprintf("(None, %d, %d)", s.Steps, s.Features)
	}
	return fmt.Sprintf("(None, %d)", s.Features)
}

func (s Shape) rows() int {
	if s.Steps > 0 {
		return s.Steps
	}
	return 1
}

// Param is a trainable weight with its accumulated gradient.
type Param struct {
	Name  string
	Value tensor.Mat
	Grad  tensor.Mat
}

func newParam(name string, r, c int) *Param {
	return &Param{
		Name:  name,
		Value: tensor.NewMat(r, c),
		Grad:  tensor.NewMat(r, c),
	}
}

// WeightSource exposes a list of weight matrices, such as a trained
// embedding layer whose weights seed a new one.
type WeightSource interface {
	Weights() []tensor.Mat
}

// StaticWeights is a WeightSource over fixed matrices, typically loaded from
// disk.
type StaticWeights []tensor.Mat

func (s StaticWeights) Weights() []tensor.Mat { return s }

// Layer is one transformation in a Sequential topology. Layers are created
// with the New* constructors in this package.
type Layer interface {
	Name() string
	Kind() string
	OutputShape() Shape
	Params() []*Param

	setName(name string)
	build(in Shape, e *env) (Shape, error)
	forward(x []tensor.Mat, training bool) ([]tensor.Mat, error)
	backward(grad []tensor.Mat) ([]tensor.Mat, error)
}

// Stateful is implemented by layers that carry state across batches.
type Stateful interface {
	ResetStates()
}

// env is the build environment shared by every layer of a model.
type env struct {
	rng     *rand.Rand
	workers int
}

type base struct {
	name  string
	out   Shape
	built bool
	e     *env
}

func (b *base) Name() string        { return b.name }
func (b *base) OutputShape() Shape  { return b.out }
func (b *base) setName(name string) { b.name = name }
func (b *base) Params() []*Param    { return nil }
func (b *base) workers() int        { return b.e.workers }

func (b *base) markBuilt(e *env, out Shape) (Shape, error) {
	b.e = e
	b.out = out
	b.built = true
	return out, nil
}

func checkRows(x []tensor.Mat, want Shape, layer string) error {
	for i := range x {
		if x[i].R != want.rows() || x[i].C != want.Features {
			return fmt.Errorf("%s: sample %d is %dx%d, want %dx%d: %w",
				layer, i, x[i].R, x[i].C, want.rows(), want.Features, ErrShapeMismatch)
		}
	}
	return nil
}
