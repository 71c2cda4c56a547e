package nn

import (
	"fmt"

	"github.com/samcharles93/cnnlstm/internal/tensor"
)

// Dense is a fully connected layer with a fused activation. It requires flat
// input.
type Dense struct {
	base
	Units      int
	Activation string

	in   Shape
	act  activation
	w, b *Param
	xs   []tensor.Mat
	outs []tensor.Mat
}

func NewDense(units int, activation string) *Dense {
	return &Dense{Units: units, Activation: activation}
}

func (l *Dense) Kind() string { return "Dense" }

func (l *Dense) Params() []*Param {
	if l.w == nil {
		return nil
	}
	return []*Param{l.w, l.b}
}

func (l *Dense) build(in Shape, e *env) (Shape, error) {
	if l.Units <= 0 {
		return Shape{}, fmt.Errorf("%s: units=%d: %w", l.name, l.Units, ErrBadConfig)
	}
	if in.Sequence() {
		return Shape{}, fmt.Errorf("%s: expects flat input, got %s: %w", l.name, in, ErrShapeMismatch)
	}
	act, err := lookupActivation(l.Activation)
	if err != nil {
		return Shape{}, fmt.Errorf("%s: %w", l.name, err)
	}
	l.in = in
	l.act = act
	l.w = newParam(l.name+"/kernel", in.Features, l.Units)
	l.b = newParam(l.name+"/bias", 1, l.Units)
	tensor.FillGlorot(&l.w.Value, e.rng)
	return l.markBuilt(e, Shape{Features: l.Units})
}

func (l *Dense) forward(x []tensor.Mat, _ bool) ([]tensor.Mat, error) {
	if err := checkRows(x, l.in, l.name); err != nil {
		return nil, err
	}
	out := make([]tensor.Mat, len(x))
	err := forEachRow(l.workers(), len(x), func(b int) error {
		y := tensor.NewMat(1, l.Units)
		row := y.Row(0)
		tensor.VecMat(row, x[b].Row(0), &l.w.Value)
		tensor.Add(row, l.b.Value.Row(0))
		l.act.apply(row)
		out[b] = y
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.xs = x
	l.outs = out
	return out, nil
}

func (l *Dense) backward(grad []tensor.Mat) ([]tensor.Mat, error) {
	dz := make([]float32, l.Units)
	out := make([]tensor.Mat, len(grad))
	for b := range grad {
		l.act.gradient(dz, grad[b].Row(0), l.outs[b].Row(0))
		tensor.AddOuter(&l.w.Grad, l.xs[b].Row(0), dz)
		tensor.Add(l.b.Grad.Row(0), dz)
		dx := tensor.NewMat(1, l.in.Features)
		tensor.MatVec(dx.Row(0), &l.w.Value, dz)
		out[b] = dx
	}
	return out, nil
}
