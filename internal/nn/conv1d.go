package nn

import (
	"fmt"

	"github.com/samcharles93/cnnlstm/internal/tensor"
)

// Conv1D is a temporal convolution with a fused activation. Padding is
// "valid" (no padding) or "same" (output length ceil(steps/stride)).
type Conv1D struct {
	base
	Filters    int
	KernelSize int
	Strides    int
	Padding    string
	Activation string

	in      Shape
	padLeft int
	act     activation
	w, b    *Param
	patches []tensor.Mat
	outs    []tensor.Mat
}

// NewConv1D creates a stride-1 convolution.
func NewConv1D(filters, kernelSize int, padding, activation string) *Conv1D {
	return &Conv1D{
		Filters:    filters,
		KernelSize: kernelSize,
		Strides:    1,
		Padding:    padding,
		Activation: activation,
	}
}

func (l *Conv1D) Kind() string { return "Conv1D" }

func (l *Conv1D) Params() []*Param {
	if l.w == nil {
		return nil
	}
	return []*Param{l.w, l.b}
}

func (l *Conv1D) build(in Shape, e *env) (Shape, error) {
	if l.Filters <= 0 || l.KernelSize <= 0 || l.Strides <= 0 {
		return Shape{}, fmt.Errorf("%s: filters=%d kernel_size=%d strides=%d: %w",
			l.name, l.Filters, l.KernelSize, l.Strides, ErrBadConfig)
	}
	if !in.Sequence() {
		return Shape{}, fmt.Errorf("%s: expects sequence input, got %s: %w", l.name, in, ErrShapeMismatch)
	}
	act, err := lookupActivation(l.Activation)
	if err != nil {
		return Shape{}, fmt.Errorf("%s: %w", l.name, err)
	}
	var steps int
	switch l.Padding {
	case "", "valid":
		if in.Steps < l.KernelSize {
			return Shape{}, fmt.Errorf("%s: %d steps shorter than kernel %d: %w",
				l.name, in.Steps, l.KernelSize, ErrShapeMismatch)
		}
		steps = (in.Steps-l.KernelSize)/l.Strides + 1
		l.padLeft = 0
	case "same":
		steps = (in.Steps + l.Strides - 1) / l.Strides
		total := max((steps-1)*l.Strides+l.KernelSize-in.Steps, 0)
		l.padLeft = total / 2
	default:
		return Shape{}, fmt.Errorf("%s: padding %q: %w", l.name, l.Padding, ErrBadConfig)
	}
	l.in = in
	l.act = act
	l.w = newParam(l.name+"/kernel", l.KernelSize*in.Features, l.Filters)
	l.b = newParam(l.name+"/bias", 1, l.Filters)
	tensor.FillGlorot(&l.w.Value, e.rng)
	return l.markBuilt(e, Shape{Steps: steps, Features: l.Filters})
}

// patch gathers the receptive field of output step o into dst, leaving
// zeros where the window overhangs the input.
func (l *Conv1D) patch(dst []float32, x *tensor.Mat, o int) {
	clear(dst)
	start := o*l.Strides - l.padLeft
	f := l.in.Features
	for k := 0; k < l.KernelSize; k++ {
		t := start + k
		if t < 0 || t >= x.R {
			continue
		}
		copy(dst[k*f:(k+1)*f], x.Row(t))
	}
}

func (l *Conv1D) forward(x []tensor.Mat, _ bool) ([]tensor.Mat, error) {
	if err := checkRows(x, l.in, l.name); err != nil {
		return nil, err
	}
	out := make([]tensor.Mat, len(x))
	l.patches = make([]tensor.Mat, len(x))
	err := forEachRow(l.workers(), len(x), func(b int) error {
		patches := tensor.NewMat(l.out.Steps, l.KernelSize*l.in.Features)
		y := tensor.NewMat(l.out.Steps, l.Filters)
		for o := 0; o < l.out.Steps; o++ {
			p := patches.Row(o)
			l.patch(p, &x[b], o)
			row := y.Row(o)
			tensor.VecMat(row, p, &l.w.Value)
			tensor.Add(row, l.b.Value.Row(0))
			l.act.apply(row)
		}
		l.patches[b] = patches
		out[b] = y
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.outs = out
	return out, nil
}

func (l *Conv1D) backward(grad []tensor.Mat) ([]tensor.Mat, error) {
	f := l.in.Features
	dz := make([]float32, l.Filters)
	dp := make([]float32, l.KernelSize*f)
	out := make([]tensor.Mat, len(grad))
	for b := range grad {
		dx := tensor.NewMat(l.in.Steps, f)
		for o := 0; o < l.out.Steps; o++ {
			l.act.gradient(dz, grad[b].Row(o), l.outs[b].Row(o))
			tensor.AddOuter(&l.w.Grad, l.patches[b].Row(o), dz)
			tensor.Add(l.b.Grad.Row(0), dz)
			tensor.MatVec(dp, &l.w.Value, dz)
			start := o*l.Strides - l.padLeft
			for k := 0; k < l.KernelSize; k++ {
				t := start + k
				if t < 0 || t >= l.in.Steps {
					continue
				}
				tensor.Add(dx.Row(t), dp[k*f:(k+1)*f])
			}
		}
		out[b] = dx
	}
	return out, nil
}
