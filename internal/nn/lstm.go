package nn

import (
	"fmt"

	"github.com/samcharles93/cnnlstm/internal/tensor"
)

// LSTM is a long short-term memory layer with gates ordered input, forget,
// cell, output. It emits the last hidden state, or every hidden state when
// ReturnSequences is set.
//
// A Stateful LSTM carries the final hidden and cell state of sample i in one
// batch over as the initial state of sample i in the next. State is dropped
// when the batch size changes or ResetStates is called. Gradients do not flow
// across batch boundaries.
type LSTM struct {
	base
	Units           int
	ReturnSequences bool
	Stateful        bool

	in      Shape
	w, u, b *Param

	states []lstmState
	caches []lstmCache
}

type lstmState struct {
	h, c []float32
}

type lstmCache struct {
	x          *tensor.Mat
	h0, c0     []float32
	i, f, g, o tensor.Mat
	c, tc, h   tensor.Mat
}

// LSTMOption configures an LSTM layer.
type LSTMOption func(*LSTM)

// ReturnSequences makes the layer emit its hidden state at every step.
func ReturnSequences() LSTMOption {
	return func(l *LSTM) { l.ReturnSequences = true }
}

// WithStatefulness keeps state across batches.
func WithStatefulness() LSTMOption {
	return func(l *LSTM) { l.Stateful = true }
}

func NewLSTM(units int, opts ...LSTMOption) *LSTM {
	l := &LSTM{Units: units}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *LSTM) Kind() string { return "LSTM" }

func (l *LSTM) Params() []*Param {
	if l.w == nil {
		return nil
	}
	return []*Param{l.w, l.u, l.b}
}

// ResetStates zeroes the carried state of a stateful layer.
func (l *LSTM) ResetStates() {
	l.states = nil
}

func (l *LSTM) build(in Shape, e *env) (Shape, error) {
	if l.Units <= 0 {
		return Shape{}, fmt.Errorf("%s: units=%d: %w", l.name, l.Units, ErrBadConfig)
	}
	if !in.Sequence() {
		return Shape{}, fmt.Errorf("%s: expects sequence input, got %s: %w", l.name, in, ErrShapeMismatch)
	}
	l.in = in
	n := 4 * l.Units
	l.w = newParam(l.name+"/kernel", in.Features, n)
	l.u = newParam(l.name+"/recurrent_kernel", l.Units, n)
	l.b = newParam(l.name+"/bias", 1, n)
	tensor.FillGlorot(&l.w.Value, e.rng)
	tensor.FillGlorot(&l.u.Value, e.rng)
	// Forget gate bias starts at one.
	bias := l.b.Value.Row(0)
	for j := l.Units; j < 2*l.Units; j++ {
		bias[j] = 1
	}
	out := Shape{Features: l.Units}
	if l.ReturnSequences {
		out.Steps = in.Steps
	}
	return l.markBuilt(e, out)
}

func (l *LSTM) forward(x []tensor.Mat, _ bool) ([]tensor.Mat, error) {
	if err := checkRows(x, l.in, l.name); err != nil {
		return nil, err
	}
	if l.Stateful && len(l.states) != len(x) {
		l.states = make([]lstmState, len(x))
	}
	out := make([]tensor.Mat, len(x))
	l.caches = make([]lstmCache, len(x))
	err := forEachRow(l.workers(), len(x), func(b int) error {
		out[b] = l.step(b, &x[b])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *LSTM) step(b int, x *tensor.Mat) tensor.Mat {
	u, steps := l.Units, l.in.Steps
	cache := lstmCache{
		x:  x,
		h0: make([]float32, u),
		c0: make([]float32, u),
		i:  tensor.NewMat(steps, u),
		f:  tensor.NewMat(steps, u),
		g:  tensor.NewMat(steps, u),
		o:  tensor.NewMat(steps, u),
		c:  tensor.NewMat(steps, u),
		tc: tensor.NewMat(steps, u),
		h:  tensor.NewMat(steps, u),
	}
	if l.Stateful && l.states[b].h != nil {
		copy(cache.h0, l.states[b].h)
		copy(cache.c0, l.states[b].c)
	}

	z := make([]float32, 4*u)
	rec := make([]float32, 4*u)
	hPrev, cPrev := cache.h0, cache.c0
	for t := 0; t < steps; t++ {
		tensor.VecMat(z, x.Row(t), &l.w.Value)
		tensor.VecMat(rec, hPrev, &l.u.Value)
		tensor.Add(z, rec)
		tensor.Add(z, l.b.Value.Row(0))

		ig, fg, gg, og := cache.i.Row(t), cache.f.Row(t), cache.g.Row(t), cache.o.Row(t)
		ct, tct, ht := cache.c.Row(t), cache.tc.Row(t), cache.h.Row(t)
		for j := 0; j < u; j++ {
			ig[j] = tensor.Sigmoid(z[j])
			fg[j] = tensor.Sigmoid(z[u+j])
			gg[j] = tensor.Tanh(z[2*u+j])
			og[j] = tensor.Sigmoid(z[3*u+j])
			ct[j] = fg[j]*cPrev[j] + ig[j]*gg[j]
			tct[j] = tensor.Tanh(ct[j])
			ht[j] = og[j] * tct[j]
		}
		hPrev, cPrev = ht, ct
	}
	l.caches[b] = cache

	if l.Stateful {
		l.states[b] = lstmState{
			h: append([]float32(nil), hPrev...),
			c: append([]float32(nil), cPrev...),
		}
	}
	if l.ReturnSequences {
		return cache.h.Clone()
	}
	y := tensor.NewMat(1, u)
	copy(y.Row(0), hPrev)
	return y
}

func (l *LSTM) backward(grad []tensor.Mat) ([]tensor.Mat, error) {
	u, steps := l.Units, l.in.Steps
	dz := make([]float32, 4*u)
	dh := make([]float32, u)
	dhNext := make([]float32, u)
	dcNext := make([]float32, u)
	out := make([]tensor.Mat, len(grad))
	for b := range grad {
		cache := &l.caches[b]
		dx := tensor.NewMat(steps, l.in.Features)
		clear(dhNext)
		clear(dcNext)
		for t := steps - 1; t >= 0; t-- {
			copy(dh, dhNext)
			switch {
			case l.ReturnSequences:
				tensor.Add(dh, grad[b].Row(t))
			case t == steps-1:
				tensor.Add(dh, grad[b].Row(0))
			}

			hPrev, cPrev := cache.h0, cache.c0
			if t > 0 {
				hPrev, cPrev = cache.h.Row(t-1), cache.c.Row(t-1)
			}
			ig, fg, gg, og := cache.i.Row(t), cache.f.Row(t), cache.g.Row(t), cache.o.Row(t)
			tct := cache.tc.Row(t)
			for j := 0; j < u; j++ {
				do := dh[j] * tct[j]
				dc := dh[j]*og[j]*(1-tct[j]*tct[j]) + dcNext[j]
				dz[j] = dc * gg[j] * ig[j] * (1 - ig[j])
				dz[u+j] = dc * cPrev[j] * fg[j] * (1 - fg[j])
				dz[2*u+j] = dc * ig[j] * (1 - gg[j]*gg[j])
				dz[3*u+j] = do * og[j] * (1 - og[j])
				dcNext[j] = dc * fg[j]
			}
			tensor.AddOuter(&l.w.Grad, cache.x.Row(t), dz)
			tensor.AddOuter(&l.u.Grad, hPrev, dz)
			tensor.Add(l.b.Grad.Row(0), dz)
			tensor.MatVec(dx.Row(t), &l.w.Value, dz)
			tensor.MatVec(dhNext, &l.u.Value, dz)
		}
		out[b] = dx
	}
	return out, nil
}
