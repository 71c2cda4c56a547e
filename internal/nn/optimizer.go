package nn

import (
	"fmt"
	"math"
)

// optimizer applies accumulated gradients to parameters. Slot state is keyed
// by parameter so one optimizer serves a whole model.
type optimizer interface {
	name() string
	update(params []*Param)
}

func newOptimizer(name string) (optimizer, error) {
	switch name {
	case "sgd":
		return &sgd{lr: 0.01}, nil
	case "rmsprop":
		return &rmsprop{lr: 0.001, rho: 0.9, slots: map[*Param][]float32{}}, nil
	case "adagrad":
		return &adagrad{lr: 0.01, slots: map[*Param][]float32{}}, nil
	case "adam":
		return &adam{
			lr:    0.001,
			beta1: 0.9,
			beta2: 0.999,
			m:     map[*Param][]float32{},
			v:     map[*Param][]float32{},
		}, nil
	default:
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownOptimizer)
	}
}

func slot(slots map[*Param][]float32, p *Param) []float32 {
	s, ok := slots[p]
	if !ok {
		s = make([]float32, len(p.Value.Data))
		slots[p] = s
	}
	return s
}

type sgd struct {
	lr float32
}

func (o *sgd) name() string { return "sgd" }

func (o *sgd) update(params []*Param) {
	for _, p := range params {
		for i, g := range p.Grad.Data {
			p.Value.Data[i] -= o.lr * g
		}
	}
}

type rmsprop struct {
	lr, rho float32
	slots   map[*Param][]float32
}

func (o *rmsprop) name() string { return "rmsprop" }

func (o *rmsprop) update(params []*Param) {
	for _, p := range params {
		acc := slot(o.slots, p)
		for i, g := range p.Grad.Data {
			acc[i] = o.rho*acc[i] + (1-o.rho)*g*g
			p.Value.Data[i] -= o.lr * g / (sqrt32(acc[i]) + epsilon)
		}
	}
}

type adagrad struct {
	lr    float32
	slots map[*Param][]float32
}

func (o *adagrad) name() string { return "adagrad" }

func (o *adagrad) update(params []*Param) {
	for _, p := range params {
		acc := slot(o.slots, p)
		for i, g := range p.Grad.Data {
			acc[i] += g * g
			p.Value.Data[i] -= o.lr * g / (sqrt32(acc[i]) + epsilon)
		}
	}
}

type adam struct {
	lr, beta1, beta2 float32
	step             int
	m, v             map[*Param][]float32
}

func (o *adam) name() string { return "adam" }

func (o *adam) update(params []*Param) {
	o.step++
	t := float64(o.step)
	lr := o.lr * float32(math.Sqrt(1-math.Pow(float64(o.beta2), t))/(1-math.Pow(float64(o.beta1), t)))
	for _, p := range params {
		m := slot(o.m, p)
		v := slot(o.v, p)
		for i, g := range p.Grad.Data {
			m[i] = o.beta1*m[i] + (1-o.beta1)*g
			v[i] = o.beta2*v[i] + (1-o.beta2)*g*g
			p.Value.Data[i] -= lr * m[i] / (sqrt32(v[i]) + epsilon)
		}
	}
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
