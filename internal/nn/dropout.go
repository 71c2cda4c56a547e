package nn

import (
	"fmt"
	"math/rand"

	"github.com/samcharles93/cnnlstm/internal/tensor"
)

// Dropout zeroes a fraction Rate of its inputs during training and scales the
// survivors by 1/(1-Rate). At inference it is the identity.
type Dropout struct {
	base
	Rate float64

	rng   *rand.Rand
	masks []tensor.Mat
}

func NewDropout(rate float64) *Dropout {
	return &Dropout{Rate: rate}
}

func (l *Dropout) Kind() string { return "Dropout" }

func (l *Dropout) build(in Shape, e *env) (Shape, error) {
	if l.Rate < 0 || l.Rate >= 1 {
		return Shape{}, fmt.Errorf("%s: rate %v not in [0, 1): %w", l.name, l.Rate, ErrBadConfig)
	}
	l.rng = rand.New(rand.NewSource(e.rng.Int63()))
	return l.markBuilt(e, in)
}

func (l *Dropout) forward(x []tensor.Mat, training bool) ([]tensor.Mat, error) {
	if !training || l.Rate == 0 {
		l.masks = nil
		return x, nil
	}
	if err := checkRows(x, l.out, l.name); err != nil {
		return nil, err
	}
	keep := float32(1 / (1 - l.Rate))
	out := make([]tensor.Mat, len(x))
	l.masks = make([]tensor.Mat, len(x))
	for b := range x {
		mask := tensor.NewMat(x[b].R, x[b].C)
		y := tensor.NewMat(x[b].R, x[b].C)
		for i := range mask.Data {
			if l.rng.Float64() >= l.Rate {
				mask.Data[i] = keep
			}
		}
		for i := 0; i < x[b].R; i++ {
			xr, yr, mr := x[b].Row(i), y.Row(i), mask.Row(i)
			for j := range yr {
				yr[j] = xr[j] * mr[j]
			}
		}
		l.masks[b] = mask
		out[b] = y
	}
	return out, nil
}

func (l *Dropout) backward(grad []tensor.Mat) ([]tensor.Mat, error) {
	if l.masks == nil {
		return grad, nil
	}
	out := make([]tensor.Mat, len(grad))
	for b := range grad {
		dx := tensor.NewMat(grad[b].R, grad[b].C)
		for i := 0; i < grad[b].R; i++ {
			gr, dr, mr := grad[b].Row(i), dx.Row(i), l.masks[b].Row(i)
			for j := range dr {
				dr[j] = gr[j] * mr[j]
			}
		}
		out[b] = dx
	}
	return out, nil
}
