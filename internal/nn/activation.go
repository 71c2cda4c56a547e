package nn

import (
	"fmt"

	"github.com/samcharles93/cnnlstm/internal/tensor"
)

// activation applies a nonlinearity in place on one row and maps an output
// gradient back to a pre-activation gradient using only the activation output.
type activation struct {
	name     string
	apply    func(row []float32)
	gradient func(dz, grad, y []float32)
}

var activations = map[string]activation{
	"linear": {
		name:  "linear",
		apply: func([]float32) {},
		gradient: func(dz, grad, _ []float32) {
			copy(dz, grad)
		},
	},
	"relu": {
		name: "relu",
		apply: func(row []float32) {
			for i, v := range row {
				row[i] = tensor.Relu(v)
			}
		},
		gradient: func(dz, grad, y []float32) {
			for i := range dz {
				if y[i] > 0 {
					dz[i] = grad[i]
				} else {
					dz[i] = 0
				}
			}
		},
	},
	"tanh": {
		name: "tanh",
		apply: func(row []float32) {
			for i, v := range row {
				row[i] = tensor.Tanh(v)
			}
		},
		gradient: func(dz, grad, y []float32) {
			for i := range dz {
				dz[i] = grad[i] * (1 - y[i]*y[i])
			}
		},
	},
	"sigmoid": {
		name: "sigmoid",
		apply: func(row []float32) {
			for i, v := range row {
				row[i] = tensor.Sigmoid(v)
			}
		},
		gradient: func(dz, grad, y []float32) {
			for i := range dz {
				dz[i] = grad[i] * y[i] * (1 - y[i])
			}
		},
	},
	"softmax": {
		name:  "softmax",
		apply: tensor.Softmax,
		gradient: func(dz, grad, y []float32) {
			s := tensor.Dot(grad, y)
			for i := range dz {
				dz[i] = y[i] * (grad[i] - s)
			}
		},
	},
}

func lookupActivation(name string) (activation, error) {
	if name == "" {
		name = "linear"
	}
	a, ok := activations[name]
	if !ok {
		return activation{}, fmt.Errorf("%q: %w", name, ErrUnknownActivation)
	}
	return a, nil
}
