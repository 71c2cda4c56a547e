package nn

import (
	"fmt"
	"math"
)

const epsilon = 1e-7

// loss scores one sample. gradient writes dLoss/dPred into dst.
type loss struct {
	name     string
	value    func(pred, target []float32) float64
	gradient func(dst, pred, target []float32)
}

func clip(p float32) float32 {
	return min(max(p, epsilon), 1-epsilon)
}

var losses = map[string]loss{
	"binary_crossentropy": {
		name: "binary_crossentropy",
		value: func(pred, target []float32) float64 {
			var sum float64
			for i := range pred {
				p, t := float64(clip(pred[i])), float64(target[i])
				sum -= t*math.Log(p) + (1-t)*math.Log(1-p)
			}
			return sum / float64(len(pred))
		},
		gradient: func(dst, pred, target []float32) {
			n := float32(len(pred))
			for i := range pred {
				p := clip(pred[i])
				dst[i] = (p - target[i]) / (p * (1 - p)) / n
			}
		},
	},
	"categorical_crossentropy": {
		name: "categorical_crossentropy",
		value: func(pred, target []float32) float64 {
			var sum float64
			for i := range pred {
				if target[i] == 0 {
					continue
				}
				sum -= float64(target[i]) * math.Log(float64(clip(pred[i])))
			}
			return sum
		},
		gradient: func(dst, pred, target []float32) {
			for i := range pred {
				dst[i] = -target[i] / clip(pred[i])
			}
		},
	},
	"mean_squared_error": {
		name: "mean_squared_error",
		value: func(pred, target []float32) float64 {
			var sum float64
			for i := range pred {
				d := float64(pred[i] - target[i])
				sum += d * d
			}
			return sum / float64(len(pred))
		},
		gradient: func(dst, pred, target []float32) {
			n := float32(len(pred))
			for i := range pred {
				dst[i] = 2 * (pred[i] - target[i]) / n
			}
		},
	},
}

func lookupLoss(name string) (loss, error) {
	if name == "mse" {
		name = "mean_squared_error"
	}
	l, ok := losses[name]
	if !ok {
		return loss{}, fmt.Errorf("%q: %w", name, ErrUnknownLoss)
	}
	return l, nil
}
