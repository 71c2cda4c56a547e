package tensor

import (
	"math"
)

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Axpy computes dst += a*x.
func Axpy(dst []float32, a float32, x []float32) {
	for i := range dst {
		dst[i] += a * x[i]
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// VecMat computes dst = x·W where x has length W.R and dst has length W.C.
// dst is overwritten.
func VecMat(dst, x []float32, w *Mat) {
	if len(x) != w.R || len(dst) != w.C {
		panic("VecMat dimension mismatch")
	}
	clear(dst)
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		Axpy(dst, xi, w.Row(i))
	}
}

// MatVec computes dst = W·g where g has length W.C and dst has length W.R.
// This is the transpose product used to push gradients back through VecMat.
func MatVec(dst []float32, w *Mat, g []float32) {
	if len(g) != w.C || len(dst) != w.R {
		panic("MatVec dimension mismatch")
	}
	for i := range dst {
		dst[i] = Dot(w.Row(i), g)
	}
}

// AddOuter accumulates the outer product x⊗g into w.
func AddOuter(w *Mat, x, g []float32) {
	if len(x) != w.R || len(g) != w.C {
		panic("AddOuter dimension mismatch")
	}
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		Axpy(w.Row(i), xi, g)
	}
}

// Softmax applies the softmax function to x.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// Sigmoid computes the logistic sigmoid activation.
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}

// Tanh computes the hyperbolic tangent.
func Tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

// Relu computes max(0, x).
func Relu(x float32) float32 {
	if x < 0 {
		return 0
	}
	return x
}

// Argmax returns the index of the largest element of x, or -1 when x is empty.
// Ties resolve to the lowest index.
func Argmax(x []float32) int {
	if len(x) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}
