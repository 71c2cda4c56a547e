package tensor

import (
	"math"
	"math/rand"
)

// Mat represents a dense row‑major matrix of float32 values.
//
// R and C represent the number of rows and columns respectively. Stride is the
// number of elements between the starts of two consecutive rows (for row‑major
// matrices this is equal to C). Data holds the flattened matrix values.
//
// Mat does not perform any memory safety beyond the checks performed by Go's
// slice types; out‑of‑range indices will panic.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a new matrix with the given number of rows and columns.
// The underlying slice is zero initialised. The stride is set to the
// number of columns.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   make([]float32, r*c),
	}
}

// NewMatFromData creates a matrix from existing data.
// It checks that the data length matches r*c.
func NewMatFromData(r, c int, data []float32) Mat {
	if r*c != len(data) {
		panic("data length mismatch")
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   data,
	}
}

// Row returns a view of the i‑th row of the matrix as a slice. The slice
// has length equal to the number of columns. Modifications to the returned
// slice update the underlying matrix values.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// Clone returns a deep copy of m with a packed stride.
func (m *Mat) Clone() Mat {
	out := NewMat(m.R, m.C)
	for i := 0; i < m.R; i++ {
		copy(out.Row(i), m.Row(i))
	}
	return out
}

// Zero sets every element to zero.
func (m *Mat) Zero() {
	clear(m.Data)
}

// SameShape reports whether a and b have identical dimensions.
func SameShape(a, b *Mat) bool {
	return a.R == b.R && a.C == b.C
}

// FillUniform fills the matrix with values drawn uniformly from
// [-limit, limit) using rng.
func FillUniform(m *Mat, rng *rand.Rand, limit float32) {
	for i := range m.Data {
		m.Data[i] = (rng.Float32()*2 - 1) * limit
	}
}

// FillGlorot fills the matrix using Glorot (Xavier) uniform initialisation
// with fanIn and fanOut taken from the matrix shape.
func FillGlorot(m *Mat, rng *rand.Rand) {
	limit := float32(math.Sqrt(6.0 / float64(m.R+m.C)))
	FillUniform(m, rng, limit)
}

// FillRand fills the matrix with reproducible pseudo‑random values in a small
// range around zero. Multiple calls with the same seed produce identical
// matrices.
func FillRand(m *Mat, seed int64) {
	FillUniform(m, rand.New(rand.NewSource(seed)), 0.01)
}
