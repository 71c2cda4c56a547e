package nn

import (
	"fmt"

	"github.com/samcharles93/cnnlstm/internal/tensor"
)

// Embedding maps token ids to dense vectors. Its input is a [steps x 1]
// matrix of token ids per sample.
type Embedding struct {
	base
	InputDim    int
	OutputDim   int
	InputLength int

	// InitialWeights, when set, replaces the random initialisation. It must
	// hold exactly one [InputDim x OutputDim] matrix and is copied at build.
	InitialWeights []tensor.Mat

	w   *Param
	ids [][]int
}

// NewEmbedding creates an embedding over a vocabulary of inputDim tokens
// producing outputDim features for sequences of inputLength tokens.
func NewEmbedding(inputDim, outputDim, inputLength int) *Embedding {
	return &Embedding{
		InputDim:    inputDim,
		OutputDim:   outputDim,
		InputLength: inputLength,
	}
}

func (l *Embedding) Kind() string { return "Embedding" }

func (l *Embedding) Params() []*Param {
	if l.w == nil {
		return nil
	}
	return []*Param{l.w}
}

// Weights returns a copy of the embedding matrix.
func (l *Embedding) Weights() []tensor.Mat {
	if l.w == nil {
		return nil
	}
	return []tensor.Mat{l.w.Value.Clone()}
}

func (l *Embedding) build(_ Shape, e *env) (Shape, error) {
	if l.InputDim <= 0 || l.OutputDim <= 0 || l.InputLength <= 0 {
		return Shape{}, fmt.Errorf("%s: input_dim=%d output_dim=%d input_length=%d: %w",
			l.name, l.InputDim, l.OutputDim, l.InputLength, ErrBadConfig)
	}
	l.w = newParam(l.name+"/embeddings", l.InputDim, l.OutputDim)
	if l.InitialWeights != nil {
		if len(l.InitialWeights) != 1 {
			return Shape{}, fmt.Errorf("%s: expected 1 weight matrix, got %d: %w",
				l.name, len(l.InitialWeights), ErrShapeMismatch)
		}
		src := &l.InitialWeights[0]
		if !tensor.SameShape(src, &l.w.Value) {
			return Shape{}, fmt.Errorf("%s: weights are %dx%d, want %dx%d: %w",
				l.name, src.R, src.C, l.InputDim, l.OutputDim, ErrShapeMismatch)
		}
		for i := 0; i < src.R; i++ {
			copy(l.w.Value.Row(i), src.Row(i))
		}
	} else {
		tensor.FillUniform(&l.w.Value, e.rng, 0.05)
	}
	return l.markBuilt(e, Shape{Steps: l.InputLength, Features: l.OutputDim})
}

func (l *Embedding) forward(x []tensor.Mat, _ bool) ([]tensor.Mat, error) {
	if err := checkRows(x, Shape{Steps: l.InputLength, Features: 1}, l.name); err != nil {
		return nil, err
	}
	out := make([]tensor.Mat, len(x))
	l.ids = make([][]int, len(x))
	for b := range x {
		ids := make([]int, l.InputLength)
		y := tensor.NewMat(l.InputLength, l.OutputDim)
		for t := 0; t < l.InputLength; t++ {
			id := int(x[b].Row(t)[0])
			if id < 0 || id >= l.InputDim {
				return nil, fmt.Errorf("%s: token %d not in [0, %d): %w", l.name, id, l.InputDim, ErrTokenOutOfRange)
			}
			ids[t] = id
			copy(y.Row(t), l.w.Value.Row(id))
		}
		l.ids[b] = ids
		out[b] = y
	}
	return out, nil
}

// backward accumulates into the looked-up rows. Token ids are not
// differentiable, so no input gradient is returned.
func (l *Embedding) backward(grad []tensor.Mat) ([]tensor.Mat, error) {
	for b := range grad {
		for t, id := range l.ids[b] {
			tensor.Add(l.w.Grad.Row(id), grad[b].Row(t))
		}
	}
	return nil, nil
}
