package nn

import (
	"fmt"

	"github.com/samcharles93/cnnlstm/internal/tensor"
)

// NamedWeights returns a copy of every trainable matrix keyed by parameter
// name, e.g. "lstm_1/recurrent_kernel".
func (m *Sequential) NamedWeights() (map[string]tensor.Mat, error) {
	if !m.compiled {
		return nil, ErrNotCompiled
	}
	out := make(map[string]tensor.Mat)
	for _, p := range m.params() {
		out[p.Name] = p.Value.Clone()
	}
	return out, nil
}

// SetWeights overwrites every trainable matrix from w. All parameters must be
// present with matching shapes; nothing is modified otherwise. Extra entries
// are ignored.
func (m *Sequential) SetWeights(w map[string]tensor.Mat) error {
	if !m.compiled {
		return ErrNotCompiled
	}
	params := m.params()
	for _, p := range params {
		src, ok := w[p.Name]
		if !ok {
			return fmt.Errorf("%s: %w", p.Name, ErrMissingWeight)
		}
		if !tensor.SameShape(&p.Value, &src) {
			return fmt.Errorf("%s: have %dx%d, want %dx%d: %w",
				p.Name, src.R, src.C, p.Value.R, p.Value.C, ErrShapeMismatch)
		}
	}
	for _, p := range params {
		src := w[p.Name]
		for r := range src.R {
			copy(p.Value.Row(r), src.Row(r))
		}
	}
	m.ResetStates()
	return nil
}
