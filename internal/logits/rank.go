// Package logits turns classifier outputs into ranked class predictions.
package logits

import "github.com/samcharles93/cnnlstm/internal/tensor"

// Class is one ranked prediction.
type Class struct {
	Index int     `json:"class"`
	Prob  float32 `json:"prob"`
}

// RankConfig configures Rank.
type RankConfig struct {
	// TopK caps the number of classes returned. Zero or less keeps all.
	TopK int
	// MinP drops classes whose probability is below MinP times the best one.
	MinP float32
}

// Distribution returns per-class probabilities for a model output row. A
// single sigmoid output p becomes the two-class distribution [1-p, p]; wider
// rows are assumed to be softmax outputs and are copied unchanged.
func Distribution(out []float32) []float32 {
	if len(out) == 1 {
		return []float32{1 - out[0], out[0]}
	}
	return append([]float32(nil), out...)
}

// Rank orders the classes of a model output row by probability.
func Rank(out []float32, cfg RankConfig) []Class {
	probs := Distribution(out)
	k := cfg.TopK
	if k <= 0 || k > len(probs) {
		k = len(probs)
	}
	top := TopK(probs, k)
	if cfg.MinP > 0 && len(top) > 0 {
		threshold := top[0].Prob * cfg.MinP
		n := 0
		for _, c := range top {
			if c.Prob >= threshold {
				top[n] = c
				n++
			}
		}
		top = top[:n]
	}
	return top
}

// TopK returns the k largest values in descending order using a sorted
// shortlist. Ties keep the lower index first.
func TopK(vals []float32, k int) []Class {
	if k <= 0 {
		return nil
	}
	top := make([]Class, 0, k+1)
	for i, v := range vals {
		if len(top) == k && v <= top[k-1].Prob {
			continue
		}
		pos := len(top)
		for pos > 0 && v > top[pos-1].Prob {
			pos--
		}
		top = append(top, Class{})
		copy(top[pos+1:], top[pos:])
		top[pos] = Class{Index: i, Prob: v}
		if len(top) > k {
			top = top[:k]
		}
	}
	return top
}

// Predicted returns the winning class of a model output row: the sigmoid
// output thresholded at 0.5 for one column, the argmax otherwise. It returns
// -1 for an empty row.
func Predicted(out []float32) int {
	switch len(out) {
	case 0:
		return -1
	case 1:
		if out[0] >= 0.5 {
			return 1
		}
		return 0
	}
	return tensor.Argmax(out)
}
