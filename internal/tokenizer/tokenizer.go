// Package tokenizer turns raw text into the integer ids an Embedding layer
// consumes.
package tokenizer

import "errors"

var ErrUnknownID = errors.New("unknown token id")

// Tokenizer defines the minimal interface used by the dataset loader.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}
