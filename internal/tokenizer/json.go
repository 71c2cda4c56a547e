package tokenizer

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

type vocabJSON struct {
	NumWords int      `json:"num_words"`
	OOVToken string   `json:"oov_token,omitempty"`
	KeepCase bool     `json:"keep_case,omitempty"`
	Words    []string `json:"words"`
}

// Save writes the vocabulary as JSON. Words are listed in id order starting
// at id 1.
func (v *Vocab) Save(path string) error {
	data, err := json.Marshal(vocabJSON{
		NumWords: v.opts.NumWords,
		OOVToken: v.opts.OOVToken,
		KeepCase: v.opts.KeepCase,
		Words:    v.words[1:],
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadVocab reads a vocabulary written by Save.
func LoadVocab(path string) (*Vocab, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var vj vocabJSON
	if err := json.Unmarshal(raw, &vj); err != nil {
		return nil, fmt.Errorf("parse vocab %s: %w", path, err)
	}
	if vj.OOVToken != "" && (len(vj.Words) == 0 || vj.Words[0] != vj.OOVToken) {
		return nil, fmt.Errorf("vocab %s: oov token %q must have id 1", path, vj.OOVToken)
	}
	opts := Options{NumWords: vj.NumWords, OOVToken: vj.OOVToken, KeepCase: vj.KeepCase}
	return newVocab(append([]string{""}, vj.Words...), opts), nil
}
