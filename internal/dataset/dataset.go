// Package dataset reads text classification samples, either pre-tokenised
// or as raw text.
package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/goccy/go-json"

	"github.com/samcharles93/cnnlstm/internal/tokenizer"
)

var ErrEmpty = errors.New("dataset has no samples")

// Record is one line of a JSONL dataset. Text is only read when Tokens is
// absent.
type Record struct {
	Tokens []int  `json:"tokens,omitempty"`
	Text   string `json:"text,omitempty"`
	Label  int    `json:"label"`
}

// Samples holds token sequences and their integer class labels. Texts is
// parallel to Tokens and is nil when no record carried text.
type Samples struct {
	Tokens [][]int
	Texts  []string
	Labels []int
}

func (s Samples) Len() int { return len(s.Tokens) }

// NumClasses returns one more than the largest label.
func (s Samples) NumClasses() int {
	n := 0
	for _, l := range s.Labels {
		n = max(n, l+1)
	}
	return n
}

// ReadJSONL parses one Record per line. Blank lines are skipped.
func ReadJSONL(r io.Reader) (Samples, error) {
	var s Samples
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return Samples{}, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.Label < 0 {
			return Samples{}, fmt.Errorf("line %d: negative label %d", line, rec.Label)
		}
		if rec.Text != "" && s.Texts == nil {
			s.Texts = make([]string, len(s.Tokens), len(s.Tokens)+1)
		}
		if s.Texts != nil {
			s.Texts = append(s.Texts, rec.Text)
		}
		s.Tokens = append(s.Tokens, rec.Tokens)
		s.Labels = append(s.Labels, rec.Label)
	}
	if err := sc.Err(); err != nil {
		return Samples{}, err
	}
	if s.Len() == 0 {
		return Samples{}, ErrEmpty
	}
	return s, nil
}

// LoadJSONL reads a JSONL dataset from disk.
func LoadJSONL(path string) (Samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return Samples{}, err
	}
	defer func() { _ = f.Close() }()
	s, err := ReadJSONL(f)
	if err != nil {
		return Samples{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// SyntheticConfig describes a generated dataset.
type SyntheticConfig struct {
	Samples   int   `yaml:"samples"`
	Vocab     int   `yaml:"vocab"`
	MinLength int   `yaml:"min_length"`
	MaxLength int   `yaml:"max_length"`
	Classes   int   `yaml:"classes"`
	Seed      int64 `yaml:"seed"`
}

// Synthetic generates a learnable dataset: each class owns a band of the
// vocabulary and roughly half of every sequence is drawn from its class band,
// the rest uniformly. Token 0 is never emitted so it stays free for padding.
func Synthetic(cfg SyntheticConfig) Samples {
	rng := rand.New(rand.NewSource(cfg.Seed))
	classes := max(cfg.Classes, 1)
	vocab := max(cfg.Vocab, classes+1)
	band := max((vocab-1)/classes, 1)
	minLen := max(cfg.MinLength, 1)
	maxLen := max(cfg.MaxLength, minLen)

	s := Samples{
		Tokens: make([][]int, cfg.Samples),
		Labels: make([]int, cfg.Samples),
	}
	for i := range s.Tokens {
		label := rng.Intn(classes)
		row := make([]int, minLen+rng.Intn(maxLen-minLen+1))
		for t := range row {
			if rng.Intn(2) == 0 {
				row[t] = 1 + label*band + rng.Intn(band)
			} else {
				row[t] = 1 + rng.Intn(vocab-1)
			}
		}
		s.Tokens[i] = row
		s.Labels[i] = label
	}
	return s
}

// NeedsTokenizing reports whether some record has text but no tokens.
func (s Samples) NeedsTokenizing() bool {
	for i, text := range s.Texts {
		if text != "" && s.Tokens[i] == nil {
			return true
		}
	}
	return false
}

// Tokenize encodes every text-only record with tok.
func (s Samples) Tokenize(tok tokenizer.Tokenizer) error {
	for i, text := range s.Texts {
		if text == "" || s.Tokens[i] != nil {
			continue
		}
		ids, err := tok.Encode(text)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		s.Tokens[i] = ids
	}
	return nil
}

// Split divides samples into a train and test part, holding out testFraction
// of them from the end. A positive fraction holds out at least one sample
// whenever two or more are available.
func (s Samples) Split(testFraction float64) (Samples, Samples) {
	n := s.Len()
	held := int(float64(n) * testFraction)
	if testFraction > 0 && held == 0 && n > 1 {
		held = 1
	}
	cut := min(max(n-held, 0), n)
	train := Samples{Tokens: s.Tokens[:cut], Labels: s.Labels[:cut]}
	test := Samples{Tokens: s.Tokens[cut:], Labels: s.Labels[cut:]}
	if s.Texts != nil {
		train.Texts, test.Texts = s.Texts[:cut], s.Texts[cut:]
	}
	return train, test
}
