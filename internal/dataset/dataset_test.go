package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/cnnlstm/internal/tokenizer"
)

func TestReadJSONL(t *testing.T) {
	in := `{"tokens":[1,2,3],"label":1}

{"tokens":[],"label":0}
{"tokens":[7],"label":4}
`
	s, err := ReadJSONL(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []int{1, 2, 3}, s.Tokens[0])
	assert.Empty(t, s.Tokens[1])
	assert.Equal(t, []int{7}, s.Tokens[2])
	assert.Equal(t, []int{1, 0, 4}, s.Labels)
	assert.Equal(t, 5, s.NumClasses())
}

func TestReadJSONLErrors(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader("{\"tokens\":[1],\"label\":0}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = ReadJSONL(strings.NewReader(`{"tokens":[1],"label":-1}`))
	require.Error(t, err)

	_, err = ReadJSONL(strings.NewReader("\n\n"))
	require.True(t, errors.Is(err, ErrEmpty))
}

func TestLoadJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"tokens":[3,4],"label":1}`+"\n"), 0o644))
	s, err := LoadJSONL(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, s.Labels)

	_, err = LoadJSONL(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
}

func TestSynthetic(t *testing.T) {
	cfg := SyntheticConfig{Samples: 200, Vocab: 40, MinLength: 5, MaxLength: 15, Classes: 4, Seed: 7}
	a := Synthetic(cfg)
	b := Synthetic(cfg)
	assert.Equal(t, a, b, "same seed must give same data")
	require.Equal(t, 200, a.Len())

	for i, row := range a.Tokens {
		assert.GreaterOrEqual(t, len(row), 5)
		assert.LessOrEqual(t, len(row), 15)
		for _, tok := range row {
			assert.Greater(t, tok, 0)
			assert.Less(t, tok, 40)
		}
		assert.GreaterOrEqual(t, a.Labels[i], 0)
		assert.Less(t, a.Labels[i], 4)
	}
}

func TestSplit(t *testing.T) {
	s := Synthetic(SyntheticConfig{Samples: 10, Vocab: 10, MinLength: 1, MaxLength: 2, Classes: 2})
	train, test := s.Split(0.3)
	assert.Equal(t, 7, train.Len())
	assert.Equal(t, 3, test.Len())
	assert.Equal(t, s.Tokens[7], test.Tokens[0])
}

func TestSplitHoldsOutAtLeastOne(t *testing.T) {
	s := Synthetic(SyntheticConfig{Samples: 4, Vocab: 10, MinLength: 1, MaxLength: 2, Classes: 2})
	tests := []struct {
		name      string
		samples   Samples
		fraction  float64
		wantTrain int
		wantTest  int
	}{
		{"small", s, 0.2, 3, 1},
		{"no-holdout", s, 0, 4, 0},
		{"single", Samples{Tokens: s.Tokens[:1], Labels: s.Labels[:1]}, 0.2, 1, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			train, test := tc.samples.Split(tc.fraction)
			assert.Equal(t, tc.wantTrain, train.Len())
			assert.Equal(t, tc.wantTest, test.Len())
		})
	}
}

func TestReadJSONLText(t *testing.T) {
	in := `{"tokens":[5,6],"label":0}
{"text":"good movie","label":1}
{"text":"bad movie","label":0}
`
	s, err := ReadJSONL(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, s.Texts, 3)
	assert.Equal(t, "", s.Texts[0])
	assert.Equal(t, "good movie", s.Texts[1])
	assert.True(t, s.NeedsTokenizing())

	vocab := tokenizer.Fit(s.Texts, tokenizer.Options{})
	require.NoError(t, s.Tokenize(vocab))
	assert.False(t, s.NeedsTokenizing())
	assert.Equal(t, []int{5, 6}, s.Tokens[0], "pre-tokenised records are kept")
	assert.Equal(t, []int{2, 1}, s.Tokens[1])
	assert.Equal(t, []int{3, 1}, s.Tokens[2])

	train, test := s.Split(0.5)
	assert.Equal(t, s.Texts[:2], train.Texts)
	assert.Equal(t, s.Texts[2:], test.Texts)
}

func TestTokenOnlyDatasetHasNoTexts(t *testing.T) {
	s, err := ReadJSONL(strings.NewReader(`{"tokens":[1],"label":0}`))
	require.NoError(t, err)
	assert.Nil(t, s.Texts)
	assert.False(t, s.NeedsTokenizing())
}
