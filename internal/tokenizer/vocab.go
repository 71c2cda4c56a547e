package tokenizer

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// wordPattern keeps runs of anything that is neither whitespace nor common
// punctuation. Apostrophes stay inside words.
var wordPattern = regexp.MustCompile("[^\\s!\"#$%&()*+,\\-./:;<=>?@\\[\\\\\\]^_`{|}~]+")

// Options controls how a Vocab is fitted.
type Options struct {
	// NumWords caps ids: only ids below NumWords are emitted. Zero keeps
	// every word.
	NumWords int
	// OOVToken, when set, takes id 1 and replaces words outside the cap.
	// Otherwise such words are dropped.
	OOVToken string
	// KeepCase disables lowercasing.
	KeepCase bool
}

// Vocab maps words to ids ranked by frequency, most frequent first. Id 0 is
// reserved for padding and never assigned.
type Vocab struct {
	opts  Options
	index map[string]int
	words []string
}

// Fit ranks every word in texts by count. Ties keep first-seen order.
func Fit(texts []string, opts Options) *Vocab {
	counts := make(map[string]int)
	var order []string
	for _, text := range texts {
		for _, w := range splitWords(text, !opts.KeepCase) {
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}
	slices.SortStableFunc(order, func(a, b string) int {
		return counts[b] - counts[a]
	})

	words := []string{""}
	if opts.OOVToken != "" {
		words = append(words, opts.OOVToken)
	}
	for _, w := range order {
		if w != opts.OOVToken {
			words = append(words, w)
		}
	}
	return newVocab(words, opts)
}

func newVocab(words []string, opts Options) *Vocab {
	index := make(map[string]int, len(words))
	for id, w := range words[1:] {
		index[w] = id + 1
	}
	return &Vocab{opts: opts, index: index, words: words}
}

// Len is the number of indexed words, excluding the padding id.
func (v *Vocab) Len() int { return len(v.words) - 1 }

func (v *Vocab) Options() Options { return v.opts }

// Capped returns a Vocab that emits only ids below n. A tighter existing cap
// is kept. The word index is shared with v.
func (v *Vocab) Capped(n int) *Vocab {
	if n <= 0 || (v.opts.NumWords > 0 && v.opts.NumWords <= n) {
		return v
	}
	c := *v
	c.opts.NumWords = n
	return &c
}

// ID looks a word up without applying the NumWords cap.
func (v *Vocab) ID(word string) (int, bool) {
	id, ok := v.index[word]
	return id, ok
}

func (v *Vocab) Encode(text string) ([]int, error) {
	words := splitWords(text, !v.opts.KeepCase)
	ids := make([]int, 0, len(words))
	for _, w := range words {
		id, ok := v.index[w]
		if ok && (v.opts.NumWords <= 0 || id < v.opts.NumWords) {
			ids = append(ids, id)
			continue
		}
		if v.opts.OOVToken != "" {
			ids = append(ids, 1)
		}
	}
	return ids, nil
}

// Decode joins the words for ids with single spaces. Padding ids are
// skipped.
func (v *Vocab) Decode(ids []int) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if id < 0 || id >= len(v.words) {
			return "", fmt.Errorf("%d: %w", id, ErrUnknownID)
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(v.words[id])
	}
	return sb.String(), nil
}

func splitWords(text string, lower bool) []string {
	if lower {
		text = strings.ToLower(text)
	}
	return wordPattern.FindAllString(text, -1)
}
