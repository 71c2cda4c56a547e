package tokenizer

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"
)

var corpus = []string{
	"The cat sat on the mat.",
	"the dog ate the cat's dinner!",
	"A dog, a cat; THE END",
}

func TestFitRanksByFrequency(t *testing.T) {
	t.Parallel()
	v := Fit(corpus, Options{})

	// the x5, cat x2, dog x2, a x2 ... ties keep first-seen order.
	want := map[string]int{"the": 1, "cat": 2, "dog": 3, "a": 4, "sat": 5}
	for w, id := range want {
		got, ok := v.ID(w)
		if !ok || got != id {
			t.Errorf("ID(%q) = %d, %v; want %d", w, got, ok, id)
		}
	}
	if _, ok := v.ID("cat's"); !ok {
		t.Error("apostrophes should stay inside words")
	}
	if _, ok := v.ID("The"); ok {
		t.Error("words should be lowercased")
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		opts Options
		text string
		want []int
	}{
		{"plain", Options{}, "the cat, the dog", []int{1, 2, 1, 3}},
		{"unknown-dropped", Options{}, "the zebra", []int{1}},
		{"capped", Options{NumWords: 3}, "the cat sat dog", []int{1, 2}},
		{"oov", Options{OOVToken: "<unk>"}, "the zebra", []int{2, 1}},
		{"oov-capped", Options{OOVToken: "<unk>", NumWords: 3}, "dog the", []int{1, 2}},
		{"empty", Options{}, "  ...  ", []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Fit(corpus, tt.opts).Encode(tt.text)
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("Encode(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()
	v := Fit(corpus, Options{})
	got, err := v.Decode([]int{0, 0, 1, 2, 5})
	if err != nil {
		t.Fatal(err)
	}
	if got != "the cat sat" {
		t.Fatalf("Decode = %q", got)
	}
	if _, err := v.Decode([]int{v.Len() + 1}); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
}

func TestCapped(t *testing.T) {
	t.Parallel()
	v := Fit(corpus, Options{})
	capped := v.Capped(3)
	got, _ := capped.Encode("the cat sat dog")
	if !slices.Equal(got, []int{1, 2}) {
		t.Fatalf("Encode after Capped(3) = %v, want [1 2]", got)
	}
	if v.Options().NumWords != 0 {
		t.Fatal("Capped must not change the receiver")
	}
	if v.Capped(0) != v {
		t.Fatal("Capped(0) should return the receiver")
	}
	if n := Fit(corpus, Options{NumWords: 3}).Capped(10).Options().NumWords; n != 3 {
		t.Fatalf("tighter existing cap should be kept, got %d", n)
	}
}

func TestSaveLoadVocab(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "vocab.json")
	v := Fit(corpus, Options{NumWords: 4, OOVToken: "<unk>"})
	if err := v.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadVocab(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != v.Len() || loaded.Options() != v.Options() {
		t.Fatalf("loaded %d words %+v, want %d %+v", loaded.Len(), loaded.Options(), v.Len(), v.Options())
	}
	text := "the dog ate a zebra"
	a, _ := v.Encode(text)
	b, _ := loaded.Encode(text)
	if !slices.Equal(a, b) {
		t.Fatalf("encodings differ: %v vs %v", a, b)
	}
}

func TestLoadVocabErrors(t *testing.T) {
	t.Parallel()
	if _, err := LoadVocab(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
