package sequence

import (
	"errors"
	"reflect"
	"testing"
)

func TestPad(t *testing.T) {
	t.Parallel()
	seqs := [][]int{{1, 2, 3, 4, 5}, {6, 7}, {}}

	tests := []struct {
		name   string
		maxLen int
		opts   PadOptions
		want   [][]int
	}{
		{
			name:   "default-pre",
			maxLen: 3,
			want:   [][]int{{3, 4, 5}, {0, 6, 7}, {0, 0, 0}},
		},
		{
			name:   "post-padding-post-truncating",
			maxLen: 3,
			opts:   PadOptions{Padding: Post, Truncating: Post},
			want:   [][]int{{1, 2, 3}, {6, 7, 0}, {0, 0, 0}},
		},
		{
			name:   "value",
			maxLen: 4,
			opts:   PadOptions{Value: 9},
			want:   [][]int{{2, 3, 4, 5}, {9, 9, 6, 7}, {9, 9, 9, 9}},
		},
		{
			name:   "longest",
			maxLen: 0,
			want:   [][]int{{1, 2, 3, 4, 5}, {0, 0, 0, 6, 7}, {0, 0, 0, 0, 0}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pad(seqs, tt.maxLen, tt.opts)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPadEveryRowHasMaxLen(t *testing.T) {
	t.Parallel()
	seqs := make([][]int, 50)
	for i := range seqs {
		seqs[i] = make([]int, i*3)
	}
	for _, row := range Pad(seqs, 17, PadOptions{}) {
		if len(row) != 17 {
			t.Fatalf("row length %d, want 17", len(row))
		}
	}
}

func TestPadDoesNotAliasInput(t *testing.T) {
	t.Parallel()
	seqs := [][]int{{1, 2, 3}}
	out := Pad(seqs, 3, PadOptions{})
	out[0][0] = 42
	if seqs[0][0] != 1 {
		t.Fatal("Pad modified its input")
	}
}

func TestToCategorical(t *testing.T) {
	t.Parallel()
	got, err := ToCategorical([]int{0, 2, 1}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]float32{{1, 0, 0}, {0, 0, 1}, {0, 1, 0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}

	if _, err := ToCategorical([]int{3}, 3); !errors.Is(err, ErrLabelOutOfRange) {
		t.Fatalf("expected ErrLabelOutOfRange, got %v", err)
	}
}

func TestToBinary(t *testing.T) {
	t.Parallel()
	got := ToBinary([]int{0, 1, 5})
	want := [][]float32{{0}, {1}, {1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}
