// Package sequence prepares token sequences for fixed-length model input.
package sequence

// Side selects which end of a sequence is padded or truncated.
type Side int

const (
	// Pre pads or truncates at the start, keeping the tail of the sequence.
	Pre Side = iota
	// Post pads or truncates at the end, keeping the head of the sequence.
	Post
)

// PadOptions controls Pad. The zero value pads and truncates at the start
// with token 0.
type PadOptions struct {
	Padding    Side
	Truncating Side
	Value      int
}

// Pad returns copies of seqs all of length maxLen. Short sequences are filled
// with opts.Value, long ones are cut. A maxLen of zero or less uses the
// length of the longest sequence. The input is never modified.
func Pad(seqs [][]int, maxLen int, opts PadOptions) [][]int {
	if maxLen <= 0 {
		for _, s := range seqs {
			maxLen = max(maxLen, len(s))
		}
	}
	out := make([][]int, len(seqs))
	for i, s := range seqs {
		if len(s) > maxLen {
			if opts.Truncating == Pre {
				s = s[len(s)-maxLen:]
			} else {
				s = s[:maxLen]
			}
		}
		row := make([]int, maxLen)
		fill := maxLen - len(s)
		if opts.Padding == Pre {
			fillRange(row[:fill], opts.Value)
			copy(row[fill:], s)
		} else {
			copy(row, s)
			fillRange(row[len(s):], opts.Value)
		}
		out[i] = row
	}
	return out
}

func fillRange(dst []int, v int) {
	if v == 0 {
		return
	}
	for i := range dst {
		dst[i] = v
	}
}
