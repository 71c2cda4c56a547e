package safetensors

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/goccy/go-json"

	"github.com/samcharles93/cnnlstm/internal/tensor"
)

// Write stores matrices as F32 tensors in name order. metadata may be nil.
func Write(path string, mats map[string]tensor.Mat, metadata map[string]string) error {
	names := make([]string, 0, len(mats))
	for name := range mats {
		names = append(names, name)
	}
	slices.Sort(names)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var offset int64
	for _, name := range names {
		m := mats[name]
		size := int64(m.R) * int64(m.C) * 4
		header[name] = tensorHeader{
			DType:       "F32",
			Shape:       []int{m.R, m.C},
			DataOffsets: []int64{offset, offset + size},
		}
		offset += size
	}
	hdr, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	// The payload starts on an 8-byte boundary.
	for len(hdr)%8 != 0 {
		hdr = append(hdr, ' ')
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(hdr)))
	_, _ = w.Write(buf[:])
	_, _ = w.Write(hdr)
	for _, name := range names {
		m := mats[name]
		for r := range m.R {
			for _, v := range m.Row(r) {
				binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
				_, _ = w.Write(buf[:4])
			}
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
