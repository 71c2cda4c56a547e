package safetensors

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/samcharles93/cnnlstm/internal/tensor"
)

type testTensor struct {
	dtype string
	shape []int
	data  []byte
}

// writeSafetensors creates a minimal safetensors file for testing. Tensors
// are laid out in the order given.
func writeSafetensors(t *testing.T, path string, names []string, tensors map[string]testTensor) {
	t.Helper()
	header := map[string]any{"__metadata__": map[string]string{"format": "pt"}}
	var payload []byte
	for _, name := range names {
		tt := tensors[name]
		start := int64(len(payload))
		payload = append(payload, tt.data...)
		header[name] = tensorHeader{
			DType:       tt.dtype,
			Shape:       tt.shape,
			DataOffsets: []int64{start, int64(len(payload))},
		}
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	out := append(lenBuf[:], headerBytes...)
	out = append(out, payload...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func f32Bytes(vals ...float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func u16Bytes(vals ...uint16) []byte {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return b
}

func TestOpenAndReadF32(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "emb.safetensors")
	writeSafetensors(t, path, []string{"bias", "embeddings"}, map[string]testTensor{
		"bias":       {dtype: "F32", shape: []int{2}, data: f32Bytes(9, 9)},
		"embeddings": {dtype: "F32", shape: []int{2, 3}, data: f32Bytes(1, 2, 3, 4, 5, 6)},
	})

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	if names := f.Names(); len(names) != 2 || names[0] != "bias" || names[1] != "embeddings" {
		t.Fatalf("unexpected names: %v", names)
	}
	vals, info, err := f.ReadTensorF32("embeddings")
	if err != nil {
		t.Fatalf("ReadTensorF32: %v", err)
	}
	if info.DType != "F32" || len(info.Shape) != 2 {
		t.Fatalf("unexpected info: %+v", info)
	}
	for i, want := range []float32{1, 2, 3, 4, 5, 6} {
		if vals[i] != want {
			t.Fatalf("index %d: want %v, got %v", i, want, vals[i])
		}
	}
}

func TestReadHalfPrecision(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "half.safetensors")
	writeSafetensors(t, path, []string{"bf", "fp"}, map[string]testTensor{
		// bf16 1.0 = 0x3F80, -2.0 = 0xC000
		"bf": {dtype: "BF16", shape: []int{1, 2}, data: u16Bytes(0x3F80, 0xC000)},
		// fp16 1.0 = 0x3C00, 0.5 = 0x3800
		"fp": {dtype: "F16", shape: []int{1, 2}, data: u16Bytes(0x3C00, 0x3800)},
	})

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	tests := []struct {
		name string
		want []float32
	}{
		{"bf", []float32{1, -2}},
		{"fp", []float32{1, 0.5}},
	}
	for _, tc := range tests {
		got, _, err := f.ReadTensorF32(tc.name)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Errorf("%s[%d]: want %v, got %v", tc.name, i, tc.want[i], got[i])
			}
		}
	}
}

func TestLoadMatrix(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "single.safetensors")
	writeSafetensors(t, path, []string{"w"}, map[string]testTensor{
		"w": {dtype: "F32", shape: []int{3, 2}, data: f32Bytes(1, 2, 3, 4, 5, 6)},
	})

	m, err := LoadMatrix(path, "")
	if err != nil {
		t.Fatalf("LoadMatrix: %v", err)
	}
	if m.R != 3 || m.C != 2 {
		t.Fatalf("want 3x2, got %dx%d", m.R, m.C)
	}
	if row := m.Row(2); row[0] != 5 || row[1] != 6 {
		t.Fatalf("unexpected last row %v", row)
	}
}

func TestLoadMatrixErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	multi := filepath.Join(dir, "multi.safetensors")
	writeSafetensors(t, multi, []string{"a", "b"}, map[string]testTensor{
		"a": {dtype: "F32", shape: []int{1, 1}, data: f32Bytes(1)},
		"b": {dtype: "F32", shape: []int{2}, data: f32Bytes(1, 2)},
	})
	ints := filepath.Join(dir, "ints.safetensors")
	writeSafetensors(t, ints, []string{"i"}, map[string]testTensor{
		"i": {dtype: "I64", shape: []int{1, 1}, data: make([]byte, 8)},
	})

	tests := []struct {
		name    string
		path    string
		tensor  string
		wantErr error
	}{
		{"ambiguous", multi, "", ErrTensorNotFound},
		{"missing", multi, "c", ErrTensorNotFound},
		{"not-2d", multi, "b", ErrCorruptFile},
		{"dtype", ints, "", ErrUnsupportedType},
	}
	for _, tc := range tests {
		if _, err := LoadMatrix(tc.path, tc.tensor); !errors.Is(err, tc.wantErr) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestOpenCorruptFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	short := filepath.Join(dir, "short.safetensors")
	if err := os.WriteFile(short, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(short); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("short file: expected ErrCorruptFile, got %v", err)
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 1<<20)
	huge := filepath.Join(dir, "huge.safetensors")
	if err := os.WriteFile(huge, append(lenBuf[:], '{', '}'), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(huge); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("oversized header: expected ErrCorruptFile, got %v", err)
	}

	if _, err := Open(filepath.Join(dir, "missing.safetensors")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOffsetsOutsidePayload(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.safetensors")
	header := map[string]tensorHeader{
		"w": {DType: "F32", Shape: []int{4}, DataOffsets: []int64{0, 16}},
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		t.Fatal(err)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	data := append(lenBuf[:], headerBytes...)
	data = append(data, f32Bytes(1, 2)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("expected ErrCorruptFile, got %v", err)
	}
}

func TestFP16Special(t *testing.T) {
	t.Parallel()
	if v := fp16ToFloat32(0x7C00); !math.IsInf(float64(v), 1) {
		t.Fatalf("expected +Inf, got %v", v)
	}
	if v := fp16ToFloat32(0x0001); v <= 0 || v > 1e-7 {
		t.Fatalf("expected smallest subnormal, got %v", v)
	}
}

func TestWriteThenLoadMatrices(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "weights.safetensors")
	a := tensor.NewMatFromData(2, 3, []float32{1, 2, 3, 4, 5, 6})
	b := tensor.NewMatFromData(1, 2, []float32{-0.5, 0.25})
	mats := map[string]tensor.Mat{"lstm_1/kernel": a, "dense_1/bias": b}
	if err := Write(path, mats, map[string]string{"model": "cnn_lstm"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := LoadMatrices(path)
	if err != nil {
		t.Fatalf("LoadMatrices: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 tensors, got %d", len(got))
	}
	for name, want := range mats {
		m := got[name]
		if m.R != want.R || m.C != want.C {
			t.Fatalf("%s: want %dx%d, got %dx%d", name, want.R, want.C, m.R, m.C)
		}
		for i := range want.Data {
			if m.Data[i] != want.Data[i] {
				t.Fatalf("%s[%d]: want %v, got %v", name, i, want.Data[i], m.Data[i])
			}
		}
	}

	meta, err := Metadata(path)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta["model"] != "cnn_lstm" {
		t.Fatalf("unexpected metadata %v", meta)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	if info, _ := f.Tensor("dense_1/bias"); info.Start != 0 {
		t.Fatalf("tensors should be laid out in name order, dense_1/bias starts at %d", info.Start)
	}
}

func TestLoadMatricesSkipsOtherRanks(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mixed.safetensors")
	writeSafetensors(t, path, []string{"v", "m"}, map[string]testTensor{
		"v": {dtype: "F32", shape: []int{2}, data: f32Bytes(1, 2)},
		"m": {dtype: "F32", shape: []int{1, 1}, data: f32Bytes(3)},
	})
	got, err := LoadMatrices(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["v"]; ok || len(got) != 1 {
		t.Fatalf("unexpected tensors %v", got)
	}
}
