// Package safetensors reads pretrained weight matrices, such as word
// embeddings, from .safetensors files.
package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/goccy/go-json"
	"golang.org/x/sys/unix"

	"github.com/samcharles93/cnnlstm/internal/tensor"
)

var (
	ErrCorruptFile     = errors.New("corrupt safetensors file")
	ErrTensorNotFound  = errors.New("tensor not found")
	ErrUnsupportedType = errors.New("unsupported dtype")
)

type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// File is an open safetensors file. The payload is memory mapped when the
// platform allows it; Close releases the mapping.
type File struct {
	Path     string
	Tensors  map[string]TensorInfo
	Metadata map[string]string

	payload []byte
	mapped  []byte
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := stat.Size()
	if size < 8 || size > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}

	var data, mapped []byte
	if m, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED); err == nil {
		data, mapped = m, m
	} else if data, err = os.ReadFile(path); err != nil {
		return nil, err
	}

	sf, err := parse(path, data)
	if err != nil {
		if mapped != nil {
			_ = unix.Munmap(mapped)
		}
		return nil, err
	}
	sf.mapped = mapped
	return sf, nil
}

func parse(path string, data []byte) (*File, error) {
	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > uint64(len(data)-8) {
		return nil, fmt.Errorf("header length %d exceeds file: %w", headerLen, ErrCorruptFile)
	}
	dataStart := 8 + int(headerLen)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:dataStart], &raw); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	var meta map[string]string
	if msg, ok := raw["__metadata__"]; ok {
		if err := json.Unmarshal(msg, &meta); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
		delete(raw, "__metadata__")
	}

	payload := data[dataStart:]
	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 {
			return nil, fmt.Errorf("tensor %s: invalid data_offsets: %w", name, ErrCorruptFile)
		}
		start, end := th.DataOffsets[0], th.DataOffsets[1]
		if start < 0 || end < start || end > int64(len(payload)) {
			return nil, fmt.Errorf("tensor %s: offsets [%d, %d) outside payload: %w", name, start, end, ErrCorruptFile)
		}
		tensors[name] = TensorInfo{
			DType: th.DType,
			Shape: th.Shape,
			Start: start,
			End:   end,
		}
	}
	return &File{
		Path:     path,
		Tensors:  tensors,
		Metadata: meta,
		payload:  payload,
	}, nil
}

// Close releases the file mapping, if any. Slices returned by ReadTensor
// must not be used afterwards.
func (f *File) Close() error {
	if f.mapped == nil {
		return nil
	}
	err := unix.Munmap(f.mapped)
	f.mapped, f.payload = nil, nil
	return err
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

// Names lists tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ReadTensor returns the raw bytes of a tensor without copying.
func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("%s: %w", name, ErrTensorNotFound)
	}
	return f.payload[t.Start:t.End], t, nil
}

func (f *File) ReadTensorF32(name string) ([]float32, TensorInfo, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	n, err := numElements(info.Shape)
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	var width int
	var decode func(b []byte) float32
	switch info.DType {
	case "F32":
		width = 4
		decode = func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }
	case "BF16":
		width = 2
		decode = func(b []byte) float32 { return bf16ToF32(binary.LittleEndian.Uint16(b)) }
	case "F16":
		width = 2
		decode = func(b []byte) float32 { return fp16ToFloat32(binary.LittleEndian.Uint16(b)) }
	default:
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %s: %w", name, info.DType, ErrUnsupportedType)
	}
	if len(raw) != n*width {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %d bytes for %d %s values: %w",
			name, len(raw), n, info.DType, ErrCorruptFile)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = decode(raw[i*width:])
	}
	return out, info, nil
}

// LoadMatrix reads a 2-D tensor as a matrix. An empty name selects the only
// tensor in the file.
func LoadMatrix(path, name string) (tensor.Mat, error) {
	f, err := Open(path)
	if err != nil {
		return tensor.Mat{}, err
	}
	defer func() { _ = f.Close() }()

	if name == "" {
		names := f.Names()
		if len(names) != 1 {
			return tensor.Mat{}, fmt.Errorf("%s holds %d tensors, name one of %v: %w",
				path, len(names), names, ErrTensorNotFound)
		}
		name = names[0]
	}
	data, info, err := f.ReadTensorF32(name)
	if err != nil {
		return tensor.Mat{}, err
	}
	if len(info.Shape) != 2 {
		return tensor.Mat{}, fmt.Errorf("tensor %s has shape %v, want 2-D: %w", name, info.Shape, ErrCorruptFile)
	}
	return tensor.NewMatFromData(info.Shape[0], info.Shape[1], data), nil
}

// LoadMatrices reads every 2-D tensor in the file, keyed by name. Tensors of
// any other rank are skipped.
func LoadMatrices(path string) (map[string]tensor.Mat, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	out := make(map[string]tensor.Mat, len(f.Tensors))
	for _, name := range f.Names() {
		if len(f.Tensors[name].Shape) != 2 {
			continue
		}
		data, info, err := f.ReadTensorF32(name)
		if err != nil {
			return nil, err
		}
		out[name] = tensor.NewMatFromData(info.Shape[0], info.Shape[1], data)
	}
	return out, nil
}

// Metadata returns the free-form string map stored under "__metadata__".
func Metadata(path string) (map[string]string, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return f.Metadata, nil
}

func numElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("empty shape")
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if n > (int(^uint(0)>>1))/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}

func bf16ToF32(u uint16) float32 {
	return math.Float32frombits(uint32(u) << 16)
}

func fp16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)
	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
		} else {
			e := uint32(127 - 15 + 1)
			for (frac & 0x400) == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3FF
			f = (sign << 31) | (e << 23) | (frac << 13)
		}
	case 0x1F:
		f = (sign << 31) | 0x7F800000 | (frac << 13)
	default:
		e := exp + (127 - 15)
		f = (sign << 31) | (e << 23) | (frac << 13)
	}
	return math.Float32frombits(f)
}
