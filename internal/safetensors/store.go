package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// A safetensors payload is an 8-byte little-endian header length, a JSON
// header mapping tensor names to entries, then the data section the entry
// offsets index into.

type dtype string

const (
	dtypeF32  dtype = "F32"
	dtypeF16  dtype = "F16"
	dtypeBF16 dtype = "BF16"
)

func (d dtype) size() (int, bool) {
	switch d {
	case dtypeF32:
		return 4, true
	case dtypeF16, dtypeBF16:
		return 2, true
	}
	return 0, false
}

func (d dtype) decode(raw []byte, n int) []float32 {
	out := make([]float32, n)
	switch d {
	case dtypeF32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	case dtypeF16:
		for i := range out {
			out[i] = float16ToFloat32(binary.LittleEndian.Uint16(raw[2*i:]))
		}
	case dtypeBF16:
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[2*i:])) << 16)
		}
	}
	return out
}

type entry struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

// check validates e against a data section of dataLen bytes and returns the
// element count.
func (e *entry) check(name string, dataLen int) (int, error) {
	dt := dtype(strings.ToUpper(e.DType))
	size, ok := dt.size()
	if !ok {
		return 0, fmt.Errorf("safetensors: tensor %q has unsupported dtype %q", name, e.DType)
	}
	e.DType = string(dt)

	lo, hi := e.Offsets[0], e.Offsets[1]
	if lo < 0 || hi < lo {
		return 0, fmt.Errorf("safetensors: tensor %q has invalid data offsets %v", name, e.Offsets)
	}
	if slices.ContainsFunc(e.Shape, func(d int64) bool { return d < 0 }) {
		return 0, fmt.Errorf("safetensors: tensor %q has negative shape dimension in %v", name, e.Shape)
	}
	if hi > dataLen {
		return 0, fmt.Errorf("safetensors: tensor %q data [%d:%d] exceeds file size %d", name, lo, hi, dataLen)
	}

	n, err := shapeElementCount(e.Shape)
	if err != nil {
		return 0, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}
	if n > int64(math.MaxInt/size) {
		return 0, fmt.Errorf("safetensors: tensor %q shape %v is too large", name, e.Shape)
	}
	if need := int(n) * size; hi-lo != need {
		return 0, fmt.Errorf("safetensors: tensor %q needs %d bytes but data has %d", name, need, hi-lo)
	}

	return int(n), nil
}

// Store indexes the tensors of a payload; data is decoded on demand.
type Store struct {
	data    []byte
	entries map[string]entry
	counts  map[string]int
	names   []string
}

func OpenStoreFromBytes(b []byte) (*Store, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("safetensors: file too short (%d bytes)", len(b))
	}

	hlen := binary.LittleEndian.Uint64(b)
	if hlen > uint64(len(b)-8) {
		return nil, fmt.Errorf("safetensors: header length %d exceeds file size %d", hlen, len(b))
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(b[8:8+hlen], &header); err != nil {
		return nil, fmt.Errorf("safetensors: parse header: %w", err)
	}
	delete(header, "__metadata__")

	s := &Store{
		data:    b[8+hlen:],
		entries: make(map[string]entry, len(header)),
		counts:  make(map[string]int, len(header)),
	}
	for name, msg := range header {
		var e entry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, fmt.Errorf("safetensors: decode header entry %q: %w", name, err)
		}
		n, err := e.check(name, len(s.data))
		if err != nil {
			return nil, err
		}
		s.entries[name] = e
		s.counts[name] = n
		s.names = append(s.names, name)
	}

	if len(s.names) == 0 {
		return nil, errors.New("safetensors: no tensors found")
	}
	slices.Sort(s.names)

	return s, nil
}

// Names lists tensor names in sorted order.
func (s *Store) Names() []string {
	return slices.Clone(s.names)
}

func (s *Store) Tensor(name string) (*Tensor, error) {
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("safetensors: tensor %q not found (available: %s)", name, listNames(s.names, 8))
	}

	raw := s.data[e.Offsets[0]:e.Offsets[1]]
	return &Tensor{
		Name:  name,
		Shape: slices.Clone(e.Shape),
		Data:  dtype(e.DType).decode(raw, s.counts[name]),
	}, nil
}

func (s *Store) Close() {
	s.data = nil
	s.entries = nil
	s.counts = nil
	s.names = nil
}

func shapeElementCount(shape []int64) (int64, error) {
	n := int64(1)
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension %d", d)
		}
		if d == 0 {
			return 0, nil
		}
		if n > math.MaxInt64/d {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}
		n *= d
	}
	return n, nil
}

// float16ToFloat32 widens an IEEE 754 half-precision value.
func float16ToFloat32(h uint16) float32 {
	sign := 1.0
	if h&0x8000 != 0 {
		sign = -1
	}
	exp := int(h>>10) & 0x1f
	frac := float64(h & 0x3ff)

	switch exp {
	case 0:
		return float32(sign * math.Ldexp(frac, -24))
	case 0x1f:
		if frac != 0 {
			return float32(math.NaN())
		}
		return float32(math.Inf(int(sign)))
	default:
		return float32(sign * math.Ldexp(1+frac/1024, exp-15))
	}
}

func listNames(names []string, limit int) string {
	if len(names) == 0 {
		return "none"
	}
	if len(names) > limit {
		return strings.Join(names[:limit], ", ") + ", ..."
	}
	return strings.Join(names, ", ")
}
