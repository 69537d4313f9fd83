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

// EncodeVoices serializes a voice table with one [1, D] F32 tensor per voice,
// readable by ReadVoices.
func EncodeVoices(voices map[string][]float32) ([]byte, error) {
	if len(voices) == 0 {
		return nil, errors.New("safetensors: no voices to encode")
	}

	names := make([]string, 0, len(voices))
	for name := range voices {
		names = append(names, name)
	}
	slices.Sort(names)

	header := make(map[string]entry, len(names))
	var data []byte
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("safetensors: voice name must not be empty")
		}
		emb := voices[name]
		if len(emb) == 0 {
			return nil, fmt.Errorf("safetensors: voice %q: %w", name, ErrEmptyTensor)
		}

		lo := len(data)
		for _, v := range emb {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
		}
		header[name] = entry{
			DType:   string(dtypeF32),
			Shape:   []int64{1, int64(len(emb))},
			Offsets: [2]int{lo, len(data)},
		}
	}

	h, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	out := make([]byte, 0, 8+len(h)+len(data))
	out = binary.LittleEndian.AppendUint64(out, uint64(len(h)))
	out = append(out, h...)
	return append(out, data...), nil
}
