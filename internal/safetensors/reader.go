package safetensors

import (
	"errors"
	"fmt"
)

var ErrEmptyTensor = errors.New("empty tensor")

// Tensor is one decoded entry of a payload.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// ReadVoices decodes a voice table: every tensor is one voice keyed by its
// name, flattened row-major.
func ReadVoices(data []byte) (map[string][]float32, error) {
	store, err := OpenStoreFromBytes(data)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	voices := make(map[string][]float32, len(store.names))
	for _, name := range store.Names() {
		t, err := store.Tensor(name)
		if err != nil {
			return nil, err
		}
		if len(t.Data) == 0 {
			return nil, fmt.Errorf("safetensors: voice %q: %w", name, ErrEmptyTensor)
		}
		voices[name] = t.Data
	}

	return voices, nil
}
