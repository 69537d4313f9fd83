package tts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/example/go-kitten-tts/internal/safetensors"
)

var ErrUnknownVoice = errors.New("unknown voice")

// VoiceManager holds the style embeddings loaded from a voices.json table.
type VoiceManager struct {
	path       string
	names      []string
	embeddings map[string][]float32
}

// NewVoiceManager reads a voices file: a JSON object mapping voice names to a
// flat embedding or a list of rows, which are flattened row-major. Files with a
// .safetensors extension hold one tensor per voice instead.
func NewVoiceManager(path string) (*VoiceManager, error) {
	if path == "" {
		return nil, errors.New("voices path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voices file: %w", err)
	}

	var mgr *VoiceManager
	if strings.EqualFold(filepath.Ext(path), ".safetensors") {
		var table map[string][]float32
		table, err = safetensors.ReadVoices(data)
		if err == nil {
			mgr, err = newVoiceManager(table)
		}
	} else {
		mgr, err = ParseVoices(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	mgr.path = path

	return mgr, nil
}

func ParseVoices(data []byte) (*VoiceManager, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}

	table := make(map[string][]float32, len(raw))
	for name, msg := range raw {
		emb, err := decodeEmbedding(msg)
		if err != nil {
			return nil, fmt.Errorf("voice %q: %w", name, err)
		}
		table[name] = emb
	}

	return newVoiceManager(table)
}

func newVoiceManager(table map[string][]float32) (*VoiceManager, error) {
	if len(table) == 0 {
		return nil, errors.New("voices file contains no voices")
	}

	mgr := &VoiceManager{
		names:      make([]string, 0, len(table)),
		embeddings: table,
	}
	for name := range table {
		if name == "" {
			return nil, errors.New("voices file contains empty voice name")
		}
		mgr.names = append(mgr.names, name)
	}
	slices.Sort(mgr.names)

	return mgr, nil
}

// Table returns a copy of every voice embedding keyed by name.
func (m *VoiceManager) Table() map[string][]float32 {
	out := make(map[string][]float32, len(m.embeddings))
	for name, emb := range m.embeddings {
		out[name] = append([]float32(nil), emb...)
	}
	return out
}

func decodeEmbedding(msg json.RawMessage) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(msg, &flat); err == nil {
		if len(flat) == 0 {
			return nil, errors.New("empty embedding")
		}

		return flat, nil
	}

	var rows [][]float32
	if err := json.Unmarshal(msg, &rows); err != nil {
		return nil, fmt.Errorf("embedding must be a number array or array of number arrays: %w", err)
	}

	var out []float32
	for _, row := range rows {
		out = append(out, row...)
	}

	if len(out) == 0 {
		return nil, errors.New("empty embedding")
	}

	return out, nil
}

// ListVoices returns the voice names in sorted order.
func (m *VoiceManager) ListVoices() []string {
	return append([]string(nil), m.names...)
}

func (m *VoiceManager) Len() int {
	return len(m.names)
}

// Embedding returns a copy of the named style vector.
func (m *VoiceManager) Embedding(name string) ([]float32, error) {
	emb, ok := m.embeddings[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownVoice, name)
	}

	return append([]float32(nil), emb...), nil
}

// Default resolves the voice used when a request names none: preferred when
// set, otherwise the first listed voice.
func (m *VoiceManager) Default(preferred string) (string, error) {
	if preferred != "" {
		if _, ok := m.embeddings[preferred]; !ok {
			return "", fmt.Errorf("%w %q", ErrUnknownVoice, preferred)
		}

		return preferred, nil
	}

	if len(m.names) == 0 {
		return "", errors.New("no voices loaded")
	}

	return m.names[0], nil
}
