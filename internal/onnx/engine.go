package onnx

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/example/go-kitten-tts/internal/config"
)

// Graph input and output names of the exported Kitten TTS model.
const (
	InputIDs       = "input_ids"
	InputStyle     = "style"
	InputSpeed     = "speed"
	OutputWaveform = "waveform"
)

var (
	ErrEmptyTokens = errors.New("empty token list")
	ErrEmptyStyle  = errors.New("empty style embedding")
	ErrEmptyOutput = errors.New("model returned no audio")
)

// Engine runs the single-graph text-to-waveform model.
type Engine struct {
	runner GraphRunner
}

// NewEngine locates ONNX Runtime, validates the model file and opens a session.
func NewEngine(cfg config.RuntimeConfig, modelPath string) (*Engine, error) {
	info, err := Bootstrap(cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap onnx runtime: %w", err)
	}

	session, err := NewSession("kitten_tts", modelPath)
	if err != nil {
		return nil, err
	}

	runner, err := NewRunner(session, RunnerConfig{
		LibraryPath: info.LibraryPath,
		APIVersion:  uint32(cfg.ORTAPIVersion),
	})
	if err != nil {
		return nil, err
	}

	return &Engine{runner: runner}, nil
}

// Infer feeds one token sequence with a style vector and speed scalar to the
// model and returns the flattened waveform.
func (e *Engine) Infer(ctx context.Context, tokens []int64, style []float32, speed float32) ([]float32, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyTokens
	}
	if len(style) == 0 {
		return nil, ErrEmptyStyle
	}
	if !(speed > 0) {
		return nil, fmt.Errorf("speed must be > 0, got %v", speed)
	}

	ids, err := NewTensor(tokens, []int64{1, int64(len(tokens))})
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}

	styleT, err := NewTensor(style, []int64{1, int64(len(style))})
	if err != nil {
		return nil, fmt.Errorf("style tensor: %w", err)
	}

	speedT, err := NewTensor([]float32{speed}, []int64{1})
	if err != nil {
		return nil, fmt.Errorf("speed tensor: %w", err)
	}

	outputs, err := e.runner.Run(ctx, map[string]*Tensor{
		InputIDs:   ids,
		InputStyle: styleT,
		InputSpeed: speedT,
	})
	if err != nil {
		return nil, err
	}

	wave, err := waveformOutput(outputs)
	if err != nil {
		return nil, err
	}

	samples, err := ExtractFloat32(wave)
	if err != nil {
		return nil, fmt.Errorf("waveform output: %w", err)
	}
	if len(samples) == 0 {
		return nil, ErrEmptyOutput
	}

	return samples, nil
}

// Name reports the underlying graph name.
func (e *Engine) Name() string {
	if e == nil || e.runner == nil {
		return ""
	}

	return e.runner.Name()
}

func (e *Engine) Close() {
	if e == nil || e.runner == nil {
		return
	}

	e.runner.Close()
}

// waveformOutput prefers the output named "waveform" and otherwise falls back
// to the first output name in sorted order.
func waveformOutput(outputs map[string]*Tensor) (*Tensor, error) {
	if t, ok := outputs[OutputWaveform]; ok {
		return t, nil
	}

	if len(outputs) == 0 {
		return nil, ErrEmptyOutput
	}

	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	slices.Sort(names)

	return outputs[names[0]], nil
}
