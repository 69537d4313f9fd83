package onnx

import "context"

// GraphRunner is the minimal runner contract required by Engine methods.
// It is useful for alternate runtimes and for tests.
type GraphRunner interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Name() string
	Close()
}

// NewEngineWithRunner builds an Engine around an externally provided runner.
func NewEngineWithRunner(runner GraphRunner) *Engine {
	return &Engine{runner: runner}
}
