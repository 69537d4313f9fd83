package tts

import "context"

// Runtime abstracts model execution so the service pipeline
// (phonemize, tokenize, post-process) can run against ONNX Runtime or a test
// double.
type Runtime interface {
	Infer(ctx context.Context, tokens []int64, style []float32, speed float32) ([]float32, error)
	Close()
}
