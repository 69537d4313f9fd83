package tts

import (
	"github.com/example/go-kitten-tts/internal/config"
	"github.com/example/go-kitten-tts/internal/onnx"
)

func newONNXRuntime(cfg config.Config) (Runtime, error) {
	engine, err := onnx.NewEngine(cfg.Runtime, cfg.Paths.ModelPath)
	if err != nil {
		return nil, err
	}

	return engine, nil
}
