package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Session describes one ONNX graph file on disk.
type Session struct {
	Name string
	Path string
}

// NewSession validates that path points at a readable .onnx file.
func NewSession(name, path string) (Session, error) {
	if strings.TrimSpace(path) == "" {
		return Session{}, errors.New("model path is required")
	}

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return Session{}, fmt.Errorf("model %q: %w", name, err)
	}

	if info.IsDir() {
		return Session{}, fmt.Errorf("model %q: %s is a directory", name, path)
	}

	if info.Size() == 0 {
		return Session{}, fmt.Errorf("model %q: %s is empty", name, path)
	}

	return Session{Name: name, Path: filepath.Clean(path)}, nil
}
