package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/example/go-kitten-tts/internal/config"
)

type RuntimeInfo struct {
	LibraryPath string
	Version     string
}

var versionPattern = regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

var (
	bootstrapOnce sync.Once
	bootstrapInfo RuntimeInfo
	errBootstrap  error
)

// libraryCandidates are probed in order when no library path is configured.
var libraryCandidates = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	"/usr/lib/aarch64-linux-gnu/libonnxruntime.so",
	"/opt/homebrew/lib/libonnxruntime.dylib",
	"/usr/local/lib/libonnxruntime.dylib",
}

// Bootstrap resolves the ONNX Runtime library once per process. Later calls
// return the first result regardless of cfg.
func Bootstrap(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	bootstrapOnce.Do(func() {
		info, err := DetectRuntime(cfg)
		if err != nil {
			errBootstrap = err
			return
		}

		bootstrapInfo = info

		slog.Debug("onnx runtime located", "path", info.LibraryPath, "version", info.Version)
	})

	if errBootstrap != nil {
		return RuntimeInfo{}, errBootstrap
	}

	return bootstrapInfo, nil
}

// Shutdown closes every runner that is still open. Call it once inference
// has stopped; runners closed here fail later Runs with ErrRunnerClosed.
func Shutdown() error {
	runnersMu.Lock()
	open := make([]*Runner, 0, len(openRunners))
	for r := range openRunners {
		open = append(open, r)
	}
	runnersMu.Unlock()

	var errs []error
	for _, r := range open {
		if err := r.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", r.Name(), err))
		}
	}

	if len(open) > 0 {
		slog.Debug("onnx runners closed at shutdown", "count", len(open))
	}

	return errors.Join(errs...)
}

func DetectRuntime(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	path := cfg.ORTLibraryPath
	if path == "" {
		path = os.Getenv("KITTENTTS_ORT_LIB")
	}

	if path == "" {
		path = os.Getenv("ORT_LIBRARY_PATH")
	}

	if path == "" {
		for _, c := range libraryCandidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	if path == "" {
		return RuntimeInfo{LibraryPath: "not found", Version: "unknown"}, errors.New("unable to detect ONNX Runtime library path")
	}

	if _, err := os.Stat(path); err != nil {
		return RuntimeInfo{LibraryPath: path, Version: "unknown"}, fmt.Errorf("onnx runtime library path check failed: %w", err)
	}

	version := cfg.ORTVersion
	if version == "" {
		version = os.Getenv("ORT_VERSION")
	}

	if version == "" {
		version = inferVersionFromPath(path)
	}

	if version == "" {
		version = "unknown"
	}

	return RuntimeInfo{LibraryPath: path, Version: version}, nil
}

func inferVersionFromPath(path string) string {
	name := filepath.Base(path)
	if m := versionPattern.FindStringSubmatch(name); len(m) == 2 {
		return m[1]
	}

	return ""
}
