// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skipf with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    lib := testutil.RequireONNXRuntime(t)
//	    model, voices := testutil.RequireModel(t)
//	    ...
//	}
package testutil

import (
	"os"
	"os/exec"
	"testing"
)

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located and otherwise returns its path. It checks (in order): the
// KITTENTTS_ORT_LIB env var, then ORT_LIBRARY_PATH, then common system
// library paths.
func RequireONNXRuntime(tb testing.TB) string {
	tb.Helper()

	for _, env := range []string{"KITTENTTS_ORT_LIB", "ORT_LIBRARY_PATH"} {
		if p := os.Getenv(env); p != "" {
			// #nosec G703 -- Integration tests intentionally accept explicit env-provided local library paths.
			if _, err := os.Stat(p); err == nil {
				return p
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)

			return ""
		}
	}

	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	tb.Skipf("ONNX Runtime shared library not found; set KITTENTTS_ORT_LIB or ORT_LIBRARY_PATH")

	return ""
}

// RequireESpeak skips the test if the espeak-ng executable is not found in
// PATH or at KITTENTTS_PHONEMIZER_ESPEAK_PATH.
func RequireESpeak(tb testing.TB) string {
	tb.Helper()

	exe := os.Getenv("KITTENTTS_PHONEMIZER_ESPEAK_PATH")
	if exe == "" {
		exe = "espeak-ng"
	}

	path, err := exec.LookPath(exe)
	if err != nil {
		tb.Skipf("espeak-ng not available (%q not in PATH); set KITTENTTS_PHONEMIZER_ESPEAK_PATH to override", exe)

		return ""
	}

	return path
}

// RequireModel skips the test unless KITTENTTS_PATHS_MODEL_PATH and
// KITTENTTS_PATHS_VOICES_PATH name existing files. It returns both paths.
func RequireModel(tb testing.TB) (modelPath, voicesPath string) {
	tb.Helper()

	modelPath = os.Getenv("KITTENTTS_PATHS_MODEL_PATH")
	voicesPath = os.Getenv("KITTENTTS_PATHS_VOICES_PATH")

	if modelPath == "" || voicesPath == "" {
		tb.Skipf("model not configured; set KITTENTTS_PATHS_MODEL_PATH and KITTENTTS_PATHS_VOICES_PATH")

		return "", ""
	}

	for _, p := range []string{modelPath, voicesPath} {
		if _, err := os.Stat(p); err != nil {
			tb.Skipf("model artifact not available: %v", err)

			return "", ""
		}
	}

	return modelPath, voicesPath
}
