// Package doctor provides environment preflight checks for kittentts.
package doctor

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Oldest espeak-ng release whose --ipa output matches the model's symbol set.
const (
	minESpeakMajor = 1
	minESpeakMinor = 48
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// ONNXRuntime describes the resolved ONNX Runtime library.
	ONNXRuntime VersionFunc
	// Model opens the model file and describes it.
	Model VersionFunc
	// VoiceCount parses the voices file and returns the number of voices.
	VoiceCount func() (int, error)
	// ESpeakVersion returns the first line of `espeak-ng --version`.
	ESpeakVersion VersionFunc
	// SkipESpeak skips the espeak-ng check (rules phonemizer).
	SkipESpeak bool
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark. Nil checks are skipped.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- ONNX Runtime -----------------------------------------------------
	runVersionCheck(&res, w, "onnx runtime", cfg.ONNXRuntime)

	// ---- model ------------------------------------------------------------
	runVersionCheck(&res, w, "model", cfg.Model)

	// ---- voices -----------------------------------------------------------
	if cfg.VoiceCount != nil {
		n, err := cfg.VoiceCount()
		switch {
		case err != nil:
			res.fail(fmt.Sprintf("voices: %v", err))
			fmt.Fprintf(w, "%s voices: %v\n", FailMark, err)
		case n == 0:
			res.fail("voices: no voices defined")
			fmt.Fprintf(w, "%s voices: none defined\n", FailMark)
		default:
			fmt.Fprintf(w, "%s voices: %d available\n", PassMark, n)
		}
	}

	// ---- espeak-ng --------------------------------------------------------
	switch {
	case cfg.SkipESpeak:
		fmt.Fprintf(w, "%s espeak-ng: skipped (rules phonemizer)\n", PassMark)
	case cfg.ESpeakVersion != nil:
		ver, err := cfg.ESpeakVersion()
		if err != nil {
			res.fail(fmt.Sprintf("espeak-ng: %v", err))
			fmt.Fprintf(w, "%s espeak-ng: not found (%v)\n", FailMark, err)
		} else if verErr := checkESpeakVersion(ver); verErr != nil {
			res.fail(fmt.Sprintf("espeak-ng: %v", verErr))
			fmt.Fprintf(w, "%s espeak-ng %s: %v\n", FailMark, ver, verErr)
		} else {
			fmt.Fprintf(w, "%s espeak-ng: %s\n", PassMark, ver)
		}
	}

	return res
}

func runVersionCheck(res *Result, w io.Writer, name string, fn VersionFunc) {
	if fn == nil {
		return
	}

	desc, err := fn()
	if err != nil {
		res.fail(fmt.Sprintf("%s: %v", name, err))
		fmt.Fprintf(w, "%s %s: %v\n", FailMark, name, err)

		return
	}

	fmt.Fprintf(w, "%s %s: %s\n", PassMark, name, desc)
}

var versionToken = regexp.MustCompile(`[0-9]+\.[0-9]+(\.[0-9]+)?`)

// checkESpeakVersion returns an error if the banner reports a release older
// than 1.48. banner is e.g. "eSpeak NG text-to-speech: 1.51  Data at: ...".
func checkESpeakVersion(banner string) error {
	ver := versionToken.FindString(banner)
	if ver == "" {
		return fmt.Errorf("cannot find version in %q", banner)
	}

	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}

	if major < minESpeakMajor || (major == minESpeakMajor && minor < minESpeakMinor) {
		return fmt.Errorf("requires espeak-ng >=%d.%d, got %d.%d", minESpeakMajor, minESpeakMinor, major, minor)
	}

	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
