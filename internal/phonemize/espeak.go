package phonemize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"unicode"

	"github.com/example/go-kitten-tts/internal/text"
)

// preservedPunctuation is copied through verbatim; espeak-ng would
// otherwise drop it from the IPA output.
const preservedPunctuation = ";:,.!?¡¿—…\"«»“”"

// stressMarks are removed from espeak-ng output.
var stressMarks = strings.NewReplacer("ˈ", "", "ˌ", "")

// languageSwitch matches the "(fr)" style markers espeak-ng inserts when a
// word is pronounced with another language's rules.
var languageSwitch = regexp.MustCompile(`\([a-z]{2,3}(-[a-z0-9]+)?\)`)

// ErrEmptyPhonemes is returned when espeak-ng produced no output for
// non-empty input.
var ErrEmptyPhonemes = errors.New("espeak-ng produced no phonemes")

type commandRunner func(ctx context.Context, exe string, args []string, stdin string) (string, error)

// ESpeak phonemizes text by running the espeak-ng executable.
type ESpeak struct {
	exe      string
	language string
	run      commandRunner
}

// NewESpeak returns an espeak-ng phonemizer. An empty exe defaults to
// "espeak-ng" on PATH and an empty language defaults to "en-us".
func NewESpeak(exe, language string) *ESpeak {
	if strings.TrimSpace(exe) == "" {
		exe = "espeak-ng"
	}
	if strings.TrimSpace(language) == "" {
		language = "en-us"
	}

	return &ESpeak{exe: exe, language: language, run: runCommand}
}

// Phonemize converts text to IPA without stress marks. Punctuation is kept
// in place and the spacing around it follows the input.
func (e *ESpeak) Phonemize(ctx context.Context, input string) (string, error) {
	segs := splitPunctuation(input)

	var runs []string
	for _, seg := range segs {
		if w := strings.TrimSpace(seg.text); !seg.punct && w != "" {
			runs = append(runs, w)
		}
	}

	ipa, err := e.phonemizeRuns(ctx, runs)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, seg := range segs {
		if seg.punct {
			out.WriteString(seg.text)
			continue
		}

		if strings.TrimSpace(seg.text) == "" {
			if seg.text != "" {
				out.WriteByte(' ')
			}
			continue
		}

		if startsWithSpace(seg.text) {
			out.WriteByte(' ')
		}
		out.WriteString(ipa[0])
		ipa = ipa[1:]
		if endsWithSpace(seg.text) {
			out.WriteByte(' ')
		}
	}

	result := text.JoinPhonemes([]string{out.String()})
	if result == "" {
		return "", ErrEmptyPhonemes
	}

	return result, nil
}

// runSeparator ends a paragraph, so espeak-ng starts a new output line for
// every run.
const runSeparator = "\n\n"

// phonemizeRuns converts each run with a single espeak-ng call. When the
// output lines do not line up with the runs, every run is converted on its
// own.
func (e *ESpeak) phonemizeRuns(ctx context.Context, runs []string) ([]string, error) {
	if len(runs) <= 1 {
		out := make([]string, 0, len(runs))
		for _, r := range runs {
			ipa, err := e.phonemizeWords(ctx, r)
			if err != nil {
				return nil, err
			}
			out = append(out, ipa)
		}
		return out, nil
	}

	raw, err := e.espeak(ctx, strings.Join(runs, runSeparator))
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if ipa := cleanIPA(line); ipa != "" {
			lines = append(lines, ipa)
		}
	}
	if len(lines) == len(runs) {
		return lines, nil
	}

	out := make([]string, len(runs))
	for i, r := range runs {
		if out[i], err = e.phonemizeWords(ctx, r); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Version returns the first line of `espeak-ng --version`.
func (e *ESpeak) Version(ctx context.Context) (string, error) {
	out, err := e.run(ctx, e.exe, []string{"--version"}, "")
	if err != nil {
		return "", err
	}

	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(line), nil
}

func (e *ESpeak) phonemizeWords(ctx context.Context, words string) (string, error) {
	out, err := e.espeak(ctx, words)
	if err != nil {
		return "", err
	}

	if out = cleanIPA(out); out == "" {
		return "", fmt.Errorf("%w for %q", ErrEmptyPhonemes, words)
	}

	return out, nil
}

func (e *ESpeak) espeak(ctx context.Context, stdin string) (string, error) {
	args := []string{"-q", "--ipa", "-v", e.language, "--stdin"}

	out, err := e.run(ctx, e.exe, args, stdin)
	if err != nil {
		return "", fmt.Errorf("espeak-ng: %w", err)
	}

	return out, nil
}

// cleanIPA drops language markers and stress, and collapses whitespace.
func cleanIPA(s string) string {
	s = languageSwitch.ReplaceAllString(s, "")
	s = stressMarks.Replace(s)

	return strings.Join(text.SplitWords(s), " ")
}

func runCommand(ctx context.Context, exe string, args []string, stdin string) (string, error) {
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}

	return stdout.String(), nil
}

type segment struct {
	text  string
	punct bool
}

// splitPunctuation splits s into alternating runs of punctuation and
// non-punctuation text.
func splitPunctuation(s string) []segment {
	var segs []segment

	var cur strings.Builder
	curPunct := false
	for _, r := range s {
		p := strings.ContainsRune(preservedPunctuation, r)
		if cur.Len() > 0 && p != curPunct {
			segs = append(segs, segment{text: cur.String(), punct: curPunct})
			cur.Reset()
		}
		curPunct = p
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		segs = append(segs, segment{text: cur.String(), punct: curPunct})
	}

	return segs
}

func startsWithSpace(s string) bool {
	return strings.TrimLeftFunc(s, unicode.IsSpace) != s
}

func endsWithSpace(s string) bool {
	return strings.TrimRightFunc(s, unicode.IsSpace) != s
}
