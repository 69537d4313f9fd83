// Package text prepares user input for phonemization and splits long input
// into sentence chunks for incremental synthesis.
package text

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// Normalize prepares raw input text for synthesis.
// It normalizes line endings to \n, composes the text to Unicode NFC so
// accented letters reach the phonemizer as single code points, trims
// surrounding whitespace and rejects empty or whitespace-only input.
func Normalize(s string) (string, error) {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = norm.NFC.String(s)
	s = strings.TrimSpace(s)

	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}

// SplitWords splits s on runs of whitespace and drops empty tokens.
func SplitWords(s string) []string {
	return strings.FieldsFunc(s, unicode.IsSpace)
}

// JoinPhonemes merges phonemizer output segments into a single phoneme
// string with exactly one space between words.
func JoinPhonemes(segments []string) string {
	return strings.Join(SplitWords(strings.Join(segments, " ")), " ")
}
