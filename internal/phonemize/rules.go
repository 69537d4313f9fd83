package phonemize

import (
	"context"
	"regexp"
	"strings"
)

type substitution struct {
	pattern     *regexp.Regexp
	replacement string
}

// ruleSubstitutions run in order over lower-cased text. Digraphs come
// before the single vowels they contain.
var ruleSubstitutions = []substitution{
	{regexp.MustCompile(`ph`), "f"},
	{regexp.MustCompile(`ch`), "tʃ"},
	{regexp.MustCompile(`sh`), "ʃ"},
	{regexp.MustCompile(`th`), "θ"},
	{regexp.MustCompile(`ng`), "ŋ"},
	{regexp.MustCompile(`a`), "ə"},
	{regexp.MustCompile(`e`), "ɛ"},
	{regexp.MustCompile(`i`), "ɪ"},
	{regexp.MustCompile(`o`), "ɔ"},
	{regexp.MustCompile(`u`), "ʊ"},
}

// Rules is a crude grapheme-to-phoneme approximation. It never fails.
type Rules struct{}

func (Rules) Phonemize(_ context.Context, text string) (string, error) {
	return Approximate(text), nil
}

// Approximate lower-cases text and applies the substitution rules.
func Approximate(text string) string {
	out := strings.ToLower(text)
	for _, s := range ruleSubstitutions {
		out = s.pattern.ReplaceAllLiteralString(out, s.replacement)
	}

	return out
}
