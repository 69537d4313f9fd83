package text

import "strings"

// sentenceTerminators ends a sentence when followed by whitespace or the
// end of input.
const sentenceTerminators = ".!?"

// ChunkBySentence splits text into chunks at sentence boundaries, packing
// consecutive sentences into one chunk while the chunk stays within
// maxChars bytes. A sentence longer than maxChars becomes its own chunk.
// maxChars <= 0 disables splitting.
func ChunkBySentence(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 {
		return []string{text}
	}

	sentences := SplitSentences(text)
	chunks := make([]string, 0, len(sentences))

	var cur strings.Builder
	for _, s := range sentences {
		switch {
		case cur.Len() == 0:
			cur.WriteString(s)
		case cur.Len()+1+len(s) > maxChars:
			chunks = append(chunks, cur.String())
			cur.Reset()
			cur.WriteString(s)
		default:
			cur.WriteByte(' ')
			cur.WriteString(s)
		}
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}

	return chunks
}

// SplitSentences splits text after runs of sentence terminators that are
// followed by whitespace or the end of input, so "3.5" and "e.g." inside a
// word stay intact. Terminators stay attached to their sentence and empty
// segments are dropped.
func SplitSentences(text string) []string {
	var sentences []string

	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !strings.ContainsRune(sentenceTerminators, runes[i]) {
			continue
		}
		for i+1 < len(runes) && strings.ContainsRune(sentenceTerminators, runes[i+1]) {
			i++
		}
		if i+1 < len(runes) && !isSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}

	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
