package model

import (
	"fmt"
	"path"
	"strings"
)

// ModelFile is one artifact fetched from the model base URL.
type ModelFile struct {
	Filename string `json:"filename"`
	SHA256   string `json:"sha256"`
}

// DefaultFiles lists the artifacts the pipeline needs: the ONNX graph and the
// voice embedding table.
func DefaultFiles() []ModelFile {
	return []ModelFile{
		{Filename: "kitten_tts_nano_v0_1.onnx"},
		{Filename: "voices.json"},
	}
}

// ApplyChecksums pins files from "filename=sha256" pairs. Unknown filenames
// and malformed pairs are errors.
func ApplyChecksums(files []ModelFile, pairs []string) ([]ModelFile, error) {
	out := append([]ModelFile(nil), files...)

	for _, pair := range pairs {
		name, sum, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid checksum %q: expected filename=sha256", pair)
		}
		sum = strings.ToLower(strings.TrimSpace(sum))
		if !isSHA256Hex(sum) {
			return nil, fmt.Errorf("invalid checksum for %s: %q is not a sha256 hex digest", name, sum)
		}

		found := false
		for i := range out {
			if out[i].Filename == name {
				out[i].SHA256 = sum
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("checksum given for unknown file %q", name)
		}
	}

	return out, nil
}

func resolveURL(baseURL string, file ModelFile) string {
	base := strings.TrimRight(baseURL, "/")
	return base + "/" + path.Clean(strings.TrimLeft(file.Filename, "/"))
}
