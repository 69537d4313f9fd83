package config

import (
	"fmt"
	"strings"
)

const (
	PhonemizerESpeak = "espeak"
	PhonemizerRules  = "rules"
)

func NormalizePhonemizerBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = PhonemizerESpeak
	}
	switch backend {
	case PhonemizerESpeak, PhonemizerRules:
		return backend, nil
	case "espeak-ng":
		return PhonemizerESpeak, nil
	default:
		return "", fmt.Errorf(
			"invalid phonemizer backend %q (expected %s|%s)",
			raw,
			PhonemizerESpeak,
			PhonemizerRules,
		)
	}
}
