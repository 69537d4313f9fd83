// Package phonemize converts normalized text into IPA phoneme strings.
//
// The primary backend shells out to espeak-ng. A rule-based approximation is
// used when espeak-ng is missing or fails, so synthesis degrades in quality
// instead of failing outright.
package phonemize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/go-kitten-tts/internal/config"
)

// Phonemizer converts text to a phoneme string.
type Phonemizer interface {
	Phonemize(ctx context.Context, text string) (string, error)
}

// New builds the phonemizer selected by cfg.Backend.
func New(cfg config.PhonemizerConfig, logger *slog.Logger) (Phonemizer, error) {
	backend, err := config.NormalizePhonemizerBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	switch backend {
	case config.PhonemizerESpeak:
		return &Fallback{
			Primary:   NewESpeak(cfg.ESpeakPath, cfg.Language),
			Secondary: Rules{},
			Logger:    logger,
		}, nil
	case config.PhonemizerRules:
		return Rules{}, nil
	default:
		return nil, fmt.Errorf("unsupported phonemizer backend %q", backend)
	}
}
