package phonemize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Fallback tries Primary and falls back to Secondary when it fails.
// Cancellation is never masked by the fallback.
type Fallback struct {
	Primary   Phonemizer
	Secondary Phonemizer
	Logger    *slog.Logger
}

func (f *Fallback) Phonemize(ctx context.Context, text string) (string, error) {
	out, err := f.Primary.Phonemize(ctx, text)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}

	f.logger().WarnContext(ctx, "phonemization failed, using rule-based approximation",
		slog.String("error", err.Error()),
	)

	out, fbErr := f.Secondary.Phonemize(ctx, text)
	if fbErr != nil {
		return "", fmt.Errorf("phonemize: primary: %v; fallback: %w", err, fbErr)
	}

	return out, nil
}

func (f *Fallback) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}
