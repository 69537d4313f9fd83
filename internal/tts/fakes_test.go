package tts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/go-kitten-tts/internal/config"
	"github.com/example/go-kitten-tts/internal/phonemize"
	"github.com/example/go-kitten-tts/internal/tokenizer"
)

// captureRuntime records every call and returns a fixed waveform.
type captureRuntime struct {
	mu     sync.Mutex
	audio  []float32
	err    error
	calls  [][]int64
	styles [][]float32
	speeds []float32
	closed bool
}

func (c *captureRuntime) Infer(_ context.Context, tokens []int64, style []float32, speed float32) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, append([]int64(nil), tokens...))
	c.styles = append(c.styles, style)
	c.speeds = append(c.speeds, speed)
	if c.err != nil {
		return nil, c.err
	}

	return append([]float32(nil), c.audio...), nil
}

func (c *captureRuntime) Close() { c.closed = true }

// slowRuntime simulates a slow generation that respects context cancellation.
type slowRuntime struct {
	delay time.Duration
	audio []float32
}

func (s *slowRuntime) Infer(ctx context.Context, _ []int64, _ []float32, _ float32) ([]float32, error) {
	select {
	case <-time.After(s.delay):
		return append([]float32(nil), s.audio...), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *slowRuntime) Close() {}

// failingPhonemizer always returns err.
type failingPhonemizer struct{ err error }

func (f failingPhonemizer) Phonemize(context.Context, string) (string, error) {
	return "", f.err
}

var errFake = errors.New("fake failure")

const testVoices = `{"expr-voice-2-f": [0.1, 0.2], "expr-voice-3-m": [[0.3], [0.4]]}`

// newFakeService returns a ready service with the rule phonemizer and rt.
func newFakeService(t *testing.T, rt Runtime) *Service {
	t.Helper()

	voices, err := ParseVoices([]byte(testVoices))
	if err != nil {
		t.Fatalf("ParseVoices: %v", err)
	}

	svc := &Service{
		runtime:    rt,
		phonemizer: phonemize.Rules{},
		tokenizer:  tokenizer.Default(),
		voices:     voices,
		ttsCfg:     config.DefaultConfig().TTS,
		logger:     discardLogger(),
	}
	svc.state.set(StateReady, nil)

	return svc
}

func repeatSentence(sentence string, n int) string {
	var sb strings.Builder
	for range n {
		sb.WriteString(sentence)
		sb.WriteString(" ")
	}

	return strings.TrimSpace(sb.String())
}
