package model

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-kitten-tts/internal/config"
	"github.com/example/go-kitten-tts/internal/onnx"
)

type fakeInferer struct {
	out    []float32
	err    error
	tokens []int64
	style  []float32
	speed  float32
	closed bool
}

func (f *fakeInferer) Infer(_ context.Context, tokens []int64, style []float32, speed float32) ([]float32, error) {
	f.tokens, f.style, f.speed = tokens, style, speed
	return f.out, f.err
}

func (f *fakeInferer) Close() { f.closed = true }

func withFakeInferer(t *testing.T, f *fakeInferer, openErr error) {
	t.Helper()

	orig := newInferer
	t.Cleanup(func() { newInferer = orig })
	newInferer = func(config.Config) (inferer, error) {
		if openErr != nil {
			return nil, openErr
		}
		return f, nil
	}
}

func verifyConfig(t *testing.T, voices string) config.Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "voices.json")
	if err := os.WriteFile(path, []byte(voices), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Paths.VoicesPath = path
	cfg.Paths.ModelPath = filepath.Join(dir, "model.onnx")
	return cfg
}

func TestVerify_Pass(t *testing.T) {
	f := &fakeInferer{out: make([]float32, 2400)}
	withFakeInferer(t, f, nil)
	cfg := verifyConfig(t, `{"b":[0.3,0.4],"a":[0.1,0.2,0.5]}`)

	var out strings.Builder
	if err := Verify(context.Background(), VerifyOptions{Config: cfg, Stdout: &out}); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if !f.closed {
		t.Error("engine not closed")
	}
	if f.speed != 1 {
		t.Errorf("speed = %v; want 1", f.speed)
	}
	if len(f.style) != 3 {
		t.Errorf("style dims = %d; want 3 (first voice a)", len(f.style))
	}
	if len(f.tokens) < 3 || f.tokens[0] != 0 || f.tokens[len(f.tokens)-1] != 0 {
		t.Errorf("tokens = %v; want sentinel-wrapped sequence", f.tokens)
	}
	for _, want := range []string{"PASS", "voice a (3 dims)", "2400 samples", "100ms of audio"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestVerify_UsesConfiguredVoice(t *testing.T) {
	f := &fakeInferer{out: []float32{0.1}}
	withFakeInferer(t, f, nil)
	cfg := verifyConfig(t, `{"a":[0.1],"b":[0.3,0.4]}`)
	cfg.TTS.Voice = "b"

	if err := Verify(context.Background(), VerifyOptions{Config: cfg}); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(f.style) != 2 {
		t.Errorf("style dims = %d; want 2", len(f.style))
	}
}

func TestVerify_Failures(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	boom := errors.New("boom")

	tests := []struct {
		name    string
		voices  string
		infer   *fakeInferer
		openErr error
		wantIs  error
		wantSub string
	}{
		{"empty output", `{"a":[0.1]}`, &fakeInferer{}, nil, onnx.ErrEmptyOutput, ""},
		{"nan output", `{"a":[0.1]}`, &fakeInferer{out: []float32{0, nan}}, nil, ErrNonFiniteOutput, "sample 1"},
		{"inf output", `{"a":[0.1]}`, &fakeInferer{out: []float32{inf}}, nil, ErrNonFiniteOutput, "sample 0"},
		{"inference error", `{"a":[0.1]}`, &fakeInferer{err: boom}, nil, boom, "smoke inference"},
		{"open error", `{"a":[0.1]}`, nil, boom, boom, "open model"},
		{"bad voices", `{}`, &fakeInferer{}, nil, nil, "load voices"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withFakeInferer(t, tt.infer, tt.openErr)
			cfg := verifyConfig(t, tt.voices)

			err := Verify(context.Background(), VerifyOptions{Config: cfg})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("err = %v; want errors.Is %v", err, tt.wantIs)
			}
			if tt.wantSub != "" && !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("err = %v; want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestVerify_UnknownConfiguredVoice(t *testing.T) {
	withFakeInferer(t, &fakeInferer{out: []float32{0.1}}, nil)
	cfg := verifyConfig(t, `{"a":[0.1]}`)
	cfg.TTS.Voice = "zzz"

	if err := Verify(context.Background(), VerifyOptions{Config: cfg}); err == nil {
		t.Fatal("expected error for unknown voice")
	}
}
