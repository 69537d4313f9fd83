package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/example/go-kitten-tts/internal/config"
	"github.com/example/go-kitten-tts/internal/onnx"
	"github.com/example/go-kitten-tts/internal/phonemize"
	"github.com/example/go-kitten-tts/internal/tokenizer"
	"github.com/example/go-kitten-tts/internal/tts"
)

// DefaultVerifyText is phonemized with the rules backend so verification does
// not depend on espeak-ng.
const DefaultVerifyText = "Hello from the model check."

var ErrNonFiniteOutput = errors.New("model output contains NaN or Inf")

type VerifyOptions struct {
	Config config.Config
	Text   string
	Stdout io.Writer
}

type inferer interface {
	Infer(ctx context.Context, tokens []int64, style []float32, speed float32) ([]float32, error)
	Close()
}

var newInferer = func(cfg config.Config) (inferer, error) {
	return onnx.NewEngine(cfg.Runtime, cfg.Paths.ModelPath)
}

// Verify runs one smoke inference against the configured model and voices
// file and checks that the waveform is non-empty and finite.
func Verify(ctx context.Context, opts VerifyOptions) error {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	text := opts.Text
	if text == "" {
		text = DefaultVerifyText
	}

	vm, err := tts.NewVoiceManager(opts.Config.Paths.VoicesPath)
	if err != nil {
		return fmt.Errorf("load voices: %w", err)
	}
	voice, err := vm.Default(opts.Config.TTS.Voice)
	if err != nil {
		return err
	}
	style, err := vm.Embedding(voice)
	if err != nil {
		return err
	}

	phonemes, err := phonemize.Rules{}.Phonemize(ctx, text)
	if err != nil {
		return fmt.Errorf("phonemize: %w", err)
	}
	tokens, err := tokenizer.Default().Encode(phonemes)
	if err != nil {
		return fmt.Errorf("tokenize: %w", err)
	}

	engine, err := newInferer(opts.Config)
	if err != nil {
		return fmt.Errorf("open model: %w", err)
	}
	defer engine.Close()

	start := time.Now()
	samples, err := engine.Infer(ctx, tokens, style, 1)
	if err != nil {
		return fmt.Errorf("smoke inference: %w", err)
	}
	elapsed := time.Since(start)

	if len(samples) == 0 {
		return onnx.ErrEmptyOutput
	}
	for i, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return fmt.Errorf("%w (sample %d)", ErrNonFiniteOutput, i)
		}
	}

	audio := time.Duration(float64(len(samples)) / float64(tts.ModelSampleRate) * float64(time.Second))
	fmt.Fprintf(opts.Stdout, "PASS %s: voice %s (%d dims), %d tokens -> %d samples (%s of audio) in %s\n",
		opts.Config.Paths.ModelPath, voice, len(style), len(tokens), len(samples),
		audio.Round(time.Millisecond), elapsed.Round(time.Millisecond))

	return nil
}
