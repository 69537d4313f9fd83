package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/go-kitten-tts/internal/audio"
	"github.com/example/go-kitten-tts/internal/config"
	"github.com/example/go-kitten-tts/internal/phonemize"
	"github.com/example/go-kitten-tts/internal/text"
	"github.com/example/go-kitten-tts/internal/tokenizer"
)

const (
	MinSpeed      = 0.5
	MaxSpeed      = 2.0
	MinSampleRate = 8000
	MaxSampleRate = 48000

	// ModelSampleRate is the rate the model renders at; other rates only
	// change the WAV header.
	ModelSampleRate = 24000
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotReady       = errors.New("model not loaded")
)

// Request is one synthesis job. Zero values fall back to the configured
// defaults.
type Request struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice,omitempty"`
	Speed      float64 `json:"speed,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
}

type Result struct {
	Samples    []float32
	SampleRate int
	Voice      string
	Phonemes   string
	Tokens     int
}

func (r Result) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}

	return time.Duration(len(r.Samples)) * time.Second / time.Duration(r.SampleRate)
}

// Service runs the text -> phonemes -> tokens -> waveform pipeline. One
// generation runs at a time.
type Service struct {
	runtime    Runtime
	phonemizer phonemize.Phonemizer
	tokenizer  tokenizer.Tokenizer
	voices     *VoiceManager
	ttsCfg     config.TTSConfig
	logger     *slog.Logger

	genMu sync.Mutex
	state stateTracker
}

// New returns an idle service. Call Load before synthesizing.
func New(cfg config.TTSConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		tokenizer: tokenizer.Default(),
		ttsCfg:    cfg,
		logger:    logger,
	}
}

// NewService builds and loads a service from the full configuration.
func NewService(cfg config.Config, logger *slog.Logger) (*Service, error) {
	svc := New(cfg.TTS, logger)
	if err := svc.Load(cfg); err != nil {
		return nil, err
	}

	return svc, nil
}

// Load reads the voices table, prepares the phonemizer and opens the model.
func (s *Service) Load(cfg config.Config) error {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	s.state.set(StateLoading, nil)
	start := time.Now()

	err := s.load(cfg)
	if err != nil {
		s.state.set(StateError, err)
		s.logger.Error("model load failed", "error", err)

		return err
	}

	s.state.set(StateReady, nil)
	s.logger.Info("model loaded",
		"model", cfg.Paths.ModelPath,
		"voices", s.voices.Len(),
		"phonemizer", cfg.Phonemizer.Backend,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return nil
}

func (s *Service) load(cfg config.Config) error {
	voices, err := NewVoiceManager(cfg.Paths.VoicesPath)
	if err != nil {
		return err
	}

	if _, err := voices.Default(cfg.TTS.Voice); err != nil {
		return fmt.Errorf("configured voice: %w", err)
	}

	ph, err := phonemize.New(cfg.Phonemizer, s.logger)
	if err != nil {
		return err
	}

	rt, err := newONNXRuntime(cfg)
	if err != nil {
		return err
	}

	s.voices = voices
	s.phonemizer = ph
	s.runtime = rt

	return nil
}

// Status reports the lifecycle state.
func (s *Service) Status() Status {
	return s.state.get()
}

// Voices lists the loaded voice names, or nil before Load.
func (s *Service) Voices() []string {
	if !s.ready() {
		return nil
	}

	return s.voices.ListVoices()
}

func (s *Service) Close() {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	if s.runtime != nil {
		s.runtime.Close()
		s.runtime = nil
	}

	s.state.set(StateIdle, nil)
}

func (s *Service) ready() bool {
	switch s.state.get().State {
	case StateReady, StateGenerating, StateError:
		return s.voices != nil
	default:
		return false
	}
}

// job is a validated request.
type job struct {
	text       string
	voice      string
	style      []float32
	speed      float32
	sampleRate int
}

func (s *Service) prepare(req Request) (job, error) {
	if !s.ready() {
		return job{}, ErrNotReady
	}

	normalized, err := text.Normalize(req.Text)
	if err != nil {
		return job{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	voice := req.Voice
	if voice == "" {
		voice, err = s.voices.Default(s.ttsCfg.Voice)
		if err != nil {
			return job{}, err
		}
	}

	style, err := s.voices.Embedding(voice)
	if err != nil {
		return job{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	speed := req.Speed
	if speed == 0 {
		speed = s.ttsCfg.Speed
	}
	if speed == 0 {
		speed = 1.0
	}
	if speed < MinSpeed || speed > MaxSpeed {
		return job{}, fmt.Errorf("%w: speed %v outside [%v, %v]", ErrInvalidRequest, speed, MinSpeed, MaxSpeed)
	}

	rate := req.SampleRate
	if rate == 0 {
		rate = s.ttsCfg.SampleRate
	}
	if rate == 0 {
		rate = ModelSampleRate
	}
	if rate < MinSampleRate || rate > MaxSampleRate {
		return job{}, fmt.Errorf("%w: sample rate %d outside [%d, %d]", ErrInvalidRequest, rate, MinSampleRate, MaxSampleRate)
	}

	return job{
		text:       normalized,
		voice:      voice,
		style:      style,
		speed:      float32(speed),
		sampleRate: rate,
	}, nil
}

// Synthesize renders req into post-processed samples.
func (s *Service) Synthesize(ctx context.Context, req Request) (Result, error) {
	j, err := s.prepare(req)
	if err != nil {
		return Result{}, err
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.state.set(StateGenerating, nil)

	res, err := s.generate(ctx, j, j.text)
	s.finish(err)
	if err != nil {
		return Result{}, err
	}

	return res, nil
}

// finish records the outcome of a generation. Rejected input and callers
// that went away leave the model ready.
func (s *Service) finish(err error) {
	switch {
	case err == nil,
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, context.Canceled):
		s.state.set(StateReady, nil)
	default:
		s.state.set(StateError, err)
	}
}

// SynthesizeWAV renders req as a complete PCM16 WAV file.
func (s *Service) SynthesizeWAV(ctx context.Context, req Request) ([]byte, error) {
	res, err := s.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}

	return audio.EncodeWAVPCM16(res.Samples, res.SampleRate)
}

func (s *Service) generate(ctx context.Context, j job, input string) (Result, error) {
	if s.runtime == nil {
		return Result{}, ErrNotReady
	}

	start := time.Now()

	raw, err := s.phonemizer.Phonemize(ctx, input)
	if err != nil {
		return Result{}, fmt.Errorf("phonemize: %w", err)
	}

	phonemes := text.JoinPhonemes([]string{raw})

	tokens, err := s.tokenizer.Encode(phonemes)
	if errors.Is(err, tokenizer.ErrNoTokens) {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err != nil {
		return Result{}, fmt.Errorf("tokenize: %w", err)
	}

	wave, err := s.runtime.Infer(ctx, tokens, j.style, j.speed)
	if err != nil {
		return Result{}, fmt.Errorf("inference: %w", err)
	}

	res := Result{
		Samples:    audio.Postprocess(wave),
		SampleRate: j.sampleRate,
		Voice:      j.voice,
		Phonemes:   phonemes,
		Tokens:     len(tokens),
	}

	s.logger.DebugContext(ctx, "synthesized",
		"voice", j.voice,
		"tokens", res.Tokens,
		"samples", len(res.Samples),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return res, nil
}
