// Package player plays mono PCM through the default sound device.
package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/example/go-kitten-tts/internal/audio"
)

var (
	// ErrEmptyAudio is returned when there is nothing to play.
	ErrEmptyAudio = errors.New("audio data is empty")
	// ErrRateMismatch is returned when the device is already open at another rate.
	ErrRateMismatch = errors.New("audio device already open at a different sample rate")
)

const pollInterval = 10 * time.Millisecond

// voice is the subset of *oto.Player used for one playback.
type voice interface {
	Play()
	Pause()
	IsPlaying() bool
	Close() error
}

// Player renders float32 samples as 16-bit mono PCM.
type Player struct {
	sampleRate int
	newVoice   func(io.Reader) voice
	mu         sync.Mutex
}

// oto allows a single context per process.
var (
	deviceOnce sync.Once
	deviceCtx  *oto.Context
	deviceRate int
	errDevice  error
)

func openDevice(sampleRate int) (*oto.Context, error) {
	deviceOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		}

		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			errDevice = fmt.Errorf("open audio device: %w", err)
			return
		}
		<-ready

		deviceCtx = ctx
		deviceRate = sampleRate
	})

	if errDevice != nil {
		return nil, errDevice
	}

	if deviceRate != sampleRate {
		return nil, fmt.Errorf("%w: open at %d Hz, want %d Hz", ErrRateMismatch, deviceRate, sampleRate)
	}

	return deviceCtx, nil
}

// New opens the sound device at sampleRate.
func New(sampleRate int) (*Player, error) {
	if err := validateRate(sampleRate); err != nil {
		return nil, err
	}

	ctx, err := openDevice(sampleRate)
	if err != nil {
		return nil, err
	}

	return &Player{
		sampleRate: sampleRate,
		newVoice:   func(r io.Reader) voice { return ctx.NewPlayer(r) },
	}, nil
}

func validateRate(sampleRate int) error {
	if sampleRate < 8000 || sampleRate > 48000 {
		return fmt.Errorf("sample rate must be between 8000 and 48000 Hz, got %d", sampleRate)
	}

	return nil
}

// SampleRate is the device rate.
func (p *Player) SampleRate() int { return p.sampleRate }

// Play blocks until samples have been played or ctx is cancelled. Cancelling
// stops playback immediately and returns ctx.Err().
func (p *Player) Play(ctx context.Context, samples []float32) error {
	if len(samples) == 0 {
		return ErrEmptyAudio
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// The reader must stay reachable until playback ends.
	pcm := audio.PCM16Bytes(samples)
	v := p.newVoice(bytes.NewReader(pcm))
	defer func() { _ = v.Close() }()

	v.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for v.IsPlaying() {
		select {
		case <-ctx.Done():
			v.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}

// PlayClip plays a decoded clip; its rate must match the device.
func (p *Player) PlayClip(ctx context.Context, clip audio.Clip) error {
	if clip.SampleRate != p.sampleRate {
		return fmt.Errorf("%w: clip is %d Hz, device is %d Hz", ErrRateMismatch, clip.SampleRate, p.sampleRate)
	}

	return p.Play(ctx, clip.Samples)
}
