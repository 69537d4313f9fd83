package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// ErrFormatMismatch is returned when a decoded WAV is not mono 16-bit PCM.
var ErrFormatMismatch = errors.New("WAV format mismatch")

// Clip is decoded mono audio.
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Duration reports the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}

	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// DecodeWAV decodes mono 16-bit PCM WAV bytes into float32 samples in [-1, 1].
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, errors.New("empty WAV input")
	}

	r := bytes.NewReader(data)
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, errors.New("invalid WAV file")
	}

	if dec.NumChans != channels {
		return Clip{}, fmt.Errorf("%w: channels %d, want %d", ErrFormatMismatch, dec.NumChans, channels)
	}
	if dec.BitDepth != bitsPerSample {
		return Clip{}, fmt.Errorf("%w: bit depth %d, want %d", ErrFormatMismatch, dec.BitDepth, bitsPerSample)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("reading PCM data: %w", err)
	}

	return clipFromBuffer(buf, int(dec.SampleRate))
}

// clipFromBuffer takes the sample rate from the buffer format when present,
// falling back to the header rate.
func clipFromBuffer(buf *goaudio.Float32Buffer, headerRate int) (Clip, error) {
	if buf == nil {
		return Clip{}, errors.New("decoder returned no PCM buffer")
	}

	rate := headerRate
	if buf.Format != nil {
		if buf.Format.NumChannels != 0 && buf.Format.NumChannels != channels {
			return Clip{}, fmt.Errorf("%w: channels %d, want %d", ErrFormatMismatch, buf.Format.NumChannels, channels)
		}
		if buf.Format.SampleRate > 0 {
			rate = buf.Format.SampleRate
		}
	}

	return Clip{Samples: buf.Data, SampleRate: rate}, nil
}
