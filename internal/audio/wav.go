package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	wavHeaderSize = 44
	channels      = 1
	bitsPerSample = 16
	pcm16Scale    = 0x7FFF
)

type Hook func(samples []float32) []float32

func ApplyHooks(samples []float32, hooks ...Hook) []float32 {
	out := samples
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// EncodeWAVPCM16 renders mono samples as a canonical 44-byte-header PCM16 WAV.
// Samples are clamped to [-1, 1], scaled by 0x7FFF and truncated toward zero.
func EncodeWAVPCM16(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	dataSize := len(samples) * 2
	out := make([]byte, wavHeaderSize+dataSize)
	putHeader(out[:wavHeaderSize], sampleRate, uint32(36+dataSize), uint32(dataSize))
	putPCM16(out[wavHeaderSize:], samples)

	return out, nil
}

func putHeader(hdr []byte, sampleRate int, riffSize, dataSize uint32) {
	const blockAlign = channels * bitsPerSample / 8

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], riffSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], channels)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)
}

func putPCM16(dst []byte, samples []float32) {
	for i, s := range samples {
		clamped := math.Max(-1.0, math.Min(1.0, float64(s)))
		if math.IsNaN(clamped) {
			clamped = 0
		}
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(clamped*pcm16Scale)))
	}
}
