package audio

import (
	"fmt"
	"io"
)

// WriteWAVHeaderStreaming writes a 44-byte WAV header suitable for streaming
// where the total data length is not known in advance. Both the RIFF chunk
// size and the data sub-chunk size are set to 0xFFFFFFFF, which is the
// conventional marker for an unknown/streaming length.
func WriteWAVHeaderStreaming(w io.Writer, sampleRate int) (int, error) {
	if sampleRate < 1 {
		return 0, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	var hdr [wavHeaderSize]byte
	putHeader(hdr[:], sampleRate, 0xFFFFFFFF, 0xFFFFFFFF)

	return w.Write(hdr[:])
}

// WritePCM16Samples encodes float32 samples as little-endian 16-bit signed
// integers and writes them to w. Samples are clamped to [-1, 1].
func WritePCM16Samples(w io.Writer, samples []float32) (int, error) {
	return w.Write(PCM16Bytes(samples))
}

// PCM16Bytes returns the raw little-endian PCM16 encoding of samples.
func PCM16Bytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	putPCM16(buf, samples)

	return buf
}
