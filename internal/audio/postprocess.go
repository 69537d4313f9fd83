package audio

import "math"

const (
	// DefaultPeak is the target peak amplitude of synthesized speech.
	DefaultPeak = 0.8

	maxTrimHead = 1000
	maxTrimTail = 2000
	trimRatio   = 0.05
)

// Trim drops model warm-up and tail artefacts: min(1000, 5%) samples from the
// head and min(2000, 5%) samples from the tail.
func Trim(samples []float32) []float32 {
	n := len(samples)
	head := min(maxTrimHead, int(math.Floor(float64(n)*trimRatio)))
	tail := min(maxTrimTail, int(math.Floor(float64(n)*trimRatio)))

	if head+tail >= n {
		return samples[:0]
	}

	return samples[head : n-tail]
}

// PeakNormalize scales samples in place so the peak absolute amplitude equals
// target. Silence is returned unchanged.
func PeakNormalize(samples []float32, target float32) []float32 {
	var peak float32
	for _, s := range samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}

	if peak == 0 {
		return samples
	}

	gain := target / peak
	for i := range samples {
		samples[i] *= gain
	}

	return samples
}

// Postprocess applies Trim and PeakNormalize(DefaultPeak) to raw model output.
func Postprocess(samples []float32) []float32 {
	return ApplyHooks(samples, Trim, func(s []float32) []float32 {
		return PeakNormalize(s, DefaultPeak)
	})
}
