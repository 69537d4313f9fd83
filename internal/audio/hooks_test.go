package audio

import (
	"math"
	"testing"
)

// --- ApplyHooks ---

func TestApplyHooks_NoHooks(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}

	got := ApplyHooks(samples)
	if len(got) != len(samples) {
		t.Fatalf("ApplyHooks() len = %d; want %d", len(got), len(samples))
	}

	for i, v := range samples {
		if got[i] != v {
			t.Errorf("ApplyHooks()[%d] = %v; want %v", i, got[i], v)
		}
	}
}

func TestApplyHooks_SingleHook(t *testing.T) {
	scale := func(s []float32) []float32 {
		out := make([]float32, len(s))
		for i, v := range s {
			out[i] = v * 2
		}

		return out
	}

	samples := []float32{0.1, 0.5, 1.0}
	got := ApplyHooks(samples, scale)

	want := []float32{0.2, 1.0, 2.0}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("ApplyHooks()[%d] = %v; want %v", i, got[i], want[i])
		}
	}
}

func TestApplyHooks_MultipleHooks_AppliedInOrder(t *testing.T) {
	var order []int
	h1 := func(s []float32) []float32 { order = append(order, 1); return s }
	h2 := func(s []float32) []float32 { order = append(order, 2); return s }
	h3 := func(s []float32) []float32 { order = append(order, 3); return s }

	ApplyHooks([]float32{0}, h1, h2, h3)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("hooks applied in wrong order: %v", order)
	}
}

func TestApplyHooks_EmptySamples(t *testing.T) {
	got := ApplyHooks([]float32{})
	if len(got) != 0 {
		t.Errorf("ApplyHooks(empty) = %v; want empty", got)
	}
}
