// Package bench measures synthesis latency and realtime factor.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and audio metadata for a single synthesis run.
type RunResult struct {
	Index         int
	Cold          bool // true for the first run (session warm-up)
	Duration      time.Duration
	AudioDuration time.Duration
	Tokens        int
	RTF           float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	MeanRTF float64
}

// Sample is what one synthesis run reports back.
type Sample struct {
	AudioDuration time.Duration
	Tokens        int
}

// SynthFunc performs one synthesis.
type SynthFunc func(ctx context.Context) (Sample, error)

// Run calls fn runs times and records each timing.
func Run(ctx context.Context, runs int, fn SynthFunc) ([]RunResult, error) {
	if runs < 1 {
		return nil, errors.New("runs must be at least 1")
	}

	results := make([]RunResult, 0, runs)

	for i := range runs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		s, err := fn(ctx)
		if err != nil {
			return results, fmt.Errorf("run %d failed: %w", i+1, err)
		}
		dur := time.Since(start)

		results = append(results, RunResult{
			Index:         i,
			Cold:          i == 0,
			Duration:      dur,
			AudioDuration: s.AudioDuration,
			Tokens:        s.Tokens,
			RTF:           CalcRTF(dur, s.AudioDuration),
		})
	}

	return results, nil
}

// ComputeStats aggregates durations and RTF over runs.
func ComputeStats(runs []RunResult) Stats {
	if len(runs) == 0 {
		return Stats{}
	}

	mn, mx := runs[0].Duration, runs[0].Duration
	var (
		sum    time.Duration
		rtfSum float64
	)
	for _, r := range runs {
		if r.Duration < mn {
			mn = r.Duration
		}
		if r.Duration > mx {
			mx = r.Duration
		}
		sum += r.Duration
		rtfSum += r.RTF
	}

	return Stats{
		Min:     mn,
		Max:     mx,
		Mean:    sum / time.Duration(len(runs)),
		MeanRTF: rtfSum / float64(len(runs)),
	}
}

// ---------------------------------------------------------------------------
// RTF helpers
// ---------------------------------------------------------------------------

// CalcRTF returns synthesis_duration / audio_duration.
// Returns 0 if audioDur is zero to avoid division by zero.
func CalcRTF(synthDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}
	return float64(synthDur) / float64(audioDur)
}

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %12s  %7s  %8s\n", "Run", "Cold", "MS", "Audio(ms)", "Tokens", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 56))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %12.1f  %7d  %8.3f\n",
			r.Index+1,
			cold,
			float64(r.Duration.Milliseconds()),
			float64(r.AudioDuration.Milliseconds()),
			r.Tokens,
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 56))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %7s  %8s  (min)\n", "", "", float64(stats.Min.Milliseconds()), "", "", "")
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %7s  %8.3f  (mean)\n", "", "", float64(stats.Mean.Milliseconds()), "", "", stats.MeanRTF)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %7s  %8s  (max)\n", "", "", float64(stats.Max.Milliseconds()), "", "", "")

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	AudioMS    float64 `json:"audio_ms"`
	Tokens     int     `json:"tokens"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS   float64 `json:"min_ms"`
	MeanMS  float64 `json:"mean_ms"`
	MaxMS   float64 `json:"max_ms"`
	MeanRTF float64 `json:"mean_rtf"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:   float64(stats.Min.Milliseconds()),
			MeanMS:  float64(stats.Mean.Milliseconds()),
			MaxMS:   float64(stats.Max.Milliseconds()),
			MeanRTF: stats.MeanRTF,
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: float64(r.Duration.Milliseconds()),
			AudioMS:    float64(r.AudioDuration.Milliseconds()),
			Tokens:     r.Tokens,
			RTF:        r.RTF,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
