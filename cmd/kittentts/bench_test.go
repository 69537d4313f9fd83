package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/example/go-kitten-tts/internal/tts"
)

func TestRunBench_TableAndJSON(t *testing.T) {
	svc := &fakeSynth{samples: make([]float32, 24000), rate: 24000}

	var table bytes.Buffer
	if err := runBench(context.Background(), svc, tts.Request{Text: "Hi."}, 2, "table", 0, &table); err != nil {
		t.Fatalf("runBench(table) error = %v", err)
	}

	if !strings.Contains(table.String(), "(mean)") {
		t.Errorf("table missing mean row:\n%s", table.String())
	}

	var js bytes.Buffer
	if err := runBench(context.Background(), svc, tts.Request{Text: "Hi."}, 3, "json", 0, &js); err != nil {
		t.Fatalf("runBench(json) error = %v", err)
	}

	var report struct {
		Runs []struct {
			AudioMS float64 `json:"audio_ms"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(js.Bytes(), &report); err != nil {
		t.Fatalf("decode JSON report: %v", err)
	}

	if len(report.Runs) != 3 || report.Runs[0].AudioMS != 1000 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestRunBench_ThresholdGate(t *testing.T) {
	// Near-instant synthesis of one second of audio keeps RTF far below 100.
	svc := &fakeSynth{samples: make([]float32, 24000), rate: 24000}

	if err := runBench(context.Background(), svc, tts.Request{Text: "Hi."}, 1, "table", 100, &bytes.Buffer{}); err != nil {
		t.Fatalf("runBench() error = %v; want pass under generous threshold", err)
	}
}

func TestRunBench_PropagatesError(t *testing.T) {
	svc := &fakeSynth{err: tts.ErrNotReady}

	err := runBench(context.Background(), svc, tts.Request{Text: "Hi."}, 2, "table", 0, &bytes.Buffer{})
	if !errors.Is(err, tts.ErrNotReady) {
		t.Fatalf("runBench() error = %v; want ErrNotReady", err)
	}
}
