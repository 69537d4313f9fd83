package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-kitten-tts/internal/bench"
	"github.com/example/go-kitten-tts/internal/tts"
)

func newBenchCmd() *cobra.Command {
	var (
		text         string
		voice        string
		runs         int
		format       string
		rtfThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark synthesis latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text is required for bench")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			svc, err := tts.NewService(cfg, slog.Default())
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			defer svc.Close()

			req := buildSynthRequest(cfg, synthOptions{Voice: voice}, text)

			return runBench(cmd.Context(), svc, req, runs, format, rtfThreshold, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize for each run (required)")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice name (overrides config)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of synthesis runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")

	return cmd
}

func runBench(ctx context.Context, svc synthesizer, req tts.Request, runs int, format string, threshold float64, w io.Writer) error {
	results, err := bench.Run(ctx, runs, func(ctx context.Context) (bench.Sample, error) {
		res, err := svc.Synthesize(ctx, req)
		if err != nil {
			return bench.Sample{}, err
		}
		return bench.Sample{AudioDuration: res.Duration(), Tokens: res.Tokens}, nil
	})
	if err != nil {
		return err
	}

	stats := bench.ComputeStats(results)

	switch format {
	case "json":
		bench.FormatJSON(results, stats, w)
	default:
		bench.FormatTable(results, stats, w)
	}

	return bench.CheckRTFThreshold(stats.MeanRTF, threshold)
}
