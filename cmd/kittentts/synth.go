package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/example/go-kitten-tts/internal/audio"
	"github.com/example/go-kitten-tts/internal/config"
	"github.com/example/go-kitten-tts/internal/player"
	"github.com/example/go-kitten-tts/internal/tts"
)

type synthOptions struct {
	Text       string
	Out        string
	Voice      string
	Speed      float64
	SampleRate int
	Play       bool
	Stream     bool
}

func newSynthCmd() *cobra.Command {
	var opts synthOptions

	cmd := &cobra.Command{
		Use:   "synth [text]",
		Short: "Synthesize text to WAV",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				opts.Text = args[0]
			}

			input, err := readSynthText(opts.Text, os.Stdin)
			if err != nil {
				return err
			}

			svc, err := tts.NewService(cfg, slog.Default())
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			defer svc.Close()

			req := buildSynthRequest(cfg, opts, input)

			if opts.Stream {
				return runSynthStream(cmd.Context(), svc, req, opts, os.Stdout, os.Stderr)
			}

			return runSynth(cmd.Context(), svc, req, opts, os.Stdout, os.Stderr)
		},
	}

	cmd.Flags().StringVar(&opts.Text, "text", "", "Text to synthesize (if empty, read from the argument or stdin)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "out.wav", "Output WAV path ('-' for stdout, '' to skip writing)")
	cmd.Flags().StringVar(&opts.Voice, "voice", "", "Voice name from the voices file (overrides config)")
	cmd.Flags().Float64Var(&opts.Speed, "speed", 0, "Speaking speed 0.5-2.0 (overrides config)")
	cmd.Flags().IntVar(&opts.SampleRate, "sample-rate", 0, "Output WAV sample rate (overrides config)")
	cmd.Flags().BoolVar(&opts.Play, "play", false, "Play the audio through the sound card")
	cmd.Flags().BoolVar(&opts.Stream, "stream", false, "Synthesize sentence by sentence, emitting audio as each chunk is ready")

	return cmd
}

// synthesizer is the subset of *tts.Service used by the synth command.
type synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (tts.Result, error)
	SynthesizeStream(ctx context.Context, req tts.Request, out chan<- tts.PCMChunk) error
}

// samplePlayer plays decoded samples; newPlayer is swapped in tests.
type samplePlayer interface {
	Play(ctx context.Context, samples []float32) error
}

var newPlayer = func(sampleRate int) (samplePlayer, error) {
	return player.New(sampleRate)
}

func buildSynthRequest(cfg config.Config, opts synthOptions, input string) tts.Request {
	req := tts.Request{
		Text:       input,
		Voice:      cfg.TTS.Voice,
		Speed:      cfg.TTS.Speed,
		SampleRate: cfg.TTS.SampleRate,
	}
	if opts.Voice != "" {
		req.Voice = opts.Voice
	}
	if opts.Speed != 0 {
		req.Speed = opts.Speed
	}
	if opts.SampleRate != 0 {
		req.SampleRate = opts.SampleRate
	}
	return req
}

func runSynth(ctx context.Context, svc synthesizer, req tts.Request, opts synthOptions, stdout, stderr io.Writer) error {
	start := time.Now()

	res, err := svc.Synthesize(ctx, req)
	if err != nil {
		return err
	}

	wav, err := audio.EncodeWAVPCM16(res.Samples, res.SampleRate)
	if err != nil {
		return err
	}

	if err := writeSynthOutput(opts.Out, wav, stdout); err != nil {
		return err
	}

	reportSynth(stderr, opts.Out, len(wav), res.Duration(), time.Since(start), res.Voice)

	if opts.Play {
		p, err := newPlayer(res.SampleRate)
		if err != nil {
			return err
		}
		return ignoreCancel(p.Play(ctx, res.Samples))
	}

	return nil
}

// runSynthStream renders chunk by chunk. Stdout output uses a streaming WAV
// header and is written as chunks arrive; file output is written once at the
// end with exact sizes.
func runSynthStream(ctx context.Context, svc synthesizer, req tts.Request, opts synthOptions, stdout, stderr io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	out := make(chan tts.PCMChunk, 2)
	errCh := make(chan error, 1)

	go func() {
		errCh <- svc.SynthesizeStream(ctx, req, out)
	}()

	var (
		p         samplePlayer
		all       []float32
		rate      int
		headerOut bool
		loopErr   error
	)

	toStdout := opts.Out == "-"

	for chunk := range out {
		if loopErr != nil {
			continue
		}

		rate = chunk.SampleRate
		all = append(all, chunk.Samples...)

		if toStdout {
			if !headerOut {
				if _, err := audio.WriteWAVHeaderStreaming(stdout, rate); err != nil {
					loopErr = err
					cancel()
					continue
				}
				headerOut = true
			}
			if _, err := audio.WritePCM16Samples(stdout, chunk.Samples); err != nil {
				loopErr = err
				cancel()
				continue
			}
		}

		fmt.Fprintf(stderr, "chunk %d: %q (%s)\n", chunk.ChunkIndex+1, chunk.Text,
			samplesDuration(len(chunk.Samples), rate).Round(time.Millisecond))

		if opts.Play {
			if p == nil {
				var err error
				if p, err = newPlayer(rate); err != nil {
					loopErr = err
					cancel()
					continue
				}
			}
			if err := p.Play(ctx, chunk.Samples); err != nil {
				loopErr = err
				cancel()
			}
		}
	}

	if err := <-errCh; err != nil && loopErr == nil {
		loopErr = err
	}
	if loopErr != nil {
		return ignoreCancel(loopErr)
	}

	if toStdout || opts.Out == "" {
		reportSynth(stderr, opts.Out, 44+2*len(all), samplesDuration(len(all), rate), time.Since(start), req.Voice)
		return nil
	}

	wav, err := audio.EncodeWAVPCM16(all, rate)
	if err != nil {
		return err
	}
	if err := writeSynthOutput(opts.Out, wav, stdout); err != nil {
		return err
	}

	reportSynth(stderr, opts.Out, len(wav), samplesDuration(len(all), rate), time.Since(start), req.Voice)

	return nil
}

func samplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

func reportSynth(w io.Writer, outPath string, size int, audioLen, elapsed time.Duration, voice string) {
	dest := outPath
	switch dest {
	case "-":
		dest = "stdout"
	case "":
		dest = "(not written)"
	}

	fmt.Fprintf(w, "wrote %s to %s: %s of audio, voice %s, generated in %s\n",
		humanize.Bytes(uint64(size)), dest, audioLen.Round(time.Millisecond), voiceLabel(voice),
		elapsed.Round(time.Millisecond))
}

func voiceLabel(v string) string {
	if v == "" {
		return "(default)"
	}
	return v
}

// ignoreCancel treats an interrupted playback as a clean stop.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func writeSynthOutput(outPath string, wavData []byte, stdout io.Writer) error {
	switch outPath {
	case "":
		return nil
	case "-":
		if stdout == nil {
			return fmt.Errorf("stdout writer is nil")
		}
		_, err := io.Copy(stdout, bytes.NewReader(wavData))
		return err
	default:
		return os.WriteFile(outPath, wavData, 0o644)
	}
}

func readSynthText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("either provide text as an argument, --text, or pipe text on stdin")
	}
	return input, nil
}
