package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/example/go-kitten-tts/internal/config"
	"github.com/example/go-kitten-tts/internal/doctor"
	"github.com/example/go-kitten-tts/internal/onnx"
	"github.com/example/go-kitten-tts/internal/phonemize"
	"github.com/example/go-kitten-tts/internal/tts"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime, model and phonemizer checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(os.Stdout, "phonemizer: %s\n", cfg.Phonemizer.Backend)

			result := doctor.Run(doctorConfig(cmd.Context(), cfg), os.Stdout)
			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(os.Stdout, "doctor checks passed")

			return nil
		},
	}

	return cmd
}

func doctorConfig(ctx context.Context, cfg config.Config) doctor.Config {
	return doctor.Config{
		ONNXRuntime: func() (string, error) {
			info, err := onnx.DetectRuntime(cfg.Runtime)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s (%s)", info.LibraryPath, info.Version), nil
		},
		Model: func() (string, error) {
			sess, err := onnx.NewSession("kitten_tts", cfg.Paths.ModelPath)
			if err != nil {
				return "", err
			}
			st, err := os.Stat(sess.Path)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s (%s)", sess.Path, humanize.Bytes(uint64(st.Size()))), nil
		},
		VoiceCount: func() (int, error) {
			vm, err := tts.NewVoiceManager(cfg.Paths.VoicesPath)
			if err != nil {
				return 0, err
			}
			if _, err := vm.Default(cfg.TTS.Voice); err != nil {
				return 0, fmt.Errorf("configured voice: %w", err)
			}
			return vm.Len(), nil
		},
		ESpeakVersion: func() (string, error) {
			vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return phonemize.NewESpeak(cfg.Phonemizer.ESpeakPath, cfg.Phonemizer.Language).Version(vctx)
		},
		SkipESpeak: cfg.Phonemizer.Backend == config.PhonemizerRules,
	}
}
