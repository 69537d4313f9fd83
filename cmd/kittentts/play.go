package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-kitten-tts/internal/audio"
)

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play <file.wav>",
		Short: "Play a mono 16-bit WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			clip, err := audio.DecodeWAV(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			p, err := newPlayer(clip.SampleRate)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "playing %s: %.2fs at %d Hz\n", args[0], clip.Duration(), clip.SampleRate)

			return ignoreCancel(p.Play(cmd.Context(), clip.Samples))
		},
	}
}
