package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/example/go-kitten-tts/internal/safetensors"
	"github.com/example/go-kitten-tts/internal/tts"
)

func newVoicesCmd() *cobra.Command {
	var export string

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List voices in the voices file",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			vm, err := tts.NewVoiceManager(cfg.Paths.VoicesPath)
			if err != nil {
				return err
			}

			if export != "" {
				return exportVoices(vm, export, os.Stdout)
			}

			return listVoices(vm, cfg.TTS.Voice, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&export, "export", "", "Write the voice table to a .safetensors file instead of listing")

	return cmd
}

func listVoices(vm *tts.VoiceManager, preferred string, w io.Writer) error {
	def, err := vm.Default(preferred)
	if err != nil {
		return err
	}

	for _, name := range vm.ListVoices() {
		emb, err := vm.Embedding(name)
		if err != nil {
			return err
		}

		marker := " "
		if name == def {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s (%d dims)\n", marker, name, len(emb))
	}

	return nil
}

// exportVoices converts the loaded table to safetensors, which loads without
// JSON number parsing.
func exportVoices(vm *tts.VoiceManager, path string, w io.Writer) error {
	data, err := safetensors.EncodeVoices(vm.Table())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write voices: %w", err)
	}

	fmt.Fprintf(w, "wrote %d voices to %s (%s)\n", vm.Len(), path, humanize.Bytes(uint64(len(data))))
	return nil
}
