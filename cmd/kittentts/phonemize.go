package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-kitten-tts/internal/phonemize"
	"github.com/example/go-kitten-tts/internal/text"
	"github.com/example/go-kitten-tts/internal/tokenizer"
)

func newPhonemizeCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "phonemize [text]",
		Short: "Print the phonemes and token ids for text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				input = args[0]
			}

			raw, err := readSynthText(input, os.Stdin)
			if err != nil {
				return err
			}

			ph, err := phonemize.New(cfg.Phonemizer, slog.Default())
			if err != nil {
				return err
			}

			return runPhonemize(cmd.Context(), ph, tokenizer.Default(), raw, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&input, "text", "", "Text to phonemize (if empty, read from the argument or stdin)")

	return cmd
}

func runPhonemize(ctx context.Context, ph phonemize.Phonemizer, tok *tokenizer.SymbolTable, raw string, w io.Writer) error {
	normalized, err := text.Normalize(raw)
	if err != nil {
		return err
	}

	out, err := ph.Phonemize(ctx, normalized)
	if err != nil {
		return err
	}

	phonemes := text.JoinPhonemes([]string{out})

	ids, err := tok.Encode(phonemes)
	if err != nil {
		return err
	}

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}

	fmt.Fprintf(w, "phonemes: %s\n", phonemes)
	fmt.Fprintf(w, "tokens:   [%s]\n", strings.Join(parts, " "))
	fmt.Fprintf(w, "count:    %d\n", len(ids))

	if unknown := tok.Unknown(phonemes); len(unknown) > 0 {
		fmt.Fprintf(w, "skipped:  %q\n", string(unknown))
	}

	return nil
}
