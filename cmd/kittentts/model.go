package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-kitten-tts/internal/config"
	"github.com/example/go-kitten-tts/internal/model"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Model acquisition and verification commands",
	}

	cmd.AddCommand(newModelDownloadCmd())
	cmd.AddCommand(newModelVerifyCmd())
	return cmd
}

type modelDownloadOptions struct {
	BaseURL   string
	OutDir    string
	Token     string
	Checksums []string
}

func newModelDownloadCmd() *cobra.Command {
	var opts modelDownloadOptions

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the ONNX model and voices file from a base URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Token == "" {
				opts.Token = os.Getenv("HF_TOKEN")
			}
			return runModelDownload(cmd.Context(), opts, os.Stdout, os.Stderr)
		},
	}

	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "URL the model files are served under (required)")
	cmd.Flags().StringVar(&opts.OutDir, "out-dir", "model", "Directory where model files are stored")
	cmd.Flags().StringVar(&opts.Token, "token", "", "Bearer token for gated hosts (falls back to HF_TOKEN env var)")
	cmd.Flags().StringArrayVar(&opts.Checksums, "checksum", nil, "Pin a file checksum as filename=sha256 (repeatable)")

	return cmd
}

func runModelDownload(ctx context.Context, opts modelDownloadOptions, stdout, stderr io.Writer) error {
	if opts.BaseURL == "" {
		return errors.New("--base-url is required")
	}

	files, err := model.ApplyChecksums(model.DefaultFiles(), opts.Checksums)
	if err != nil {
		return err
	}

	err = model.Download(ctx, model.DownloadOptions{
		BaseURL: opts.BaseURL,
		OutDir:  opts.OutDir,
		Files:   files,
		Token:   opts.Token,
		Stdout:  stdout,
	})
	if err != nil {
		var denied *model.ErrAccessDenied
		if errors.As(err, &denied) && opts.Token == "" {
			_, _ = fmt.Fprintln(stderr, "hint: the host requires authentication; pass --token or set HF_TOKEN")
		}
		return fmt.Errorf("model download failed: %w", err)
	}

	return nil
}

func newModelVerifyCmd() *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run a smoke inference against the configured model and voices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			return verifyModel(cmd.Context(), cfg, text, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&text, "text", model.DefaultVerifyText, "Text used for the smoke inference")

	return cmd
}

func verifyModel(ctx context.Context, cfg config.Config, text string, stdout io.Writer) error {
	_, _ = fmt.Fprintf(stdout, "verifying model: %s\n", cfg.Paths.ModelPath)

	err := model.Verify(ctx, model.VerifyOptions{
		Config: cfg,
		Text:   text,
		Stdout: stdout,
	})
	if err != nil {
		return fmt.Errorf("model verify failed: %w", err)
	}

	_, _ = fmt.Fprintln(stdout, "model verification passed")
	return nil
}
