package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/go-kitten-tts/internal/server"
	"github.com/example/go-kitten-tts/internal/tts"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Kitten TTS HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			logger := slog.Default()
			svc := tts.New(cfg.TTS, logger)
			defer svc.Close()

			// The page and /health are served while the model loads; /tts
			// answers 503 until it is ready.
			go func() {
				_ = svc.Load(cfg)
			}()

			return server.New(cfg, svc, logger).Start(cmd.Context())
		},
	}

	return cmd
}
