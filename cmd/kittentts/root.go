package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/example/go-kitten-tts/internal/config"
	"github.com/example/go-kitten-tts/internal/server"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "kittentts",
		Short:         "Kitten TTS command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			return setupLogger(loaded.LogLevel, loaded.Log)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newSynthCmd())
	cmd.AddCommand(newPhonemizeCmd())
	cmd.AddCommand(newVoicesCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newPlayCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newModelCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger. When a log
// file is configured, records go to stderr and to a rotating file.
func setupLogger(levelStr string, logCfg config.LogConfig) error {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if logCfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(logCfg.File), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}

		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logCfg.File,
			MaxSize:    positiveOr(logCfg.MaxSizeMB, 10),
			MaxBackups: positiveOr(logCfg.MaxBackups, 3),
			MaxAge:     positiveOr(logCfg.MaxAgeDays, 7),
			Compress:   true,
		})
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))

	return nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func requireConfig() (config.Config, error) {
	if activeCfg.Paths.ModelPath == "" {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return activeCfg, nil
}
