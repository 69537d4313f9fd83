package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/go-kitten-tts/internal/config"
	"github.com/example/go-kitten-tts/internal/tts"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// ---------------------------------------------------------------------------
// Server wires the handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

type Server struct {
	cfg             config.Config
	tts             *tts.Service
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

func New(cfg config.Config, svc *tts.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	shutdown := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if shutdown <= 0 {
		shutdown = 30 * time.Second
	}

	return &Server{
		cfg:             cfg,
		tts:             svc,
		logger:          logger,
		shutdownTimeout: shutdown,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// Handler builds the HTTP handler for the configured service.
func (s *Server) Handler() (http.Handler, error) {
	if s.tts == nil {
		return nil, errors.New("tts service is required")
	}

	timeout := time.Duration(s.cfg.Server.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return NewHandler(s.tts, s.tts,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestTimeout(timeout),
		WithSampleRate(s.cfg.TTS.SampleRate),
		WithStreamer(s.tts),
		WithStatus(s.tts),
		WithLogger(s.logger),
	), nil
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	h, err := s.Handler()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("http server listening", "addr", s.cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down", "timeout", s.shutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks GET /health on addr.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
