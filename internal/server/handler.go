package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/go-kitten-tts/internal/tts"
)

//go:embed web/index.html
var indexHTML []byte

// Synthesizer renders a request as a complete WAV file.
type Synthesizer interface {
	SynthesizeWAV(ctx context.Context, req tts.Request) ([]byte, error)
}

// StreamingSynthesizer renders a request chunk by chunk.
type StreamingSynthesizer interface {
	SynthesizeStream(ctx context.Context, req tts.Request, out chan<- tts.PCMChunk) error
}

// VoiceLister returns the available voice names.
type VoiceLister interface {
	Voices() []string
}

// StatusReporter exposes the model lifecycle state for /health.
type StatusReporter interface {
	Status() tts.Status
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	sampleRate     int
	logger         *slog.Logger
	streamer       StreamingSynthesizer
	status         StatusReporter
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		workers:        1,
		requestTimeout: 60 * time.Second,
		sampleRate:     tts.ModelSampleRate,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent synthesis calls.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithSampleRate sets the WAV header rate used when a stream produces no chunks.
func WithSampleRate(rate int) Option {
	return func(o *options) { o.sampleRate = rate }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStreamer enables POST /tts/stream.
func WithStreamer(s StreamingSynthesizer) Option {
	return func(o *options) { o.streamer = s }
}

// WithStatus adds the model state to /health.
func WithStatus(s StatusReporter) Option {
	return func(o *options) { o.status = s }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	synth  Synthesizer
	voices VoiceLister
	opts   options
	sem    chan struct{} // semaphore for worker pool
	log    *slog.Logger
}

// NewHandler returns an http.Handler serving the web page, /health, /voices,
// POST /tts and POST /tts/stream.
func NewHandler(synth Synthesizer, voices VoiceLister, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		synth:  synth,
		voices: voices,
		opts:   opts,
		log:    opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleIndex)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/voices", h.handleVoices)
	mux.HandleFunc("/tts", h.handleTTS)
	mux.HandleFunc("/tts/stream", h.handleTTSStream)

	return withRequestID(mux, h.log)
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

func (h *handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexHTML)
}

type healthResponse struct {
	Status  string    `json:"status"`
	State   tts.State `json:"state,omitempty"`
	Error   string    `json:"error,omitempty"`
	Version string    `json:"version"`
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Version: buildVersion()}
	if h.opts.status != nil {
		st := h.opts.status.Status()
		resp.State = st.State
		resp.Error = st.Error
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleVoices(w http.ResponseWriter, _ *http.Request) {
	voices := h.voices.Voices()
	if voices == nil {
		voices = []string{}
	}

	writeJSON(w, http.StatusOK, voices)
}

// decodeRequest validates method, body and size. It writes the error response
// and returns false when the request must not proceed.
func (h *handler) decodeRequest(w http.ResponseWriter, r *http.Request) (tts.Request, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return tts.Request{}, false
	}

	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "request body is required")
		return tts.Request{}, false
	}

	// Escaped JSON text takes up to six bytes per byte of text.
	body := http.MaxBytesReader(w, r.Body, int64(h.opts.maxTextBytes)*6+1024)

	var req tts.Request
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return tts.Request{}, false
		}

		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return tts.Request{}, false
	}

	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return tts.Request{}, false
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return tts.Request{}, false
	}

	return req, true
}

// acquire takes a worker slot, honouring cancellation while waiting. The
// returned release func is nil when no slot was acquired.
func (h *handler) acquire(w http.ResponseWriter, r *http.Request) (release func(), ok bool) {
	if h.sem == nil {
		return func() {}, true
	}

	select {
	case h.sem <- struct{}{}:
		return func() { <-h.sem }, true
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
		return nil, false
	}
}

func (h *handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	log := loggerFrom(r.Context(), h.log)

	start := time.Now()
	wav, err := h.synth.SynthesizeWAV(ctx, req)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.writeSynthError(w, r, log, req, durationMS, err)
		return
	}

	log.InfoContext(r.Context(), "synthesis complete",
		slog.String("voice", req.Voice),
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
		slog.Int("wav_bytes", len(wav)),
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response was ready.
const statusClientClosedRequest = 499

// synthStatus maps a synthesis error to an HTTP status.
func synthStatus(err error) int {
	switch {
	case errors.Is(err, tts.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, tts.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeSynthError(w http.ResponseWriter, r *http.Request, log *slog.Logger, req tts.Request, durationMS int64, err error) {
	status := synthStatus(err)

	attrs := []any{
		slog.String("voice", req.Voice),
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}

	switch status {
	case statusClientClosedRequest:
		log.InfoContext(r.Context(), "client disconnected", attrs...)
		writeError(w, status, "request cancelled")
	case http.StatusGatewayTimeout:
		log.WarnContext(r.Context(), "synthesis timed out", attrs...)
		writeError(w, status, "synthesis timed out")
	case http.StatusInternalServerError:
		log.ErrorContext(r.Context(), "synthesis failed", attrs...)
		writeError(w, status, err.Error())
	default:
		log.WarnContext(r.Context(), "synthesis rejected", attrs...)
		writeError(w, status, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
