package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/go-kitten-tts/internal/audio"
	"github.com/example/go-kitten-tts/internal/tts"
)

// handleTTSStream writes a WAV header with unknown length followed by PCM
// for each sentence chunk as soon as it is rendered. Errors before the first
// chunk are reported as JSON; later errors truncate the stream.
func (h *handler) handleTTSStream(w http.ResponseWriter, r *http.Request) {
	if h.opts.streamer == nil {
		writeError(w, http.StatusNotImplemented, "streaming is not enabled")
		return
	}

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
	flusher, _ := w.(http.Flusher)

	out := make(chan tts.PCMChunk, 1)
	errCh := make(chan error, 1)
	start := time.Now()

	go func() {
		errCh <- h.opts.streamer.SynthesizeStream(ctx, req, out)
	}()

	headerWritten := false
	samples := 0
	chunks := 0

	writeHeader := func(rate int) bool {
		w.Header().Set("Content-Type", "audio/wav")
		w.WriteHeader(http.StatusOK)
		headerWritten = true

		if _, err := audio.WriteWAVHeaderStreaming(w, rate); err != nil {
			cancel()
			return false
		}

		return true
	}

	for chunk := range out {
		if ctx.Err() != nil {
			continue
		}

		if !headerWritten {
			rate := chunk.SampleRate
			if rate == 0 {
				rate = h.opts.sampleRate
			}

			if !writeHeader(rate) {
				continue
			}
		}

		if _, err := audio.WritePCM16Samples(w, chunk.Samples); err != nil {
			cancel()
			continue
		}

		if flusher != nil {
			flusher.Flush()
		}

		samples += len(chunk.Samples)
		chunks++
	}

	err := <-errCh
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		if !headerWritten {
			h.writeSynthError(w, r, log, req, durationMS, err)
			return
		}

		log.WarnContext(r.Context(), "stream aborted",
			slog.Int("chunks", chunks),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)

		return
	}

	if !headerWritten {
		writeHeader(h.opts.sampleRate)
	}

	log.InfoContext(r.Context(), "stream complete",
		slog.String("voice", req.Voice),
		slog.Int("text_len", len(req.Text)),
		slog.Int("chunks", chunks),
		slog.Int("samples", samples),
		slog.Int64("duration_ms", durationMS),
	)
}
