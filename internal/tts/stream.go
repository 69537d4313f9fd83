package tts

import (
	"context"

	"github.com/example/go-kitten-tts/internal/text"
)

// PCMChunk is the audio for one sentence chunk of a streamed request.
type PCMChunk struct {
	Text       string
	Samples    []float32
	SampleRate int
	ChunkIndex int
	Final      bool
}

// SynthesizeStream splits the request text into sentence chunks, renders them
// in order and sends each on out. out is always closed on return.
func (s *Service) SynthesizeStream(ctx context.Context, req Request, out chan<- PCMChunk) error {
	defer close(out)

	j, err := s.prepare(req)
	if err != nil {
		return err
	}

	chunks := text.ChunkBySentence(j.text, s.ttsCfg.MaxChunkChars)

	s.genMu.Lock()
	defer s.genMu.Unlock()

	s.state.set(StateGenerating, nil)

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			s.finish(err)
			return err
		}

		res, err := s.generate(ctx, j, chunk)
		if err != nil {
			s.finish(err)
			return err
		}

		pc := PCMChunk{
			Text:       chunk,
			Samples:    res.Samples,
			SampleRate: res.SampleRate,
			ChunkIndex: i,
			Final:      i == len(chunks)-1,
		}

		select {
		case out <- pc:
		case <-ctx.Done():
			s.finish(ctx.Err())
			return ctx.Err()
		}
	}

	s.finish(nil)

	return nil
}
