package tts

import "context"

// Clip is one rendered utterance: an opaque audio payload plus the
// media type it was encoded with.
type Clip struct {
	Audio     []byte
	MediaType string
}

// Synthesizer abstracts TTS backends. Implementations must return a
// non-empty payload on success; the text is guaranteed non-empty by
// the caller.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Clip, error)
}
