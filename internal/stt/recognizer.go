package stt

import "context"

// Transcript captures recognizer output. An empty Text on a nil error
// means no speech was detected; that is a valid result, not a failure.
type Transcript struct {
	Text string
}

// Recognizer abstracts STT backends. The media type describes the
// audio container (audio/wav or audio/mpeg).
type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte, mediaType string) (Transcript, error)
}
