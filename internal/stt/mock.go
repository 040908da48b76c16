package stt

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a recognizer that reports what it was
// given without doing any inference.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(ctx context.Context, audio []byte, mediaType string) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	return Transcript{Text: fmt.Sprintf("[heard %d bytes of %s]", len(audio), mediaType)}, nil
}
