package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type openaiRecognizer struct {
	client *openai.Client
	model  string
}

// NewOpenAIRecognizer transcribes through the OpenAI audio API.
func NewOpenAIRecognizer(apiKey, model string) Recognizer {
	if model == "" {
		model = openai.Whisper1
	}
	return &openaiRecognizer{client: openai.NewClient(apiKey), model: model}
}

func (o *openaiRecognizer) Transcribe(ctx context.Context, audio []byte, mediaType string) (Transcript, error) {
	name := "clip.wav"
	if strings.Contains(mediaType, "mpeg") || strings.Contains(mediaType, "mp3") {
		name = "clip.mp3"
	}
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: name,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return Transcript{}, fmt.Errorf("openai transcription: %w", err)
	}
	return Transcript{Text: strings.TrimSpace(resp.Text)}, nil
}
