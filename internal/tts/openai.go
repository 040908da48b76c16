package tts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

type openaiSynth struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

// NewOpenAISynth synthesizes through the OpenAI speech API.
func NewOpenAISynth(apiKey, model, voice string) Synthesizer {
	m := openai.SpeechModel(model)
	if model == "" {
		m = openai.TTSModel1
	}
	v := openai.SpeechVoice(voice)
	if voice == "" {
		v = openai.VoiceAlloy
	}
	return &openaiSynth{client: openai.NewClient(apiKey), model: m, voice: v}
}

func (o *openaiSynth) Synthesize(ctx context.Context, text string) (Clip, error) {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return Clip{}, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return Clip{}, fmt.Errorf("read openai speech response: %w", err)
	}
	if len(data) == 0 {
		return Clip{}, fmt.Errorf("openai speech returned no audio")
	}
	return Clip{Audio: data, MediaType: "audio/wav"}, nil
}
