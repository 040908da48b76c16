package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"
)

type edgeSynth struct {
	voice string
}

// NewEdgeSynth synthesizes through the Microsoft Edge TTS endpoint.
// The service streams MP3; we decode to PCM and re-encode as WAV so
// every synthesizer in the registry emits the same container.
func NewEdgeSynth(voice string) Synthesizer {
	if voice == "" {
		voice = "en-US-AriaNeural"
	}
	return &edgeSynth{voice: voice}
}

func (e *edgeSynth) Synthesize(ctx context.Context, text string) (Clip, error) {
	comm, err := edge.NewCommunicate(text, edge.WithVoice(e.voice))
	if err != nil {
		return Clip{}, fmt.Errorf("edge-tts init: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return Clip{}, fmt.Errorf("edge-tts stream: %w", err)
	}

	var mp3Buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return Clip{}, ctx.Err()
		default:
		}
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}
	if mp3Buf.Len() == 0 {
		return Clip{}, fmt.Errorf("edge-tts returned no audio")
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(mp3Buf.Bytes()))
	if err != nil {
		return Clip{}, fmt.Errorf("decode mp3: %w", err)
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return Clip{}, fmt.Errorf("read pcm: %w", err)
	}

	// go-mp3 always outputs interleaved stereo s16le
	samples, err := pcm16ToInts(pcm)
	if err != nil {
		return Clip{}, err
	}
	mono := downmixStereo(samples)

	data, err := encodeWAV(mono, decoder.SampleRate(), 1)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Audio: data, MediaType: "audio/wav"}, nil
}
