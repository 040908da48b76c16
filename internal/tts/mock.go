package tts

import (
	"context"
	"math"
)

type mockSynth struct {
	sampleRate int
}

// NewMockSynth returns a synthesizer that renders a short deterministic
// tone for any text. The tone's pitch is derived from the text so two
// different messages produce different payloads.
func NewMockSynth(sampleRate int) Synthesizer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &mockSynth{sampleRate: sampleRate}
}

func (m *mockSynth) Synthesize(ctx context.Context, text string) (Clip, error) {
	if err := ctx.Err(); err != nil {
		return Clip{}, err
	}

	freq := 220.0
	for _, r := range text {
		freq += float64(r % 64)
	}
	for freq > 880 {
		freq /= 2
	}

	n := m.sampleRate / 5 // 200ms
	samples := make([]int, n)
	for i := range samples {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(m.sampleRate))
		samples[i] = int(v * 0.4 * math.MaxInt16)
	}

	data, err := encodeWAV(samples, m.sampleRate, 1)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Audio: data, MediaType: "audio/wav"}, nil
}
