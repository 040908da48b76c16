package tts

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// encodeWAV renders 16-bit PCM samples into a WAV container. The wav
// encoder needs a seekable writer, so we go through a scratch file and
// remove it on every path.
func encodeWAV(samples []int, sampleRate, channels int) ([]byte, error) {
	file, err := os.CreateTemp("", "echotrail_tts_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	name := file.Name()
	defer os.Remove(name)
	defer file.Close()

	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	}
	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read back wav: %w", err)
	}
	return data, nil
}

// pcm16ToInts converts little-endian signed 16-bit PCM bytes to the
// int samples the wav encoder expects.
func pcm16ToInts(pcm []byte) ([]int, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return samples, nil
}

// downmixStereo averages interleaved stereo samples into mono.
func downmixStereo(samples []int) []int {
	mono := make([]int, len(samples)/2)
	for i := range mono {
		mono[i] = (samples[2*i] + samples[2*i+1]) / 2
	}
	return mono
}
