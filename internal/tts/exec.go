package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd        []string
	sampleRate int
}

// NewExecSynth wraps a piper-style CLI: the command reads text on stdin
// and writes raw signed 16-bit LE mono PCM at the configured sample
// rate to stdout.
func NewExecSynth(command string, sampleRate int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	return &execSynth{cmd: args, sampleRate: sampleRate}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, text string) (Clip, error) {
	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader([]byte(text))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Clip{}, fmt.Errorf("tts command failed: %w: %s", err, stderr.String())
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return Clip{}, fmt.Errorf("tts command produced no audio")
	}

	samples, err := pcm16ToInts(pcm)
	if err != nil {
		return Clip{}, err
	}
	data, err := encodeWAV(samples, e.sampleRate, 1)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Audio: data, MediaType: "audio/wav"}, nil
}
