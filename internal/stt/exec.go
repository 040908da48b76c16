package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execRecognizer struct {
	cmd       []string
	modelPath string
	language  string
	mu        sync.Mutex
}

type execResult struct {
	Text string `json:"text"`
}

// NewExecRecognizer wraps a whisper-style CLI. The command receives the
// clip via --audio <path> plus optional --model and --language flags
// and prints a JSON object with a "text" field on stdout.
func NewExecRecognizer(command, modelPath, language string) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execRecognizer{cmd: args, modelPath: modelPath, language: language}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, audio []byte, mediaType string) (Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	suffix := ".wav"
	if strings.Contains(mediaType, "mpeg") || strings.Contains(mediaType, "mp3") {
		suffix = ".mp3"
	}
	file, err := os.CreateTemp("", "echotrail_stt_*"+suffix)
	if err != nil {
		return Transcript{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if _, err := file.Write(audio); err != nil {
		return Transcript{}, fmt.Errorf("write clip: %w", err)
	}

	cmdArgs := append([]string{}, r.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", file.Name())
	if r.modelPath != "" {
		cmdArgs = append(cmdArgs, "--model", r.modelPath)
	}
	if r.language != "" {
		cmdArgs = append(cmdArgs, "--language", r.language)
	}

	command := exec.CommandContext(ctx, r.cmd[0], cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Transcript{}, fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Transcript{}, fmt.Errorf("decode stt response: %w", err)
	}
	return Transcript{Text: strings.TrimSpace(resp.Text)}, nil
}
