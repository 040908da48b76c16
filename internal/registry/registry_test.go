package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/echotrail-io/echotrail/internal/config"
	"github.com/echotrail-io/echotrail/internal/stt"
	"github.com/echotrail-io/echotrail/internal/tts"
)

type fakeSynth struct{ id int }

func (fakeSynth) Synthesize(context.Context, string) (tts.Clip, error) {
	return tts.Clip{Audio: []byte{1}, MediaType: "audio/wav"}, nil
}

func TestResolveUnknownBackend(t *testing.T) {
	r := New()
	if _, err := r.ResolveSynthesizer("nonexistent-model"); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
	if _, err := r.ResolveRecognizer("nonexistent-model"); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestResolveMemoizes(t *testing.T) {
	r := New()
	calls := 0
	err := r.RegisterSynthesizer("fake", func() (tts.Synthesizer, error) {
		calls++
		return fakeSynth{id: calls}, nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	first, err := r.ResolveSynthesizer("fake")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.ResolveSynthesizer("fake")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected factory to run once, ran %d times", calls)
	}
	if first != second {
		t.Fatal("expected the same instance from repeated resolution")
	}
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	r := New()
	reg := func() error {
		return r.RegisterRecognizer("dup", func() (stt.Recognizer, error) {
			return stt.NewMockRecognizer(), nil
		})
	}
	if err := reg(); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := reg(); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestFromConfigKeys(t *testing.T) {
	cfg := config.Default()
	cfg.STT.Command = "whisper-cli"
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := FromConfig(cfg, nil, log)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	synthKeys := r.SynthesizerKeys()
	if len(synthKeys) != 2 || synthKeys[0] != "edge" || synthKeys[1] != "mock" {
		t.Fatalf("unexpected synthesis keys: %v", synthKeys)
	}
	recogKeys := r.RecognizerKeys()
	if len(recogKeys) != 2 || recogKeys[0] != "mock" || recogKeys[1] != "whisper" {
		t.Fatalf("unexpected recognition keys: %v", recogKeys)
	}
}

func TestFromConfigRejectsMissingDefault(t *testing.T) {
	cfg := config.Default()
	cfg.Game.DefaultRecognition = "whisper" // not registered without a command
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := FromConfig(cfg, nil, log); err == nil {
		t.Fatal("expected error for unregistered default backend")
	}
}
