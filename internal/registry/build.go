package registry

import (
	"fmt"
	"log/slog"

	"github.com/echotrail-io/echotrail/internal/config"
	"github.com/echotrail-io/echotrail/internal/stt"
	"github.com/echotrail-io/echotrail/internal/tts"
)

// FromConfig assembles the process-wide registry. Exec- and API-backed
// entries are only registered when their configuration is present, so
// /api/models reflects what this deployment can actually serve.
func FromConfig(cfg config.Config, cache *tts.ClipCache, log *slog.Logger) (*Registry, error) {
	r := New()

	wrap := func(key string, factory SynthesizerFactory) SynthesizerFactory {
		if cache == nil {
			return factory
		}
		return func() (tts.Synthesizer, error) {
			inner, err := factory()
			if err != nil {
				return nil, err
			}
			return cache.Wrap(key, inner), nil
		}
	}

	if err := r.RegisterSynthesizer("mock", wrap("mock", func() (tts.Synthesizer, error) {
		return tts.NewMockSynth(cfg.TTS.SampleRate), nil
	})); err != nil {
		return nil, err
	}
	if err := r.RegisterSynthesizer("edge", wrap("edge", func() (tts.Synthesizer, error) {
		return tts.NewEdgeSynth(cfg.TTS.EdgeVoice), nil
	})); err != nil {
		return nil, err
	}
	if cfg.TTS.Command != "" {
		if err := r.RegisterSynthesizer("piper", wrap("piper", func() (tts.Synthesizer, error) {
			return tts.NewExecSynth(cfg.TTS.Command, cfg.TTS.SampleRate)
		})); err != nil {
			return nil, err
		}
	}
	if cfg.OpenAI.APIKey != "" {
		if err := r.RegisterSynthesizer("openai", wrap("openai", func() (tts.Synthesizer, error) {
			return tts.NewOpenAISynth(cfg.OpenAI.APIKey, cfg.TTS.OpenAIModel, cfg.TTS.OpenAIVoice), nil
		})); err != nil {
			return nil, err
		}
	}

	if err := r.RegisterRecognizer("mock", func() (stt.Recognizer, error) {
		return stt.NewMockRecognizer(), nil
	}); err != nil {
		return nil, err
	}
	if cfg.STT.Command != "" {
		if err := r.RegisterRecognizer("whisper", func() (stt.Recognizer, error) {
			return stt.NewExecRecognizer(cfg.STT.Command, cfg.STT.ModelPath, cfg.STT.Language)
		}); err != nil {
			return nil, err
		}
	}
	if cfg.OpenAI.APIKey != "" {
		if err := r.RegisterRecognizer("openai", func() (stt.Recognizer, error) {
			return stt.NewOpenAIRecognizer(cfg.OpenAI.APIKey, cfg.STT.OpenAIModel), nil
		}); err != nil {
			return nil, err
		}
	}

	if _, err := r.synthFor(cfg.Game.DefaultSynthesis); err != nil {
		return nil, err
	}
	if _, err := r.recogFor(cfg.Game.DefaultRecognition); err != nil {
		return nil, err
	}

	log.Info("backend registry built",
		slog.Any("synthesis", r.SynthesizerKeys()),
		slog.Any("recognition", r.RecognizerKeys()))
	return r, nil
}

func (r *Registry) synthFor(key string) (SynthesizerFactory, error) {
	factory, ok := r.synths[key]
	if !ok {
		return nil, fmt.Errorf("default synthesis backend %q is not registered", key)
	}
	return factory, nil
}

func (r *Registry) recogFor(key string) (RecognizerFactory, error) {
	factory, ok := r.recogs[key]
	if !ok {
		return nil, fmt.Errorf("default recognition backend %q is not registered", key)
	}
	return factory, nil
}
