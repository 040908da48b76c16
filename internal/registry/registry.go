package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/echotrail-io/echotrail/internal/stt"
	"github.com/echotrail-io/echotrail/internal/tts"
)

// ErrUnknownBackend is returned when a key is not registered for the
// requested capability.
var ErrUnknownBackend = errors.New("unknown backend")

// SynthesizerFactory produces a synthesis backend instance.
type SynthesizerFactory func() (tts.Synthesizer, error)

// RecognizerFactory produces a recognition backend instance.
type RecognizerFactory func() (stt.Recognizer, error)

// Registry maps backend keys to factories, one table per capability.
// It is populated at startup and read-only afterwards; resolution never
// mutates it, so concurrent runs can share one instance without locks.
type Registry struct {
	synths map[string]SynthesizerFactory
	recogs map[string]RecognizerFactory
}

func New() *Registry {
	return &Registry{
		synths: make(map[string]SynthesizerFactory),
		recogs: make(map[string]RecognizerFactory),
	}
}

// RegisterSynthesizer adds a synthesis backend under key. Duplicate
// keys are a wiring bug and rejected.
func (r *Registry) RegisterSynthesizer(key string, factory SynthesizerFactory) error {
	if _, exists := r.synths[key]; exists {
		return fmt.Errorf("synthesis backend %q already registered", key)
	}
	r.synths[key] = memoizeSynth(factory)
	return nil
}

// RegisterRecognizer adds a recognition backend under key.
func (r *Registry) RegisterRecognizer(key string, factory RecognizerFactory) error {
	if _, exists := r.recogs[key]; exists {
		return fmt.Errorf("recognition backend %q already registered", key)
	}
	r.recogs[key] = memoizeRecog(factory)
	return nil
}

// ResolveSynthesizer looks up a synthesis backend by key.
func (r *Registry) ResolveSynthesizer(key string) (tts.Synthesizer, error) {
	factory, ok := r.synths[key]
	if !ok {
		return nil, fmt.Errorf("%w: synthesis %q", ErrUnknownBackend, key)
	}
	return factory()
}

// ResolveRecognizer looks up a recognition backend by key.
func (r *Registry) ResolveRecognizer(key string) (stt.Recognizer, error) {
	factory, ok := r.recogs[key]
	if !ok {
		return nil, fmt.Errorf("%w: recognition %q", ErrUnknownBackend, key)
	}
	return factory()
}

// SynthesizerKeys returns the registered synthesis keys, sorted.
func (r *Registry) SynthesizerKeys() []string {
	keys := make([]string, 0, len(r.synths))
	for k := range r.synths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RecognizerKeys returns the registered recognition keys, sorted.
func (r *Registry) RecognizerKeys() []string {
	keys := make([]string, 0, len(r.recogs))
	for k := range r.recogs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Backends instantiated once and shared: underlying resources (models,
// network sessions) are expensive, and resolving the same key twice
// must behave identically either way.

func memoizeSynth(factory SynthesizerFactory) SynthesizerFactory {
	var once sync.Once
	var instance tts.Synthesizer
	var err error
	return func() (tts.Synthesizer, error) {
		once.Do(func() { instance, err = factory() })
		return instance, err
	}
}

func memoizeRecog(factory RecognizerFactory) RecognizerFactory {
	var once sync.Once
	var instance stt.Recognizer
	var err error
	return func() (stt.Recognizer, error) {
		once.Do(func() { instance, err = factory() })
		return instance, err
	}
}
