package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/echotrail-io/echotrail/internal/protocol"
	"github.com/echotrail-io/echotrail/internal/stt"
	"github.com/echotrail-io/echotrail/internal/tts"
)

type scriptedSynth struct {
	mu      sync.Mutex
	calls   int
	failAt  int // call index to fail on, -1 for never
	payload []byte
}

func newScriptedSynth(failAt int) *scriptedSynth {
	return &scriptedSynth{failAt: failAt, payload: []byte("fixed audio bytes")}
}

func (s *scriptedSynth) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.calls
	s.calls++
	if call == s.failAt {
		return tts.Clip{}, errors.New("model exploded")
	}
	return tts.Clip{Audio: s.payload, MediaType: "audio/wav"}, nil
}

func (s *scriptedSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type scriptedRecog struct {
	mu     sync.Mutex
	calls  int
	failAt int
	// texts returned per call; when exhausted, echoes the last entry
	texts []string
}

func echoRecog(text string) *scriptedRecog {
	return &scriptedRecog{failAt: -1, texts: []string{text}}
}

func (r *scriptedRecog) Transcribe(ctx context.Context, audio []byte, mediaType string) (stt.Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := r.calls
	r.calls++
	if call == r.failAt {
		return stt.Transcript{}, errors.New("decode failed")
	}
	idx := call
	if idx >= len(r.texts) {
		idx = len(r.texts) - 1
	}
	return stt.Transcript{Text: r.texts[idx]}, nil
}

func (r *scriptedRecog) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func testRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func collect(t *testing.T, run *Run) []protocol.Event {
	t.Helper()
	var events []protocol.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-run.Events:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out draining run after %d events", len(events))
		}
	}
}

func TestSuccessfulRunEventSequence(t *testing.T) {
	synth := newScriptedSynth(-1)
	recog := echoRecog("hello world")

	run, err := testRunner(t).Run(context.Background(), 2, synth, recog, "hello world")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	events := collect(t, run)

	if len(events) != 5 {
		t.Fatalf("expected 2N+1 = 5 events, got %d: %v", len(events), events)
	}
	for step := 0; step < 2; step++ {
		synthEv, ok := events[2*step].(protocol.SynthesisDone)
		if !ok {
			t.Fatalf("event %d: expected SynthesisDone, got %T", 2*step, events[2*step])
		}
		if synthEv.ChildIndex != step || synthEv.Text != "hello world" || len(synthEv.Audio) == 0 {
			t.Fatalf("step %d synthesis event malformed: %+v", step, synthEv)
		}
		recogEv, ok := events[2*step+1].(protocol.RecognitionDone)
		if !ok {
			t.Fatalf("event %d: expected RecognitionDone, got %T", 2*step+1, events[2*step+1])
		}
		if recogEv.ChildIndex != step || recogEv.Text != "hello world" {
			t.Fatalf("step %d recognition event malformed: %+v", step, recogEv)
		}
	}
	done, ok := events[4].(protocol.Finished)
	if !ok {
		t.Fatalf("expected Finished terminal event, got %T", events[4])
	}
	if done.FinalText != "hello world" {
		t.Fatalf("final text = %q, want %q", done.FinalText, "hello world")
	}
}

func TestFinalTextTracksDrift(t *testing.T) {
	synth := newScriptedSynth(-1)
	recog := &scriptedRecog{failAt: -1, texts: []string{"hello word", "hollow word", "hollow world"}}

	run, err := testRunner(t).Run(context.Background(), 3, synth, recog, "hello world")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	events := collect(t, run)

	if len(events) != 7 {
		t.Fatalf("expected 7 events, got %d", len(events))
	}
	// each synthesis speaks the previous recognition result
	second := events[2].(protocol.SynthesisDone)
	if second.Text != "hello word" {
		t.Fatalf("step 1 spoke %q, want the drifted text", second.Text)
	}
	done := events[6].(protocol.Finished)
	last := events[5].(protocol.RecognitionDone)
	if done.FinalText != last.Text || done.FinalText != "hollow world" {
		t.Fatalf("final text %q does not match last recognition %q", done.FinalText, last.Text)
	}
}

func TestSynthesisFailureTruncatesRun(t *testing.T) {
	synth := newScriptedSynth(1) // fail on step 1
	recog := echoRecog("text")

	run, err := testRunner(t).Run(context.Background(), 3, synth, recog, "text")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	events := collect(t, run)

	// full pair for step 0, then the error; nothing for the failed step
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(events), events)
	}
	stepErr, ok := events[2].(protocol.StepError)
	if !ok {
		t.Fatalf("expected terminal StepError, got %T", events[2])
	}
	if stepErr.ChildIndex != 1 || stepErr.Stage != protocol.StageSynthesis {
		t.Fatalf("unexpected error attribution: %+v", stepErr)
	}
	if stepErr.Message == "" {
		t.Fatal("error event must carry the backend's message")
	}
	if recog.callCount() != 1 {
		t.Fatalf("recognition must not run for the failed step, got %d calls", recog.callCount())
	}
}

func TestRecognitionFailureTruncatesRun(t *testing.T) {
	synth := newScriptedSynth(-1)
	recog := &scriptedRecog{failAt: 1, texts: []string{"step zero text"}}

	run, err := testRunner(t).Run(context.Background(), 3, synth, recog, "initial")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	events := collect(t, run)

	// full pair for step 0, synthesis for step 1, then the error
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %v", len(events), events)
	}
	if _, ok := events[2].(protocol.SynthesisDone); !ok {
		t.Fatalf("expected step 1 synthesis before the error, got %T", events[2])
	}
	stepErr, ok := events[3].(protocol.StepError)
	if !ok {
		t.Fatalf("expected terminal StepError, got %T", events[3])
	}
	if stepErr.ChildIndex != 1 || stepErr.Stage != protocol.StageRecognition {
		t.Fatalf("unexpected error attribution: %+v", stepErr)
	}
	if synth.callCount() != 2 {
		t.Fatalf("no step-2 synthesis may run after the error, got %d calls", synth.callCount())
	}
}

func TestEmptyInitialTextRejected(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := testRunner(t).Run(context.Background(), 2, newScriptedSynth(-1), echoRecog("x"), input)
		if !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("input %q: expected ErrEmptyMessage, got %v", input, err)
		}
	}
}

func TestNonPositiveParticipantsRejected(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := testRunner(t).Run(context.Background(), n, newScriptedSynth(-1), echoRecog("x"), "hello")
		if !errors.Is(err, ErrInvalidParticipants) {
			t.Fatalf("n=%d: expected ErrInvalidParticipants, got %v", n, err)
		}
	}
}

func TestEmptyTranscriptPropagates(t *testing.T) {
	synth := newScriptedSynth(-1)
	recog := &scriptedRecog{failAt: -1, texts: []string{""}}

	run, err := testRunner(t).Run(context.Background(), 2, synth, recog, "fading message")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	events := collect(t, run)

	if len(events) != 5 {
		t.Fatalf("expected a full run despite silence, got %d events", len(events))
	}
	secondSynth := events[2].(protocol.SynthesisDone)
	if secondSynth.Text != "" {
		t.Fatalf("step 1 should speak the empty transcript, spoke %q", secondSynth.Text)
	}
	if done := events[4].(protocol.Finished); done.FinalText != "" {
		t.Fatalf("expected empty final text, got %q", done.FinalText)
	}
}

func TestCancellationStopsBackendCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	synth := newScriptedSynth(-1)
	recog := echoRecog("text")

	run, err := testRunner(t).Run(ctx, 10, synth, recog, "text")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// take the first event, then walk away
	select {
	case <-run.Events:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first event")
	}
	cancel()

	// channel must close without requiring further consumption
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-run.Events:
			if !ok {
				if calls := synth.callCount(); calls > 2 {
					t.Fatalf("synthesis kept running after cancellation: %d calls", calls)
				}
				return
			}
		case <-deadline:
			t.Fatal("events channel never closed after cancellation")
		}
	}
}

func TestTerminalEventIsAlwaysLast(t *testing.T) {
	cases := []struct {
		name  string
		synth *scriptedSynth
		recog *scriptedRecog
	}{
		{"success", newScriptedSynth(-1), echoRecog("msg")},
		{"synthesis failure", newScriptedSynth(0), echoRecog("msg")},
		{"recognition failure", newScriptedSynth(-1), &scriptedRecog{failAt: 0, texts: []string{"msg"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			run, err := testRunner(t).Run(context.Background(), 2, tc.synth, tc.recog, "msg")
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			events := collect(t, run)
			if len(events) == 0 {
				t.Fatal("expected at least the terminal event")
			}
			for i, ev := range events {
				isLast := i == len(events)-1
				if ev.Terminal() != isLast {
					t.Fatalf("event %d (%T): terminal=%v at position %d of %d", i, ev, ev.Terminal(), i, len(events))
				}
			}
		})
	}
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	runner := testRunner(t)
	const n = 4

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := fmt.Sprintf("message %d", i)
			run, err := runner.Run(context.Background(), 2, newScriptedSynth(-1), echoRecog(msg), msg)
			if err != nil {
				t.Errorf("run %d: %v", i, err)
				return
			}
			var events []protocol.Event
			timeout := time.After(5 * time.Second)
		drain:
			for {
				select {
				case ev, ok := <-run.Events:
					if !ok {
						break drain
					}
					events = append(events, ev)
				case <-timeout:
					t.Errorf("run %d: timed out after %d events", i, len(events))
					return
				}
			}
			if len(events) != 5 {
				t.Errorf("run %d: expected 5 events, got %d", i, len(events))
				return
			}
			if done := events[4].(protocol.Finished); done.FinalText != msg {
				t.Errorf("run %d: final text %q leaked from another run", i, done.FinalText)
			}
		}(i)
	}
	wg.Wait()
}
