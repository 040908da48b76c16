package chain

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/echotrail-io/echotrail/internal/protocol"
	"github.com/echotrail-io/echotrail/internal/stt"
	"github.com/echotrail-io/echotrail/internal/tts"
)

// Validation failures reported before any event is produced. They are
// request-shape problems and never appear inside a stream.
var (
	ErrEmptyMessage        = errors.New("initial message is empty")
	ErrInvalidParticipants = errors.New("participant count must be positive")
)

// Runner drives telephone-game chains: for each participant it renders
// the current text as speech and transcribes the result back, streaming
// one event per completed half-step. A Runner is stateless across runs
// and safe for concurrent use.
type Runner struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	stepTimeout time.Duration

	runsTotal  metric.Int64Counter
	stepsTotal metric.Int64Counter
}

// Run is a handle on one executing chain.
type Run struct {
	ID string
	// Events delivers progress records in production order. The channel
	// is unbuffered: the producer does not start the next backend call
	// until the consumer has taken the previous event. It is closed
	// after the terminal event.
	Events <-chan protocol.Event
}

// NewRunner builds a runner. stepTimeout bounds each individual backend
// call; zero disables the bound.
func NewRunner(stepTimeout time.Duration, logger *slog.Logger) *Runner {
	r := &Runner{
		logger:      logger.With(slog.String("component", "chain-runner")),
		tracer:      otel.Tracer("github.com/echotrail-io/echotrail/internal/chain"),
		stepTimeout: stepTimeout,
	}
	if err := r.initMetrics(); err != nil {
		r.logger.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return r
}

func (r *Runner) initMetrics() error {
	meter := otel.Meter("github.com/echotrail-io/echotrail/internal/chain")
	runs, err := meter.Int64Counter("echotrail.chain.runs",
		metric.WithDescription("Chain runs by outcome"))
	if err != nil {
		return err
	}
	steps, err := meter.Int64Counter("echotrail.chain.steps",
		metric.WithDescription("Completed chain steps"))
	if err != nil {
		return err
	}
	r.runsTotal = runs
	r.stepsTotal = steps
	return nil
}

// Run validates the request and starts the chain. Validation errors are
// returned synchronously with no events produced. Once a run starts it
// always ends with exactly one terminal event unless the context is
// cancelled, in which case the channel closes without one.
func (r *Runner) Run(ctx context.Context, participants int, synth tts.Synthesizer, recog stt.Recognizer, initialText string) (*Run, error) {
	text := strings.TrimSpace(initialText)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if participants <= 0 {
		return nil, ErrInvalidParticipants
	}

	runID := uuid.NewString()
	events := make(chan protocol.Event)
	go r.produce(ctx, runID, participants, synth, recog, text, events)

	return &Run{ID: runID, Events: events}, nil
}

func (r *Runner) produce(ctx context.Context, runID string, participants int, synth tts.Synthesizer, recog stt.Recognizer, text string, events chan<- protocol.Event) {
	defer close(events)

	log := r.logger.With(slog.String("run_id", runID))
	ctx, span := r.tracer.Start(ctx, "chain.run",
		trace.WithAttributes(attribute.Int("chain.participants", participants)))
	defer span.End()

	log.Info("chain run started", slog.Int("participants", participants))
	start := time.Now()

	current := text
	for step := 0; step < participants; step++ {
		clip, err := r.synthesize(ctx, synth, current)
		if err != nil {
			if ctx.Err() != nil {
				r.finish(log, span, runID, "cancelled", start)
				return
			}
			r.emit(ctx, events, protocol.StepError{ChildIndex: step, Stage: protocol.StageSynthesis, Message: err.Error()})
			log.Warn("synthesis failed",
				slog.Int("step", step), slog.String("error", err.Error()))
			r.finish(log, span, runID, "failed", start)
			return
		}
		if !r.emit(ctx, events, protocol.SynthesisDone{ChildIndex: step, Text: current, Audio: clip.Audio, MediaType: clip.MediaType}) {
			r.finish(log, span, runID, "cancelled", start)
			return
		}

		transcript, err := r.recognize(ctx, recog, clip)
		if err != nil {
			if ctx.Err() != nil {
				r.finish(log, span, runID, "cancelled", start)
				return
			}
			r.emit(ctx, events, protocol.StepError{ChildIndex: step, Stage: protocol.StageRecognition, Message: err.Error()})
			log.Warn("recognition failed",
				slog.Int("step", step), slog.String("error", err.Error()))
			r.finish(log, span, runID, "failed", start)
			return
		}

		// An empty transcript is not a failure: drifting to silence is
		// an observable outcome of the game, and the next synthesis
		// attempt will report it as such.
		current = transcript.Text
		if !r.emit(ctx, events, protocol.RecognitionDone{ChildIndex: step, Text: current}) {
			r.finish(log, span, runID, "cancelled", start)
			return
		}

		if r.stepsTotal != nil {
			r.stepsTotal.Add(ctx, 1)
		}
	}

	if !r.emit(ctx, events, protocol.Finished{FinalText: current}) {
		r.finish(log, span, runID, "cancelled", start)
		return
	}
	log.Info("chain run completed",
		slog.Int("participants", participants),
		slog.String("final_text", current))
	r.finish(log, span, runID, "completed", start)
}

// emit hands one event to the consumer, or reports cancellation.
func (r *Runner) emit(ctx context.Context, events chan<- protocol.Event, ev protocol.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runner) synthesize(ctx context.Context, synth tts.Synthesizer, text string) (tts.Clip, error) {
	if err := ctx.Err(); err != nil {
		return tts.Clip{}, err
	}
	ctx, cancel := r.stepContext(ctx)
	defer cancel()

	_, span := r.tracer.Start(ctx, "chain.synthesize")
	defer span.End()

	clip, err := synth.Synthesize(ctx, text)
	if err != nil {
		return tts.Clip{}, err
	}
	if len(clip.Audio) == 0 {
		return tts.Clip{}, errors.New("synthesizer returned empty audio")
	}
	return clip, nil
}

func (r *Runner) recognize(ctx context.Context, recog stt.Recognizer, clip tts.Clip) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	ctx, cancel := r.stepContext(ctx)
	defer cancel()

	_, span := r.tracer.Start(ctx, "chain.recognize")
	defer span.End()

	return recog.Transcribe(ctx, clip.Audio, clip.MediaType)
}

func (r *Runner) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.stepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.stepTimeout)
}

func (r *Runner) finish(log *slog.Logger, span trace.Span, runID, outcome string, start time.Time) {
	span.SetAttributes(attribute.String("chain.outcome", outcome))
	if r.runsTotal != nil {
		r.runsTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if outcome == "cancelled" {
		log.Info("chain run cancelled", slog.Duration("elapsed", time.Since(start)))
	}
}
