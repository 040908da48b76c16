package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EventType discriminates progress events on the wire.
type EventType string

const (
	EventSynthesis   EventType = "tts"
	EventRecognition EventType = "stt"
	EventError       EventType = "error"
	EventDone        EventType = "done"
)

// Stage names the half of a chain step that was executing.
type Stage string

const (
	StageSynthesis   Stage = "tts"
	StageRecognition Stage = "stt"
)

// Event is one progress record produced by a chain run.
type Event interface {
	Kind() EventType
	// Terminal reports whether no further events follow this one.
	Terminal() bool
}

// SynthesisDone carries the text that was spoken and the rendered audio.
type SynthesisDone struct {
	ChildIndex int
	Text       string
	Audio      []byte
	MediaType  string
}

func (SynthesisDone) Kind() EventType { return EventSynthesis }
func (SynthesisDone) Terminal() bool  { return false }

// RecognitionDone carries the text heard back from the step's audio.
type RecognitionDone struct {
	ChildIndex int
	Text       string
}

func (RecognitionDone) Kind() EventType { return EventRecognition }
func (RecognitionDone) Terminal() bool  { return false }

// StepError reports a backend failure; it ends the run.
type StepError struct {
	ChildIndex int
	Stage      Stage
	Message    string
}

func (StepError) Kind() EventType { return EventError }
func (StepError) Terminal() bool  { return true }

// Finished carries the chain's final accumulated text; it ends the run.
type Finished struct {
	FinalText string
}

func (Finished) Kind() EventType { return EventDone }
func (Finished) Terminal() bool  { return true }

type synthesisWire struct {
	Type        EventType `json:"type"`
	ChildIndex  int       `json:"child_index"`
	Text        string    `json:"text"`
	AudioBase64 string    `json:"audio_base64"`
	MediaType   string    `json:"media_type,omitempty"`
}

type recognitionWire struct {
	Type       EventType `json:"type"`
	ChildIndex int       `json:"child_index"`
	Text       string    `json:"text"`
}

type errorWire struct {
	Type       EventType `json:"type"`
	Step       Stage     `json:"step"`
	ChildIndex int       `json:"child_index"`
	Message    string    `json:"message"`
}

type doneWire struct {
	Type      EventType `json:"type"`
	FinalText string    `json:"final_text"`
}

// Encode marshals an event into its self-describing JSON form. Audio
// payloads are base64-encoded so the result is safe on text transports.
func Encode(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case SynthesisDone:
		return json.Marshal(synthesisWire{
			Type:        EventSynthesis,
			ChildIndex:  e.ChildIndex,
			Text:        e.Text,
			AudioBase64: base64.StdEncoding.EncodeToString(e.Audio),
			MediaType:   e.MediaType,
		})
	case RecognitionDone:
		return json.Marshal(recognitionWire{Type: EventRecognition, ChildIndex: e.ChildIndex, Text: e.Text})
	case StepError:
		return json.Marshal(errorWire{Type: EventError, Step: e.Stage, ChildIndex: e.ChildIndex, Message: e.Message})
	case Finished:
		return json.Marshal(doneWire{Type: EventDone, FinalText: e.FinalText})
	default:
		return nil, fmt.Errorf("protocol: unknown event type %T", ev)
	}
}

// EncodeSSE frames an encoded event as a single server-sent-events message.
func EncodeSSE(ev Event) ([]byte, error) {
	data, err := Encode(ev)
	if err != nil {
		return nil, err
	}
	framed := make([]byte, 0, len(data)+8)
	framed = append(framed, "data: "...)
	framed = append(framed, data...)
	framed = append(framed, "\n\n"...)
	return framed, nil
}
