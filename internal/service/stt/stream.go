// Package stt defines the interface for streaming Speech-to-Text engines.
package stt

import "context"

// EventType classifies a speech event emitted by an engine.
type EventType int

const (
	// EventInterim is a provisional transcript, subject to revision.
	EventInterim EventType = iota + 1
	// EventFinal is the engine's confirmed result for a completed utterance.
	EventFinal
	// EventEndOfSpeech marks that the speaker stopped talking. Informational.
	EventEndOfSpeech
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventInterim:
		return "INTERIM"
	case EventFinal:
		return "FINAL"
	case EventEndOfSpeech:
		return "END_OF_SPEECH"
	default:
		return "UNKNOWN"
	}
}

// Alternative is one ranked transcription hypothesis. Confidence is nil when
// the engine does not score the hypothesis.
type Alternative struct {
	Text       string
	Confidence *float64
}

// Event is one typed speech event. Alternatives are ranked best-first and may
// be empty for events that carry no text.
type Event struct {
	Type         EventType
	Alternatives []Alternative
}

// Text returns the top-ranked alternative's text, or "" if there is none.
func (e Event) Text() string {
	if len(e.Alternatives) == 0 {
		return ""
	}
	return e.Alternatives[0].Text
}

// Confidence returns the top-ranked alternative's confidence, or nil.
func (e Event) Confidence() *float64 {
	if len(e.Alternatives) == 0 {
		return nil
	}
	return e.Alternatives[0].Confidence
}

// Stream is one engine conversation. The caller pushes raw PCM in and drains
// typed events out; the two directions run concurrently.
type Stream interface {
	// PushFrame forwards one frame of raw audio. May block on backpressure.
	PushFrame(ctx context.Context, pcm []byte) error

	// EndInput signals that no more audio will be pushed. The engine flushes
	// remaining events and then closes the event channel.
	EndInput() error

	// Events delivers the engine's speech events in order. The channel is
	// closed once the engine has flushed everything after EndInput, or on a
	// stream failure.
	Events() <-chan Event
}

// Engine opens engine conversations, one per transcribed track.
type Engine interface {
	NewStream(ctx context.Context) (Stream, error)
}
