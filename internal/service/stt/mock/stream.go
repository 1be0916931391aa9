// Package mock provides a simulated Speech-to-Text engine for development and
// tests without cloud credentials. It emits progressive interim transcripts,
// exactly one final transcript per conversation, and an end-of-speech marker.
package mock

import (
	"context"
	"sync"

	"room-transcription-agent/internal/service/stt"
)

// SimulatedUtterance scripts one conversation's transcripts.
type SimulatedUtterance struct {
	Interims   []string // Progressive interim transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for the final
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Interims:   []string{"hel", "hello", "hello every"},
		Final:      "hello everyone",
		Confidence: 0.95,
	},
	{
		Interims:   []string{"can you", "can you hear", "can you hear me"},
		Final:      "can you hear me okay",
		Confidence: 0.92,
	},
	{
		Interims:   []string{"let's", "let's get", "let's get started"},
		Final:      "let's get started with the agenda",
		Confidence: 0.9,
	},
	{
		Interims:   []string{"I'll", "I'll share", "I'll share my"},
		Final:      "I'll share my screen in a second",
		Confidence: 0.88,
	},
	{
		Interims:   []string{"thanks"},
		Final:      "thanks everyone, talk soon",
		Confidence: 0.97,
	},
}

// Engine implements stt.Engine with scripted responses. Each NewStream cycles
// to the next scripted utterance.
type Engine struct {
	mu         sync.Mutex
	utterances []SimulatedUtterance
	next       int
}

// New creates a mock engine using DefaultUtterances.
func New() *Engine {
	return NewWithUtterances(DefaultUtterances)
}

// NewWithUtterances creates a mock engine with a custom script.
func NewWithUtterances(utterances []SimulatedUtterance) *Engine {
	return &Engine{utterances: utterances}
}

// NewStream opens a simulated conversation.
func (e *Engine) NewStream(ctx context.Context) (stt.Stream, error) {
	e.mu.Lock()
	utt := e.utterances[e.next%len(e.utterances)]
	e.next++
	e.mu.Unlock()

	return &stream{
		utterance: utt,
		events:    make(chan stt.Event, 16),
	}, nil
}

// stream simulates one engine conversation. Each pushed frame advances the
// script: first the interims, one per frame, then the final plus the
// end-of-speech marker.
type stream struct {
	utterance SimulatedUtterance

	mu        sync.Mutex
	interimAt int
	finalSent bool
	ended     bool

	events chan stt.Event
}

func (s *stream) PushFrame(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return nil
	}

	if s.interimAt < len(s.utterance.Interims) {
		text := s.utterance.Interims[s.interimAt]
		s.interimAt++
		s.emit(ctx, stt.Event{
			Type:         stt.EventInterim,
			Alternatives: []stt.Alternative{{Text: text}},
		})
		return nil
	}

	if !s.finalSent {
		s.finalSent = true
		s.emitFinal(ctx)
	}
	return nil
}

// EndInput flushes the final transcript if the audio ended before the script
// completed, then closes the event channel.
func (s *stream) EndInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return nil
	}
	s.ended = true

	if !s.finalSent {
		s.finalSent = true
		s.emitFinal(context.Background())
	}
	close(s.events)
	return nil
}

func (s *stream) Events() <-chan stt.Event {
	return s.events
}

func (s *stream) emitFinal(ctx context.Context) {
	conf := s.utterance.Confidence
	s.emit(ctx, stt.Event{
		Type:         stt.EventFinal,
		Alternatives: []stt.Alternative{{Text: s.utterance.Final, Confidence: &conf}},
	})
	s.emit(ctx, stt.Event{Type: stt.EventEndOfSpeech})
}

func (s *stream) emit(ctx context.Context, ev stt.Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
