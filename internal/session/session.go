// Package session runs the per-track transcription pipeline: one speech
// engine conversation fed by the track's audio frames, drained concurrently
// into transcript messages and durable records.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"room-transcription-agent/internal/events"
	"room-transcription-agent/internal/models"
	"room-transcription-agent/internal/observability/logging"
	"room-transcription-agent/internal/observability/metrics"
	"room-transcription-agent/internal/registry"
	"room-transcription-agent/internal/room"
	"room-transcription-agent/internal/service/stt"
	"room-transcription-agent/internal/transcripts"
)

// Status is the lifecycle state of a session.
type Status int

const (
	// StatusActive - both pipeline flows are running.
	StatusActive Status = iota
	// StatusStopping - the audio source ended; remaining engine events are
	// still draining.
	StatusStopping
	// StatusTerminated - both flows finished and the track id was released.
	StatusTerminated
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusStopping:
		return "STOPPING"
	case StatusTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Config wires one session's collaborators.
type Config struct {
	ID                  registry.TrackID
	ParticipantIdentity string
	RoomName            string
	Track               room.Track
	Engine              stt.Engine
	Sink                *events.Sink
	Recorder            transcripts.Recorder
	Registry            *registry.Registry
}

// Session owns the transcription lifecycle of exactly one audio track.
type Session struct {
	id          registry.TrackID
	sessionID   string
	participant string
	roomName    string
	track       room.Track
	engine      stt.Engine
	sink        *events.Sink
	recorder    transcripts.Recorder
	reg         *registry.Registry
	metrics     *metrics.Metrics
	log         zerolog.Logger
	clock       func() time.Time

	mu     sync.Mutex
	status Status
}

// New creates a Session. Run starts it.
func New(cfg Config) *Session {
	sessionID := uuid.NewString()
	return &Session{
		id:          cfg.ID,
		sessionID:   sessionID,
		participant: cfg.ParticipantIdentity,
		roomName:    cfg.RoomName,
		track:       cfg.Track,
		engine:      cfg.Engine,
		sink:        cfg.Sink,
		recorder:    cfg.Recorder,
		reg:         cfg.Registry,
		metrics:     metrics.DefaultMetrics,
		log:         logging.WithSession(cfg.RoomName, cfg.ParticipantIdentity, cfg.ID.String(), sessionID),
		clock:       time.Now,
	}
}

// Status returns the session's current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Run executes the pipeline until both flows complete, then releases the
// track id. Failures in either flow are logged here and never propagate; the
// release happens on every path.
func (s *Session) Run(ctx context.Context) {
	start := s.clock()
	failed := false

	// The single guaranteed cleanup path.
	defer s.reg.Release(s.id)
	defer func() {
		s.setStatus(StatusTerminated)
		s.metrics.RecordSessionEnd(start, failed)
		s.log.Info().Dur("duration", s.clock().Sub(start)).Msg("Transcription session stopped")
	}()

	s.metrics.SessionsActive.Inc()
	s.log.Info().Msg("Transcription session started")

	stream, err := s.engine.NewStream(ctx)
	if err != nil {
		failed = true
		s.log.Error().Err(err).Msg("Failed to open speech engine stream")
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := s.forwardFrames(ctx, stream); err != nil {
			failed = true
			s.log.Error().Err(err).Msg("Frame forwarding failed")
		}
	}()

	go func() {
		defer wg.Done()
		s.drainEvents(ctx, stream)
	}()

	// Joined, not raced: all audio is forwarded before the engine input
	// closes, and the event flow ends once the engine has flushed.
	wg.Wait()
}

// forwardFrames pushes every track frame into the engine and signals
// end-of-input when the source ends. EndInput runs even after a push failure
// so the event flow can finish.
func (s *Session) forwardFrames(ctx context.Context, stream stt.Stream) error {
	defer func() {
		s.setStatus(StatusStopping)
		if err := stream.EndInput(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close engine input")
		}
	}()

	for {
		select {
		case frame, ok := <-s.track.Frames():
			if !ok {
				return nil
			}
			if err := stream.PushFrame(ctx, frame.Data); err != nil {
				return err
			}
			s.metrics.FramesForwarded.Inc()
			s.metrics.AudioBytesForwarded.Add(float64(len(frame.Data)))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drainEvents consumes the engine's event stream until it closes.
func (s *Session) drainEvents(ctx context.Context, stream stt.Stream) {
	for ev := range stream.Events() {
		s.handleEvent(ctx, ev)
	}
}

func (s *Session) handleEvent(ctx context.Context, ev stt.Event) {
	switch ev.Type {
	case stt.EventInterim:
		text := ev.Text()
		if strings.TrimSpace(text) == "" {
			return
		}
		msg := models.NewTranscriptMessage(text, false, s.participant, ev.Confidence(), s.clock())
		if err := s.sink.SendTranscript(ctx, msg); err != nil {
			s.log.Warn().Err(err).Msg("Failed to send interim transcript")
		}

	case stt.EventFinal:
		text := ev.Text()
		if strings.TrimSpace(text) == "" {
			return
		}
		now := s.clock()
		msg := models.NewTranscriptMessage(text, true, s.participant, ev.Confidence(), now)
		if err := s.sink.SendTranscript(ctx, msg); err != nil {
			s.log.Warn().Err(err).Msg("Failed to send final transcript")
		}
		rec := models.TranscriptRecord{
			Timestamp:   now.Format(time.RFC3339),
			Participant: s.participant,
			Text:        text,
			Room:        s.roomName,
		}
		if err := s.recorder.Append(ctx, rec); err != nil {
			s.log.Error().Err(err).Msg("Failed to persist final transcript")
		}
		s.log.Info().Str("text", text).Msg("Final transcript")

	case stt.EventEndOfSpeech:
		s.log.Debug().Msg("End of speech detected")
	}
}
