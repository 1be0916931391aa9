// Package agent discovers audio tracks in a room and dispatches one
// transcription session per track.
package agent

import (
	"context"

	"github.com/rs/zerolog"

	"room-transcription-agent/internal/events"
	"room-transcription-agent/internal/observability/logging"
	"room-transcription-agent/internal/observability/metrics"
	"room-transcription-agent/internal/registry"
	"room-transcription-agent/internal/room"
	"room-transcription-agent/internal/service/stt"
	"room-transcription-agent/internal/session"
	"room-transcription-agent/internal/transcripts"
)

// chatTopic is the data topic carrying room chat messages.
const chatTopic = "lk.chat"

// Config wires the agent's collaborators.
type Config struct {
	Room     room.Room
	Engine   stt.Engine
	Sink     *events.Sink
	Recorder transcripts.Recorder
	Registry *registry.Registry
}

// Agent owns track discovery and session dispatch for one room.
type Agent struct {
	room     room.Room
	engine   stt.Engine
	sink     *events.Sink
	recorder transcripts.Recorder
	registry *registry.Registry
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// New creates an Agent.
func New(cfg Config) *Agent {
	return &Agent{
		room:     cfg.Room,
		engine:   cfg.Engine,
		sink:     cfg.Sink,
		recorder: cfg.Recorder,
		registry: cfg.Registry,
		metrics:  metrics.DefaultMetrics,
		log:      logging.WithRoom(cfg.Room.Name()),
	}
}

// Run scans the room's current participants, then consumes room events until
// the connection ends or ctx is cancelled. Each notification dispatches in
// its own goroutine; sessions outlive the notification that started them.
func (a *Agent) Run(ctx context.Context) error {
	participants := a.room.RemoteParticipants()
	a.log.Info().Int("participants", len(participants)).Msg("Connected to room")

	for _, p := range participants {
		a.startParticipantSessions(ctx, p)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-a.room.Events():
			if !ok {
				a.log.Info().Msg("Room event stream closed")
				return nil
			}
			a.dispatch(ctx, ev)
		}
	}
}

func (a *Agent) dispatch(ctx context.Context, ev room.Event) {
	switch ev.Kind {
	case room.EventParticipantConnected:
		a.log.Info().Str("participant", ev.Participant.Identity()).Msg("Participant joined")
		go a.startParticipantSessions(ctx, ev.Participant)

	case room.EventTrackSubscribed:
		go a.startTrackSession(ctx, ev.Participant, ev.Track)

	case room.EventTrackUnsubscribed:
		if ev.Track == nil || ev.Track.Kind() != room.KindAudio {
			return
		}
		// Proactive release: the session's own teardown would get here
		// eventually, but this bounds how long a dead id blocks
		// re-acquisition.
		id := registry.TrackID{ParticipantSID: ev.Participant.SID(), TrackSID: ev.Track.SID()}
		a.registry.Release(id)
		a.log.Info().
			Str("participant", ev.Participant.Identity()).
			Str("trackId", id.String()).
			Msg("Audio track unsubscribed")

	case room.EventDataReceived:
		if ev.Topic == chatTopic {
			a.log.Info().Str("message", string(ev.Payload)).Msg("Chat message received")
		}
	}
}

func (a *Agent) startParticipantSessions(ctx context.Context, p room.Participant) {
	for _, t := range p.AudioTracks() {
		a.startTrackSession(ctx, p, t)
	}
}

// startTrackSession acquires the track id and, on success, spawns a session.
// An id already held means another session owns the track; that is
// informational, not an error.
func (a *Agent) startTrackSession(ctx context.Context, p room.Participant, t room.Track) {
	if t == nil || t.Kind() != room.KindAudio {
		return
	}

	id := registry.TrackID{ParticipantSID: p.SID(), TrackSID: t.SID()}
	if !a.registry.TryAcquire(id) {
		a.log.Debug().Str("trackId", id.String()).Msg("Track already has an active session")
		return
	}

	a.metrics.SessionsStarted.Inc()
	a.log.Info().
		Str("participant", p.Identity()).
		Str("trackId", id.String()).
		Msg("Starting transcription session")

	s := session.New(session.Config{
		ID:                  id,
		ParticipantIdentity: p.Identity(),
		RoomName:            a.room.Name(),
		Track:               t,
		Engine:              a.engine,
		Sink:                a.sink,
		Recorder:            a.recorder,
		Registry:            a.registry,
	})
	go s.Run(ctx)
}
