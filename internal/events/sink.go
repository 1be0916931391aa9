// Package events publishes transcript and status messages to the room's data
// channel and optionally mirrors transcripts to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"room-transcription-agent/internal/models"
	"room-transcription-agent/internal/observability/logging"
	"room-transcription-agent/internal/observability/metrics"
)

// DataPublisher is the outbound side of the room: broadcast a payload to all
// participants. Satisfied by room.Room.
type DataPublisher interface {
	PublishData(ctx context.Context, payload []byte, reliable bool) error
}

// Sink serializes messages and broadcasts them to the room. Delivery is
// fire-and-forget: a failed publish is an error for the caller to log, never
// retried.
type Sink struct {
	pub      DataPublisher
	mirror   *Mirror
	roomName string
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewSink creates a Sink for one room. mirror may be nil.
func NewSink(pub DataPublisher, mirror *Mirror, roomName string) *Sink {
	return &Sink{
		pub:      pub,
		mirror:   mirror,
		roomName: roomName,
		metrics:  metrics.DefaultMetrics,
		log:      logging.WithComponent("events.sink"),
	}
}

// SendTranscript broadcasts a transcript message and mirrors it to Kafka when
// a mirror is configured. Mirror failures are logged inside the mirror and do
// not fail the broadcast.
func (s *Sink) SendTranscript(ctx context.Context, msg models.TranscriptMessage) error {
	if s.mirror != nil {
		if err := s.mirror.MirrorTranscript(ctx, s.roomName, msg); err != nil {
			s.log.Warn().Err(err).Msg("Transcript mirror failed")
		}
	}
	if err := s.publish(ctx, models.MessageTypeTranscription, msg); err != nil {
		return err
	}
	s.metrics.RecordTranscript(msg.IsFinal)
	return nil
}

// SendHeartbeat broadcasts an agent status heartbeat.
func (s *Sink) SendHeartbeat(ctx context.Context, msg models.HeartbeatMessage) error {
	if err := s.publish(ctx, models.MessageTypeAgentStatus, msg); err != nil {
		return err
	}
	s.metrics.HeartbeatsSent.Inc()
	return nil
}

func (s *Sink) publish(ctx context.Context, messageType string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.metrics.PublishErrors.WithLabelValues(messageType).Inc()
		return fmt.Errorf("marshal %s message: %w", messageType, err)
	}
	if err := s.pub.PublishData(ctx, payload, true); err != nil {
		s.metrics.PublishErrors.WithLabelValues(messageType).Inc()
		return fmt.Errorf("publish %s message: %w", messageType, err)
	}
	return nil
}
