package agent

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"room-transcription-agent/internal/events"
	"room-transcription-agent/internal/models"
	"room-transcription-agent/internal/observability/logging"
	"room-transcription-agent/internal/registry"
)

// Heartbeat periodically reports the number of active sessions to the room.
// It runs independently of any session; a failed send is logged and does not
// stop subsequent ticks.
type Heartbeat struct {
	registry *registry.Registry
	sink     *events.Sink
	interval time.Duration
	log      zerolog.Logger
	clock    func() time.Time
}

// NewHeartbeat creates a Heartbeat with the given tick interval.
func NewHeartbeat(reg *registry.Registry, sink *events.Sink, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		registry: reg,
		sink:     sink,
		interval: interval,
		log:      logging.WithComponent("heartbeat"),
		clock:    time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Heartbeat) tick(ctx context.Context) {
	count := h.registry.Size()
	msg := models.NewHeartbeatMessage(count, h.clock())
	if err := h.sink.SendHeartbeat(ctx, msg); err != nil {
		h.log.Warn().Err(err).Msg("Failed to send status heartbeat")
		return
	}
	h.log.Debug().Int("processingTracks", count).Msg("Status heartbeat sent")
}
