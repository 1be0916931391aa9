package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"room-transcription-agent/internal/models"
	"room-transcription-agent/internal/observability/metrics"
)

// Mirror copies transcript messages to Kafka topics for downstream consumers,
// one topic for interim transcripts and one for finals. When disabled it runs
// in log-only mode and every publish is a no-op.
type Mirror struct {
	writerInterim *kafka.Writer
	writerFinal   *kafka.Writer
	principal     string
	topicInterim  string
	topicFinal    string
	enabled       bool
	metrics       *metrics.Metrics
}

// MirrorConfig holds Kafka mirror configuration.
type MirrorConfig struct {
	Brokers      []string
	TopicInterim string
	TopicFinal   string
	Principal    string
	Enabled      bool
}

// NewMirror creates a Kafka transcript mirror.
func NewMirror(cfg *MirrorConfig) *Mirror {
	m := metrics.DefaultMetrics

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka mirror disabled, using log-only mode")
		mirror := &Mirror{enabled: false, metrics: m}
		if cfg != nil {
			mirror.principal = cfg.Principal
			mirror.topicInterim = cfg.TopicInterim
			mirror.topicFinal = cfg.TopicFinal
		}
		return mirror
	}

	// Longer dial timeouts for DNS resolution in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicInterim", cfg.TopicInterim).
		Str("topicFinal", cfg.TopicFinal).
		Str("principal", cfg.Principal).
		Msg("Kafka mirror initialized")

	return &Mirror{
		writerInterim: newWriter(cfg.TopicInterim),
		writerFinal:   newWriter(cfg.TopicFinal),
		principal:     cfg.Principal,
		topicInterim:  cfg.TopicInterim,
		topicFinal:    cfg.TopicFinal,
		enabled:       true,
		metrics:       m,
	}
}

// MirrorTranscript writes a transcript message to the topic matching its
// finality, keyed by room and participant so per-speaker ordering holds.
func (m *Mirror) MirrorTranscript(ctx context.Context, roomName string, msg models.TranscriptMessage) error {
	writer, topic := m.writerInterim, m.topicInterim
	if msg.IsFinal {
		writer, topic = m.writerFinal, m.topicFinal
	}

	start := time.Now()

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal transcript for mirror")
		return err
	}

	key := roomName + "/" + msg.Participant

	log.Debug().
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Mirroring transcript")

	if !m.enabled || writer == nil {
		m.metrics.RecordMirrorPublish(topic, nil, time.Since(start).Seconds())
		return nil
	}

	kmsg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "messageType", Value: []byte(msg.Type)},
			{Key: "principal", Value: []byte(m.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, kmsg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		m.metrics.RecordMirrorPublish(topic, err, time.Since(start).Seconds())
		return err
	}

	m.metrics.RecordMirrorPublish(topic, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (m *Mirror) Close() error {
	var err error
	if m.writerInterim != nil {
		if e := m.writerInterim.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing interim writer")
			err = e
		}
	}
	if m.writerFinal != nil {
		if e := m.writerFinal.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing final writer")
			err = e
		}
	}
	return err
}
