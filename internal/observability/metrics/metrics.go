// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "room_transcription"

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsFailed  prometheus.Counter
	SessionDuration prometheus.Histogram

	// Transcript metrics
	TranscriptsInterim prometheus.Counter
	TranscriptsFinal   prometheus.Counter

	// Audio metrics
	FramesForwarded     prometheus.Counter
	AudioBytesForwarded prometheus.Counter

	// Distribution metrics
	PublishErrors  *prometheus.CounterVec
	HeartbeatsSent prometheus.Counter

	// Persistence metrics
	StoreAppends      prometheus.Counter
	StoreAppendErrors prometheus.Counter

	// Kafka mirror metrics
	MirrorPublishTotal   *prometheus.CounterVec
	MirrorPublishErrors  *prometheus.CounterVec
	MirrorPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of track transcription sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active track transcription sessions",
		}),
		SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of sessions that ended with a pipeline failure",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of track transcription sessions in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),

		TranscriptsInterim: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_interim_total",
			Help:      "Total number of interim transcripts broadcast",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcripts broadcast",
		}),

		FramesForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_forwarded_total",
			Help:      "Total audio frames forwarded to the speech engine",
		}),
		AudioBytesForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_forwarded_total",
			Help:      "Total audio bytes forwarded to the speech engine",
		}),

		PublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total number of failed room data publishes",
		}, []string{"message_type"}),
		HeartbeatsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_sent_total",
			Help:      "Total number of status heartbeats sent to the room",
		}),

		StoreAppends: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_appends_total",
			Help:      "Total number of transcript records appended",
		}),
		StoreAppendErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_append_errors_total",
			Help:      "Total number of failed transcript record appends",
		}),

		MirrorPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_publish_total",
			Help:      "Total number of transcripts mirrored to Kafka",
		}, []string{"topic"}),
		MirrorPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_publish_errors_total",
			Help:      "Total number of Kafka mirror publish errors",
		}, []string{"topic"}),
		MirrorPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mirror_publish_latency_seconds",
			Help:      "Kafka mirror publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionEnd updates session counters when a session terminates.
func (m *Metrics) RecordSessionEnd(start time.Time, failed bool) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(time.Since(start).Seconds())
	if failed {
		m.SessionsFailed.Inc()
	}
}

// RecordTranscript counts a broadcast transcript.
func (m *Metrics) RecordTranscript(isFinal bool) {
	if isFinal {
		m.TranscriptsFinal.Inc()
	} else {
		m.TranscriptsInterim.Inc()
	}
}

// RecordStoreAppend counts a transcript record append attempt.
func (m *Metrics) RecordStoreAppend(err error) {
	m.StoreAppends.Inc()
	if err != nil {
		m.StoreAppendErrors.Inc()
	}
}

// RecordMirrorPublish counts a Kafka mirror publish attempt.
func (m *Metrics) RecordMirrorPublish(topic string, err error, seconds float64) {
	m.MirrorPublishTotal.WithLabelValues(topic).Inc()
	m.MirrorPublishLatency.WithLabelValues(topic).Observe(seconds)
	if err != nil {
		m.MirrorPublishErrors.WithLabelValues(topic).Inc()
	}
}
