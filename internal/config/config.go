// Package config loads agent configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full agent configuration.
type Config struct {
	Service       ServiceConfig
	Room          RoomConfig
	STT           STTConfig
	Transcripts   TranscriptsConfig
	Kafka         KafkaConfig
	Heartbeat     HeartbeatConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the agent process.
type ServiceConfig struct {
	Name     string
	HTTPAddr string // observability server bind address
}

// RoomConfig locates the room bridge.
type RoomConfig struct {
	URL   string
	Token string
}

// STTConfig selects and parameterizes the speech engine.
type STTConfig struct {
	Provider       string // mock, google, deepgram
	Language       string
	SampleRateHz   int
	Model          string
	Punctuate      bool
	InterimResults bool
	DeepgramAPIKey string
}

// TranscriptsConfig controls persistence.
type TranscriptsConfig struct {
	Dir            string
	ArchiveEnabled bool
	ArchivePath    string
}

// KafkaConfig controls the optional transcript mirror.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicInterim string
	TopicFinal   string
	Principal    string
}

// HeartbeatConfig controls the status heartbeat.
type HeartbeatConfig struct {
	Interval time.Duration
}

// ObservabilityConfig controls logging.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; invalid values fall back to
// defaults.
func Load() *Config {
	_ = godotenv.Load()

	principal := getEnv("SERVICE_NAME", "room-transcription-agent")

	return &Config{
		Service: ServiceConfig{
			Name:     principal,
			HTTPAddr: ":" + getEnv("PORT", "8080"),
		},
		Room: RoomConfig{
			URL:   getEnv("ROOM_WS_URL", "ws://localhost:7880"),
			Token: getEnv("ROOM_TOKEN", ""),
		},
		STT: STTConfig{
			Provider:       getEnv("STT_PROVIDER", "mock"),
			Language:       getEnv("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   getInt("STT_SAMPLE_RATE_HZ", 16000),
			Model:          getEnv("STT_MODEL", "nova-2"),
			Punctuate:      getBool("STT_PUNCTUATE", true),
			InterimResults: getBool("STT_INTERIM_RESULTS", true),
			DeepgramAPIKey: getEnv("DEEPGRAM_API_KEY", ""),
		},
		Transcripts: TranscriptsConfig{
			Dir:            getEnv("TRANSCRIPTS_DIR", "transcripts"),
			ArchiveEnabled: getBool("TRANSCRIPTS_ARCHIVE_ENABLED", false),
			ArchivePath:    getEnv("TRANSCRIPTS_ARCHIVE_PATH", "data/transcripts.db"),
		},
		Kafka: KafkaConfig{
			Enabled:      getBool("KAFKA_ENABLED", false),
			Brokers:      getList("KAFKA_BROKERS"),
			TopicInterim: getEnv("KAFKA_TOPIC_INTERIM", "room.transcript.interim"),
			TopicFinal:   getEnv("KAFKA_TOPIC_FINAL", "room.transcript.final"),
			Principal:    getEnv("KAFKA_PRINCIPAL", principal),
		},
		Heartbeat: HeartbeatConfig{
			Interval: getDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
