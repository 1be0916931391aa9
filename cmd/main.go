package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"room-transcription-agent/internal/agent"
	"room-transcription-agent/internal/config"
	"room-transcription-agent/internal/events"
	"room-transcription-agent/internal/observability"
	"room-transcription-agent/internal/observability/logging"
	"room-transcription-agent/internal/registry"
	"room-transcription-agent/internal/room/wsroom"
	"room-transcription-agent/internal/service/stt"
	"room-transcription-agent/internal/service/stt/deepgram"
	"room-transcription-agent/internal/service/stt/google"
	"room-transcription-agent/internal/service/stt/mock"
	"room-transcription-agent/internal/transcripts"
)

func main() {
	cfg := config.Load()

	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	log.Info().
		Str("sttProvider", cfg.STT.Provider).
		Str("roomURL", cfg.Room.URL).
		Msg("Room transcription agent starting")

	obsServer := observability.NewServer(cfg.Service.HTTPAddr)
	obsServer.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder, archive, err := buildRecorder(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up transcript storage")
	}
	if archive != nil {
		defer archive.Close()
	}

	mirror := events.NewMirror(&events.MirrorConfig{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicInterim: cfg.Kafka.TopicInterim,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	defer mirror.Close()

	engine, err := buildEngine(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create speech engine")
	}

	// The room connection is the agent's reason to exist: a failed dial is
	// fatal, not degraded.
	rm, err := wsroom.Dial(ctx, wsroom.Config{
		URL:   cfg.Room.URL,
		Token: cfg.Room.Token,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to room")
	}
	defer rm.Close()

	reg := registry.New()
	sink := events.NewSink(rm, mirror, rm.Name())

	a := agent.New(agent.Config{
		Room:     rm,
		Engine:   engine,
		Sink:     sink,
		Recorder: recorder,
		Registry: reg,
	})
	hb := agent.NewHeartbeat(reg, sink, cfg.Heartbeat.Interval)

	go hb.Run(ctx)

	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("Shutting down")
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("Agent stopped")
		} else {
			log.Info().Msg("Room connection ended")
		}
	}

	cancel()
	rm.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Observability server shutdown failed")
	}
}

// buildRecorder assembles the transcript store, plus the sqlite archive when
// enabled. The returned archive is nil when archiving is off.
func buildRecorder(ctx context.Context, cfg *config.Config) (transcripts.Recorder, *transcripts.Archive, error) {
	store, err := transcripts.NewStore(cfg.Transcripts.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("create transcript store: %w", err)
	}
	if !cfg.Transcripts.ArchiveEnabled {
		return store, nil, nil
	}

	archive, err := transcripts.OpenArchive(ctx, cfg.Transcripts.ArchivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open transcript archive: %w", err)
	}
	return transcripts.Tee(store, archive), archive, nil
}

// buildEngine selects the speech engine from configuration.
func buildEngine(ctx context.Context, cfg *config.Config) (stt.Engine, error) {
	switch cfg.STT.Provider {
	case "google":
		return google.New(ctx, google.Config{
			LanguageCode:   cfg.STT.Language,
			SampleRateHz:   int32(cfg.STT.SampleRateHz),
			InterimResults: cfg.STT.InterimResults,
		})
	case "deepgram":
		return deepgram.New(deepgram.Config{
			APIKey:         cfg.STT.DeepgramAPIKey,
			Model:          cfg.STT.Model,
			Language:       cfg.STT.Language,
			SampleRateHz:   cfg.STT.SampleRateHz,
			Punctuate:      cfg.STT.Punctuate,
			InterimResults: cfg.STT.InterimResults,
		})
	case "mock", "":
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.STT.Provider)
	}
}
