// Package google provides a Google Cloud Speech-to-Text engine.
package google

import (
	"context"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"github.com/rs/zerolog"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"room-transcription-agent/internal/observability/logging"
	"room-transcription-agent/internal/service/stt"
)

// Config holds recognition parameters shared by all streams of one engine.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
}

// Engine implements stt.Engine using Google Cloud Speech-to-Text.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
type Engine struct {
	client *speech.Client
	cfg    Config
	log    zerolog.Logger
}

// New creates a Google STT engine.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Engine{
		client: c,
		cfg:    cfg,
		log:    logging.WithComponent("stt.google"),
	}, nil
}

// Close releases the underlying client.
func (e *Engine) Close() error {
	return e.client.Close()
}

// NewStream opens a streaming recognition session and sends the initial config.
func (e *Engine) NewStream(ctx context.Context) (stt.Stream, error) {
	rpc, err := e.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, err
	}

	err = rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz: e.cfg.SampleRateHz,
					LanguageCode:    e.cfg.LanguageCode,
				},
				InterimResults: e.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	s := &stream{
		rpc:    rpc,
		events: make(chan stt.Event, 16),
		log:    e.log,
	}
	go s.recvLoop()
	return s, nil
}

type stream struct {
	rpc    speechpb.Speech_StreamingRecognizeClient
	events chan stt.Event
	log    zerolog.Logger

	sendMu sync.Mutex
	ended  bool
}

func (s *stream) PushFrame(ctx context.Context, pcm []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.ended {
		return nil
	}
	return s.rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: pcm,
		},
	})
}

func (s *stream) EndInput() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.ended {
		return nil
	}
	s.ended = true
	return s.rpc.CloseSend()
}

func (s *stream) Events() <-chan stt.Event {
	return s.events
}

// recvLoop drains recognition responses and translates them into events.
// The event channel is closed when the server finishes or the stream fails.
func (s *stream) recvLoop() {
	defer close(s.events)
	for {
		resp, err := s.rpc.Recv()
		if err != nil {
			if err != io.EOF && status.Code(err) != codes.Canceled {
				s.log.Error().
					Err(err).
					Str("grpcCode", status.Code(err).String()).
					Msg("Recognition stream failed")
			}
			return
		}

		for _, ev := range translate(resp) {
			s.events <- ev
		}
	}
}

// translate maps one recognition response onto speech events. Results with
// no alternatives are dropped.
func translate(resp *speechpb.StreamingRecognizeResponse) []stt.Event {
	if resp.SpeechEventType == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
		return []stt.Event{{Type: stt.EventEndOfSpeech}}
	}

	var out []stt.Event
	for _, r := range resp.Results {
		ev := stt.Event{Type: stt.EventInterim}
		if r.IsFinal {
			ev.Type = stt.EventFinal
		}
		for _, alt := range r.Alternatives {
			a := stt.Alternative{Text: alt.Transcript}
			// Google scores only final results; interim confidence is 0.
			if r.IsFinal {
				conf := float64(alt.Confidence)
				a.Confidence = &conf
			}
			ev.Alternatives = append(ev.Alternatives, a)
		}
		if len(ev.Alternatives) == 0 {
			continue
		}
		out = append(out, ev)
	}
	return out
}
