// Package deepgram provides a Deepgram live-streaming Speech-to-Text engine
// over websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"room-transcription-agent/internal/observability/logging"
	"room-transcription-agent/internal/service/stt"
)

// LiveURL is the Deepgram live transcription websocket endpoint.
const LiveURL = "wss://api.deepgram.com/v1/listen"

// Config holds connection and recognition parameters.
type Config struct {
	APIKey         string
	Model          string // e.g. "nova-2"
	Language       string // e.g. "en-US"
	SampleRateHz   int
	Punctuate      bool
	InterimResults bool

	// BaseURL overrides LiveURL. Used by tests.
	BaseURL string
}

// Engine implements stt.Engine against the Deepgram live API. Each stream is
// its own websocket connection.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// New creates a Deepgram engine.
func New(cfg Config) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepgram: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = LiveURL
	}
	return &Engine{
		cfg: cfg,
		log: logging.WithComponent("stt.deepgram"),
	}, nil
}

// NewStream dials a live transcription websocket.
func (e *Engine) NewStream(ctx context.Context) (stt.Stream, error) {
	q := url.Values{}
	q.Set("model", e.cfg.Model)
	q.Set("language", e.cfg.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(e.cfg.SampleRateHz))
	q.Set("punctuate", strconv.FormatBool(e.cfg.Punctuate))
	q.Set("interim_results", strconv.FormatBool(e.cfg.InterimResults))

	header := http.Header{}
	header.Set("Authorization", "Token "+e.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, e.cfg.BaseURL+"?"+q.Encode(), header)
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	s := &stream{
		conn:   conn,
		events: make(chan stt.Event, 16),
		log:    e.log,
	}
	go s.readLoop()
	return s, nil
}

// liveMessage is the subset of Deepgram's live response schema the agent uses.
type liveMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type controlMessage struct {
	Type string `json:"type"`
}

type stream struct {
	conn   *websocket.Conn
	events chan stt.Event
	log    zerolog.Logger

	writeMu sync.Mutex
	ended   bool
}

// PushFrame sends raw PCM as a binary websocket message.
func (s *stream) PushFrame(ctx context.Context, pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.ended {
		return nil
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// EndInput tells Deepgram to flush and close the stream. The server finishes
// any pending results and then closes the connection, which ends readLoop.
func (s *stream) EndInput() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.ended {
		return nil
	}
	s.ended = true
	return s.conn.WriteJSON(controlMessage{Type: "CloseStream"})
}

func (s *stream) Events() <-chan stt.Event {
	return s.events
}

func (s *stream) readLoop() {
	defer close(s.events)
	defer s.conn.Close()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Error().Err(err).Msg("Live stream read failed")
			}
			return
		}

		var msg liveMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.log.Warn().Err(err).Msg("Unparsable live message, skipping")
			continue
		}

		switch msg.Type {
		case "Results":
			ev := stt.Event{Type: stt.EventInterim}
			if msg.IsFinal {
				ev.Type = stt.EventFinal
			}
			for _, alt := range msg.Channel.Alternatives {
				conf := alt.Confidence
				ev.Alternatives = append(ev.Alternatives, stt.Alternative{
					Text:       alt.Transcript,
					Confidence: &conf,
				})
			}
			if len(ev.Alternatives) == 0 {
				continue
			}
			s.events <- ev
			if msg.SpeechFinal {
				s.events <- stt.Event{Type: stt.EventEndOfSpeech}
			}
		case "UtteranceEnd":
			s.events <- stt.Event{Type: stt.EventEndOfSpeech}
		case "Metadata":
			// Sent once the server has flushed everything. The close frame
			// follows; nothing to emit.
		}
	}
}
