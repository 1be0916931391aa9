// Package wsroom connects to a room bridge over websocket and exposes it
// through the room interfaces. The bridge speaks newline-free JSON envelopes
// in both directions; audio arrives as base64 PCM inside "audio_frame"
// messages.
package wsroom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"room-transcription-agent/internal/observability/logging"
	"room-transcription-agent/internal/room"
)

// frameBuffer bounds per-track frame queues. A slow consumer drops frames
// rather than stalling the read loop for every other track.
const frameBuffer = 32

// eventBuffer bounds the room event queue.
const eventBuffer = 64

// Config holds room bridge connection settings.
type Config struct {
	// URL is the bridge websocket endpoint, e.g. ws://localhost:7880.
	URL string

	// Token is sent as a bearer token on the dial request when set.
	Token string
}

// envelope is the bridge wire format. Which fields are set depends on Type.
type envelope struct {
	Type string `json:"type"`

	// "room" handshake
	Room         string            `json:"room,omitempty"`
	Participants []participantInfo `json:"participants,omitempty"`

	// participant and track lifecycle
	Participant *participantInfo `json:"participant,omitempty"`
	Track       *trackInfo       `json:"track,omitempty"`

	// "audio_frame"
	TrackSID   string `json:"track_sid,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Data       []byte `json:"data,omitempty"`

	// "data" in, "publish_data" out
	Topic    string          `json:"topic,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Reliable bool            `json:"reliable,omitempty"`
}

type participantInfo struct {
	SID      string      `json:"sid"`
	Identity string      `json:"identity"`
	Tracks   []trackInfo `json:"tracks,omitempty"`
}

type trackInfo struct {
	SID  string `json:"sid"`
	Kind string `json:"kind"`
}

// Client is a connected room bridge session. It implements room.Room.
type Client struct {
	conn *websocket.Conn
	log  zerolog.Logger
	name string

	mu           sync.Mutex
	participants map[string]*wsParticipant // by participant SID
	tracks       map[string]*wsTrack       // by track SID

	writeMu   sync.Mutex
	events    chan room.Event
	closeOnce sync.Once
}

// Dial connects to the bridge, waits for the "room" handshake, and starts the
// read loop. The handshake carries the room name and a snapshot of current
// participants and their tracks.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial room bridge %s: %w (status %d)", cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial room bridge %s: %w", cfg.URL, err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read room handshake: %w", err)
	}
	var hello envelope
	if err := json.Unmarshal(raw, &hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("decode room handshake: %w", err)
	}
	if hello.Type != "room" || hello.Room == "" {
		conn.Close()
		return nil, fmt.Errorf("unexpected handshake message type %q", hello.Type)
	}

	c := &Client{
		conn:         conn,
		log:          logging.WithComponent("wsroom").With().Str("room", hello.Room).Logger(),
		name:         hello.Room,
		participants: make(map[string]*wsParticipant),
		tracks:       make(map[string]*wsTrack),
		events:       make(chan room.Event, eventBuffer),
	}

	for _, pi := range hello.Participants {
		c.addParticipantLocked(pi)
	}

	c.log.Info().
		Int("participants", len(hello.Participants)).
		Msg("Connected to room bridge")

	go c.readLoop()
	return c, nil
}

// Name returns the room name from the handshake.
func (c *Client) Name() string { return c.name }

// RemoteParticipants snapshots the participants currently in the room.
func (c *Client) RemoteParticipants() []room.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]room.Participant, 0, len(c.participants))
	for _, p := range c.participants {
		out = append(out, p)
	}
	return out
}

// Events delivers room lifecycle notifications. Closed when the connection
// ends.
func (c *Client) Events() <-chan room.Event { return c.events }

// PublishData broadcasts a payload to all room participants via the bridge.
func (c *Client) PublishData(ctx context.Context, payload []byte, reliable bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := json.Marshal(envelope{
		Type:     "publish_data",
		Payload:  payload,
		Reliable: reliable,
	})
	if err != nil {
		return fmt.Errorf("encode publish_data: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("write publish_data: %w", err)
	}
	return nil
}

// Close tears down the bridge connection. The read loop then closes all
// track frame channels and the event channel.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		for _, t := range c.tracks {
			t.end()
		}
		c.tracks = make(map[string]*wsTrack)
		c.mu.Unlock()
		close(c.events)
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info().Msg("Room bridge connection closed")
			} else {
				c.log.Warn().Err(err).Msg("Room bridge read failed")
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Warn().Err(err).Msg("Dropping undecodable bridge message")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope) {
	switch env.Type {
	case "participant_connected":
		if env.Participant == nil {
			return
		}
		c.mu.Lock()
		p := c.addParticipantLocked(*env.Participant)
		c.mu.Unlock()
		c.emit(room.Event{Kind: room.EventParticipantConnected, Participant: p})

	case "track_subscribed":
		if env.Participant == nil || env.Track == nil {
			return
		}
		c.mu.Lock()
		p := c.addParticipantLocked(*env.Participant)
		t := c.addTrackLocked(p, *env.Track)
		c.mu.Unlock()
		c.emit(room.Event{Kind: room.EventTrackSubscribed, Participant: p, Track: t})

	case "track_unsubscribed":
		if env.Participant == nil || env.Track == nil {
			return
		}
		c.mu.Lock()
		p := c.participants[env.Participant.SID]
		t := c.removeTrackLocked(env.Track.SID)
		c.mu.Unlock()
		if p == nil || t == nil {
			return
		}
		t.end()
		c.emit(room.Event{Kind: room.EventTrackUnsubscribed, Participant: p, Track: t})

	case "track_ended":
		c.mu.Lock()
		t := c.removeTrackLocked(env.TrackSID)
		c.mu.Unlock()
		if t != nil {
			t.end()
		}

	case "audio_frame":
		c.mu.Lock()
		t := c.tracks[env.TrackSID]
		c.mu.Unlock()
		if t == nil {
			return
		}
		t.push(room.AudioFrame{
			Data:       env.Data,
			SampleRate: env.SampleRate,
			Channels:   env.Channels,
		}, c.log)

	case "data":
		c.emit(room.Event{
			Kind:    room.EventDataReceived,
			Topic:   env.Topic,
			Payload: env.Payload,
		})

	default:
		c.log.Debug().Str("messageType", env.Type).Msg("Ignoring unknown bridge message")
	}
}

// emit never blocks the read loop; a full event queue drops the event.
func (c *Client) emit(ev room.Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Int("kind", int(ev.Kind)).Msg("Event queue full, dropping room event")
	}
}

func (c *Client) addParticipantLocked(pi participantInfo) *wsParticipant {
	p, ok := c.participants[pi.SID]
	if !ok {
		p = &wsParticipant{client: c, sid: pi.SID, identity: pi.Identity}
		c.participants[pi.SID] = p
	}
	for _, ti := range pi.Tracks {
		c.addTrackLocked(p, ti)
	}
	return p
}

func (c *Client) addTrackLocked(p *wsParticipant, ti trackInfo) *wsTrack {
	t, ok := c.tracks[ti.SID]
	if !ok {
		t = &wsTrack{
			sid:    ti.SID,
			kind:   room.ParseTrackKind(ti.Kind),
			owner:  p.sid,
			frames: make(chan room.AudioFrame, frameBuffer),
		}
		c.tracks[ti.SID] = t
	}
	return t
}

func (c *Client) removeTrackLocked(sid string) *wsTrack {
	t := c.tracks[sid]
	delete(c.tracks, sid)
	return t
}

// wsParticipant is a remote member seen through the bridge.
type wsParticipant struct {
	client   *Client
	sid      string
	identity string
}

func (p *wsParticipant) SID() string      { return p.sid }
func (p *wsParticipant) Identity() string { return p.identity }

// AudioTracks returns the participant's live audio tracks.
func (p *wsParticipant) AudioTracks() []room.Track {
	p.client.mu.Lock()
	defer p.client.mu.Unlock()

	var out []room.Track
	for _, t := range p.client.tracks {
		if t.owner == p.sid && t.kind == room.KindAudio {
			out = append(out, t)
		}
	}
	return out
}

// wsTrack is a media track seen through the bridge. Frames are queued from
// the read loop; the channel closes when the track or the connection ends.
type wsTrack struct {
	sid    string
	kind   room.TrackKind
	owner  string // participant SID
	frames chan room.AudioFrame

	endOnce sync.Once
	ended   sync.Mutex // held around push vs end
	done    bool
}

func (t *wsTrack) SID() string                    { return t.sid }
func (t *wsTrack) Kind() room.TrackKind           { return t.kind }
func (t *wsTrack) Frames() <-chan room.AudioFrame { return t.frames }

func (t *wsTrack) push(f room.AudioFrame, log zerolog.Logger) {
	t.ended.Lock()
	defer t.ended.Unlock()
	if t.done {
		return
	}
	select {
	case t.frames <- f:
	default:
		log.Debug().Str("trackSid", t.sid).Msg("Frame queue full, dropping audio frame")
	}
}

func (t *wsTrack) end() {
	t.endOnce.Do(func() {
		t.ended.Lock()
		t.done = true
		t.ended.Unlock()
		close(t.frames)
	})
}
