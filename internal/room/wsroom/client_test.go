package wsroom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"room-transcription-agent/internal/room"
)

var upgrader = websocket.Upgrader{}

// fakeBridge runs a websocket server that sends the handshake, then replays a
// script of envelopes and records everything the client writes back.
type fakeBridge struct {
	srv      *httptest.Server
	script   []envelope
	received chan envelope
}

func newFakeBridge(t *testing.T, hello envelope, script ...envelope) *fakeBridge {
	t.Helper()
	b := &fakeBridge{script: script, received: make(chan envelope, 16)}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(hello); err != nil {
			return
		}
		for _, env := range b.script {
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env envelope
			if json.Unmarshal(raw, &env) == nil {
				b.received <- env
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBridge) wsURL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func dialBridge(t *testing.T, b *fakeBridge) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, Config{URL: b.wsURL()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitEvent(t *testing.T, c *Client) room.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for room event")
	}
	return room.Event{}
}

func TestDial_HandshakeSnapshot(t *testing.T) {
	b := newFakeBridge(t, envelope{
		Type: "room",
		Room: "standup",
		Participants: []participantInfo{
			{
				SID:      "PA_1",
				Identity: "alice",
				Tracks: []trackInfo{
					{SID: "TR_A", Kind: "audio"},
					{SID: "TR_V", Kind: "video"},
				},
			},
			{SID: "PA_2", Identity: "bob"},
		},
	})

	c := dialBridge(t, b)

	if c.Name() != "standup" {
		t.Errorf("expected room name 'standup', got %s", c.Name())
	}

	parts := c.RemoteParticipants()
	if len(parts) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(parts))
	}

	byID := map[string]room.Participant{}
	for _, p := range parts {
		byID[p.SID()] = p
	}
	alice, ok := byID["PA_1"]
	if !ok {
		t.Fatal("missing participant PA_1")
	}
	if alice.Identity() != "alice" {
		t.Errorf("expected identity 'alice', got %s", alice.Identity())
	}

	audio := alice.AudioTracks()
	if len(audio) != 1 {
		t.Fatalf("expected 1 audio track for alice, got %d", len(audio))
	}
	if audio[0].SID() != "TR_A" || audio[0].Kind() != room.KindAudio {
		t.Errorf("unexpected audio track: sid=%s kind=%v", audio[0].SID(), audio[0].Kind())
	}
}

func TestDial_RejectsBadHandshake(t *testing.T) {
	b := newFakeBridge(t, envelope{Type: "data", Topic: "lk.chat"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := Dial(ctx, Config{URL: b.wsURL()}); err == nil {
		t.Fatal("expected error for non-room handshake")
	}
}

func TestReadLoop_TrackSubscribeAndFrames(t *testing.T) {
	alice := participantInfo{SID: "PA_1", Identity: "alice"}
	b := newFakeBridge(t,
		envelope{Type: "room", Room: "standup"},
		envelope{Type: "track_subscribed", Participant: &alice, Track: &trackInfo{SID: "TR_A", Kind: "audio"}},
		envelope{Type: "audio_frame", TrackSID: "TR_A", SampleRate: 16000, Channels: 1, Data: []byte{1, 2, 3, 4}},
		envelope{Type: "audio_frame", TrackSID: "TR_A", SampleRate: 16000, Channels: 1, Data: []byte{5, 6}},
		envelope{Type: "track_ended", TrackSID: "TR_A"},
	)

	c := dialBridge(t, b)

	ev := waitEvent(t, c)
	if ev.Kind != room.EventTrackSubscribed {
		t.Fatalf("expected track subscribed event, got kind %d", ev.Kind)
	}
	if ev.Participant.Identity() != "alice" || ev.Track.SID() != "TR_A" {
		t.Errorf("unexpected event contents: %s / %s", ev.Participant.Identity(), ev.Track.SID())
	}

	var frames []room.AudioFrame
	deadline := time.After(5 * time.Second)
drain:
	for {
		select {
		case f, ok := <-ev.Track.Frames():
			if !ok {
				break drain
			}
			frames = append(frames, f)
		case <-deadline:
			t.Fatal("timed out waiting for frame channel to close")
		}
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if string(frames[0].Data) != string([]byte{1, 2, 3, 4}) || frames[0].SampleRate != 16000 {
		t.Errorf("unexpected first frame: %+v", frames[0])
	}
}

func TestReadLoop_TrackUnsubscribedClosesFrames(t *testing.T) {
	alice := participantInfo{SID: "PA_1", Identity: "alice"}
	tr := trackInfo{SID: "TR_A", Kind: "audio"}
	b := newFakeBridge(t,
		envelope{Type: "room", Room: "standup"},
		envelope{Type: "track_subscribed", Participant: &alice, Track: &tr},
		envelope{Type: "track_unsubscribed", Participant: &alice, Track: &tr},
	)

	c := dialBridge(t, b)

	sub := waitEvent(t, c)
	if sub.Kind != room.EventTrackSubscribed {
		t.Fatalf("expected subscribe event, got kind %d", sub.Kind)
	}
	unsub := waitEvent(t, c)
	if unsub.Kind != room.EventTrackUnsubscribed {
		t.Fatalf("expected unsubscribe event, got kind %d", unsub.Kind)
	}

	select {
	case _, ok := <-sub.Track.Frames():
		if ok {
			t.Error("expected frame channel closed without frames")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("frame channel not closed after unsubscribe")
	}
}

func TestReadLoop_DataMessage(t *testing.T) {
	b := newFakeBridge(t,
		envelope{Type: "room", Room: "standup"},
		envelope{Type: "data", Topic: "lk.chat", Payload: json.RawMessage(`{"message":"hi"}`)},
	)

	c := dialBridge(t, b)

	ev := waitEvent(t, c)
	if ev.Kind != room.EventDataReceived {
		t.Fatalf("expected data event, got kind %d", ev.Kind)
	}
	if ev.Topic != "lk.chat" {
		t.Errorf("expected topic lk.chat, got %s", ev.Topic)
	}
	var body map[string]string
	if err := json.Unmarshal(ev.Payload, &body); err != nil || body["message"] != "hi" {
		t.Errorf("unexpected payload: %s", ev.Payload)
	}
}

func TestPublishData_WritesEnvelope(t *testing.T) {
	b := newFakeBridge(t, envelope{Type: "room", Room: "standup"})
	c := dialBridge(t, b)

	payload := []byte(`{"type":"transcription","text":"hello"}`)
	if err := c.PublishData(context.Background(), payload, true); err != nil {
		t.Fatalf("PublishData: %v", err)
	}

	select {
	case env := <-b.received:
		if env.Type != "publish_data" {
			t.Errorf("expected publish_data, got %s", env.Type)
		}
		if !env.Reliable {
			t.Error("expected reliable flag set")
		}
		if string(env.Payload) != string(payload) {
			t.Errorf("payload mismatch: %s", env.Payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("bridge never received publish_data")
	}
}

func TestClose_EndsEventChannel(t *testing.T) {
	b := newFakeBridge(t, envelope{Type: "room", Room: "standup"})
	c := dialBridge(t, b)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, ok := <-c.Events():
		if ok {
			t.Error("expected no events after close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event channel not closed after Close")
	}
}
