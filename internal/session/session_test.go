package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"room-transcription-agent/internal/events"
	"room-transcription-agent/internal/models"
	"room-transcription-agent/internal/registry"
	"room-transcription-agent/internal/room"
	"room-transcription-agent/internal/service/stt"
)

// actionLog records publishes and appends in arrival order so ordering
// between the two can be asserted.
type actionLog struct {
	mu      sync.Mutex
	actions []string
	sent    []models.TranscriptMessage
	records []models.TranscriptRecord
}

func (l *actionLog) PublishData(ctx context.Context, payload []byte, reliable bool) error {
	var msg models.TranscriptMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, "publish")
	l.sent = append(l.sent, msg)
	return nil
}

func (l *actionLog) Append(ctx context.Context, rec models.TranscriptRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, "append")
	l.records = append(l.records, rec)
	return nil
}

// fakeTrack plays a fixed set of frames and then ends.
type fakeTrack struct {
	sid    string
	frames chan room.AudioFrame
}

func newFakeTrack(sid string, frameCount int) *fakeTrack {
	t := &fakeTrack{sid: sid, frames: make(chan room.AudioFrame, frameCount)}
	for i := 0; i < frameCount; i++ {
		t.frames <- room.AudioFrame{Data: []byte("pcm"), SampleRate: 16000, Channels: 1}
	}
	close(t.frames)
	return t
}

func (t *fakeTrack) SID() string { return t.sid }
func (t *fakeTrack) Kind() room.TrackKind { return room.KindAudio }
func (t *fakeTrack) Frames() <-chan room.AudioFrame { return t.frames }

// scriptedStream counts pushed frames and flushes scripted events on EndInput.
type scriptedStream struct {
	script  []stt.Event
	pushErr error

	mu     sync.Mutex
	pushed int
	ended  bool
	events chan stt.Event
}

func (s *scriptedStream) PushFrame(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushErr != nil {
		return s.pushErr
	}
	s.pushed++
	return nil
}

func (s *scriptedStream) EndInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil
	}
	s.ended = true
	for _, ev := range s.script {
		s.events <- ev
	}
	close(s.events)
	return nil
}

func (s *scriptedStream) Events() <-chan stt.Event { return s.events }

type scriptedEngine struct {
	stream *scriptedStream
	err    error
}

func (e *scriptedEngine) NewStream(ctx context.Context) (stt.Stream, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.stream, nil
}

func interim(text string) stt.Event {
	return stt.Event{Type: stt.EventInterim, Alternatives: []stt.Alternative{{Text: text}}}
}

func final(text string, confidence float64) stt.Event {
	return stt.Event{Type: stt.EventFinal, Alternatives: []stt.Alternative{{Text: text, Confidence: &confidence}}}
}

func runSession(t *testing.T, reg *registry.Registry, engine stt.Engine, track room.Track, log *actionLog) registry.TrackID {
	t.Helper()
	id := registry.TrackID{ParticipantSID: "PA_alice", TrackSID: track.SID()}
	if !reg.TryAcquire(id) {
		t.Fatal("acquire should succeed")
	}
	s := New(Config{
		ID:                  id,
		ParticipantIdentity: "alice",
		RoomName:            "standup",
		Track:               track,
		Engine:              engine,
		Sink:                events.NewSink(log, nil, "standup"),
		Recorder:            log,
		Registry:            reg,
	})
	s.Run(context.Background())
	if s.Status() != StatusTerminated {
		t.Errorf("expected TERMINATED status, got %s", s.Status())
	}
	return id
}

func TestRun_TranscribesOneTrack(t *testing.T) {
	log := &actionLog{}
	reg := registry.New()
	stream := &scriptedStream{
		script: []stt.Event{
			interim("hel"),
			interim("hello"),
			final("hello world", 0.94),
			{Type: stt.EventEndOfSpeech},
		},
		events: make(chan stt.Event, 8),
	}
	id := runSession(t, reg, &scriptedEngine{stream: stream}, newFakeTrack("TR_1", 4), log)

	if stream.pushed != 4 {
		t.Errorf("expected 4 frames forwarded, got %d", stream.pushed)
	}
	if !stream.ended {
		t.Error("engine input should be closed after the track ends")
	}
	if len(log.sent) != 3 {
		t.Fatalf("expected 3 messages (2 interim + 1 final), got %d", len(log.sent))
	}
	if log.sent[0].IsFinal || log.sent[0].Text != "hel" {
		t.Errorf("unexpected first message: %+v", log.sent[0])
	}
	if log.sent[1].IsFinal || log.sent[1].Text != "hello" {
		t.Errorf("unexpected second message: %+v", log.sent[1])
	}
	finalMsg := log.sent[2]
	if !finalMsg.IsFinal || finalMsg.Text != "hello world" || finalMsg.Participant != "alice" {
		t.Errorf("unexpected final message: %+v", finalMsg)
	}
	if finalMsg.Confidence == nil || *finalMsg.Confidence != 0.94 {
		t.Errorf("expected confidence 0.94, got %v", finalMsg.Confidence)
	}

	if len(log.records) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(log.records))
	}
	rec := log.records[0]
	if rec.Text != "hello world" || rec.Participant != "alice" || rec.Room != "standup" {
		t.Errorf("unexpected record: %+v", rec)
	}

	if reg.Contains(id) {
		t.Error("track id should be released after the session ends")
	}
}

func TestRun_FinalMessageSentBeforeRecordAppended(t *testing.T) {
	log := &actionLog{}
	reg := registry.New()
	stream := &scriptedStream{
		script: []stt.Event{final("done", 0.9)},
		events: make(chan stt.Event, 4),
	}
	runSession(t, reg, &scriptedEngine{stream: stream}, newFakeTrack("TR_1", 1), log)

	if len(log.actions) != 2 || log.actions[0] != "publish" || log.actions[1] != "append" {
		t.Errorf("expected publish then append, got %v", log.actions)
	}
}

func TestRun_EmptyAndWhitespaceTextDropped(t *testing.T) {
	log := &actionLog{}
	reg := registry.New()
	stream := &scriptedStream{
		script: []stt.Event{
			interim(""),
			interim("   "),
			final(" \t\n", 0.5),
		},
		events: make(chan stt.Event, 8),
	}
	runSession(t, reg, &scriptedEngine{stream: stream}, newFakeTrack("TR_1", 2), log)

	if len(log.sent) != 0 {
		t.Errorf("no messages expected for blank text, got %+v", log.sent)
	}
	if len(log.records) != 0 {
		t.Errorf("no records expected for blank text, got %+v", log.records)
	}
}

func TestRun_PushFailureStillReleasesTrack(t *testing.T) {
	log := &actionLog{}
	reg := registry.New()
	stream := &scriptedStream{
		pushErr: errors.New("engine gone"),
		events:  make(chan stt.Event, 1),
	}
	id := runSession(t, reg, &scriptedEngine{stream: stream}, newFakeTrack("TR_1", 3), log)

	if reg.Contains(id) {
		t.Error("track id must be released after a pipeline failure")
	}
}

func TestRun_EngineOpenFailureStillReleasesTrack(t *testing.T) {
	log := &actionLog{}
	reg := registry.New()
	id := runSession(t, reg, &scriptedEngine{err: errors.New("no credentials")}, newFakeTrack("TR_1", 1), log)

	if reg.Contains(id) {
		t.Error("track id must be released when the engine cannot open a stream")
	}
	if len(log.sent) != 0 {
		t.Errorf("no messages expected, got %+v", log.sent)
	}
}
