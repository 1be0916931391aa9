package transcripts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"room-transcription-agent/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func readRecords(t *testing.T, s *Store, roomName string, day time.Time) []models.TranscriptRecord {
	t.Helper()
	path := filepath.Join(s.dir, FileName(roomName, day))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var recs []models.TranscriptRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		t.Fatalf("unmarshal %s: %v", path, err)
	}
	return recs
}

func TestAppend_CreatesFilePerRoomAndDay(t *testing.T) {
	s := testStore(t)
	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return day }

	rec := models.TranscriptRecord{
		Timestamp:   day.Format(time.RFC3339),
		Participant: "alice",
		Text:        "hello world",
		Room:        "standup",
	}
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if name := FileName("standup", day); name != "standup_2026-03-14.json" {
		t.Errorf("unexpected file name: %s", name)
	}

	recs := readRecords(t, s, "standup", day)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0] != rec {
		t.Errorf("stored record mismatch: %+v", recs[0])
	}
}

func TestAppend_PreservesArrivalOrder(t *testing.T) {
	s := testStore(t)
	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return day }

	for i := 0; i < 3; i++ {
		rec := models.TranscriptRecord{
			Participant: "alice",
			Text:        fmt.Sprintf("utterance %d", i),
			Room:        "standup",
		}
		if err := s.Append(context.Background(), rec); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	recs := readRecords(t, s, "standup", day)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, rec := range recs {
		if want := fmt.Sprintf("utterance %d", i); rec.Text != want {
			t.Errorf("record %d: expected %q, got %q", i, want, rec.Text)
		}
	}
}

func TestAppend_ConcurrentNoLostUpdates(t *testing.T) {
	s := testStore(t)
	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return day }

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := models.TranscriptRecord{
				Participant: fmt.Sprintf("speaker-%d", i),
				Text:        "concurrent",
				Room:        "standup",
			}
			if err := s.Append(context.Background(), rec); err != nil {
				t.Errorf("Append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	recs := readRecords(t, s, "standup", day)
	if len(recs) != n {
		t.Fatalf("expected %d records after concurrent appends, got %d", n, len(recs))
	}
}

func TestAppend_CorruptFileTreatedAsEmpty(t *testing.T) {
	s := testStore(t)
	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return day }

	path := filepath.Join(s.dir, FileName("standup", day))
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	rec := models.TranscriptRecord{Participant: "alice", Text: "fresh start", Room: "standup"}
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append over corrupt file: %v", err)
	}

	recs := readRecords(t, s, "standup", day)
	if len(recs) != 1 || recs[0].Text != "fresh start" {
		t.Errorf("expected single fresh record, got %+v", recs)
	}
}

func TestAppend_SeparateRoomsSeparateFiles(t *testing.T) {
	s := testStore(t)
	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return day }

	ctx := context.Background()
	s.Append(ctx, models.TranscriptRecord{Participant: "a", Text: "x", Room: "standup"})
	s.Append(ctx, models.TranscriptRecord{Participant: "b", Text: "y", Room: "retro"})

	if got := readRecords(t, s, "standup", day); len(got) != 1 {
		t.Errorf("standup: expected 1 record, got %d", len(got))
	}
	if got := readRecords(t, s, "retro", day); len(got) != 1 {
		t.Errorf("retro: expected 1 record, got %d", len(got))
	}
}

type failingRecorder struct{ err error }

func (f failingRecorder) Append(ctx context.Context, rec models.TranscriptRecord) error {
	return f.err
}

type countingRecorder struct{ n int }

func (c *countingRecorder) Append(ctx context.Context, rec models.TranscriptRecord) error {
	c.n++
	return nil
}

func TestTee_AllRecordersSeeTheRecord(t *testing.T) {
	a := &countingRecorder{}
	b := &countingRecorder{}
	r := Tee(a, b)

	if err := r.Append(context.Background(), models.TranscriptRecord{}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if a.n != 1 || b.n != 1 {
		t.Errorf("expected both recorders appended once, got %d and %d", a.n, b.n)
	}
}

func TestTee_ErrorDoesNotSkipOthers(t *testing.T) {
	c := &countingRecorder{}
	r := Tee(failingRecorder{err: os.ErrPermission}, c)

	if err := r.Append(context.Background(), models.TranscriptRecord{}); err == nil {
		t.Fatal("expected joined error")
	}
	if c.n != 1 {
		t.Errorf("second recorder should still append, got %d", c.n)
	}
}
