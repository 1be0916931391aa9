// Package transcripts persists final transcripts: an append-only JSON file
// per room per day, plus an optional sqlite archive.
package transcripts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"room-transcription-agent/internal/models"
	"room-transcription-agent/internal/observability/logging"
	"room-transcription-agent/internal/observability/metrics"
)

// Recorder appends one final transcript record to durable storage.
type Recorder interface {
	Append(ctx context.Context, rec models.TranscriptRecord) error
}

// Store writes transcript records into one JSON array file per (room, day).
// Concurrent appends to the same file are serialized per file key; a
// malformed existing file is treated as empty rather than fatal.
type Store struct {
	dir     string
	log     zerolog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates the transcripts directory if needed and returns a Store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcripts dir: %w", err)
	}
	return &Store{
		dir:     dir,
		log:     logging.WithComponent("transcripts.store"),
		metrics: metrics.DefaultMetrics,
		clock:   time.Now,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// FileName returns the target file name for a room on a given day.
func FileName(roomName string, day time.Time) string {
	return fmt.Sprintf("%s_%s.json", roomName, day.Format("2006-01-02"))
}

// Append reads the room's file for today, appends rec, and writes the full
// list back. The read-modify-write is held under the file's lock.
func (s *Store) Append(ctx context.Context, rec models.TranscriptRecord) error {
	name := FileName(rec.Room, s.clock().UTC())

	lock := s.fileLock(name)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(s.dir, name)

	var records []models.TranscriptRecord
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if uerr := json.Unmarshal(data, &records); uerr != nil {
			s.log.Warn().
				Err(uerr).
				Str("file", name).
				Msg("Existing transcript file is unparsable, starting over")
			records = nil
		}
	case errors.Is(err, os.ErrNotExist):
		// first record of the day
	default:
		s.metrics.RecordStoreAppend(err)
		return fmt.Errorf("read transcript file: %w", err)
	}

	records = append(records, rec)

	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		s.metrics.RecordStoreAppend(err)
		return fmt.Errorf("marshal transcript records: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		s.metrics.RecordStoreAppend(err)
		return fmt.Errorf("write transcript file: %w", err)
	}

	s.metrics.RecordStoreAppend(nil)
	s.log.Debug().Str("file", name).Str("participant", rec.Participant).Msg("Transcript record appended")
	return nil
}

func (s *Store) fileLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// Tee fans one Append out to several recorders. Every recorder sees the
// record; errors are joined.
func Tee(recorders ...Recorder) Recorder {
	return tee(recorders)
}

type tee []Recorder

func (t tee) Append(ctx context.Context, rec models.TranscriptRecord) error {
	var errs []error
	for _, r := range t {
		if err := r.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
