package transcripts

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"room-transcription-agent/internal/models"
	"room-transcription-agent/internal/observability/logging"
)

// Archive mirrors final transcripts into a sqlite database so that rooms can
// be queried across days without scanning the JSON files.
type Archive struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenArchive opens (creating if necessary) the sqlite archive at path.
func OpenArchive(ctx context.Context, path string) (*Archive, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	a := &Archive{db: db, log: logging.WithComponent("transcripts.archive")}
	if err := a.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transcripts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    room TEXT NOT NULL,
    participant TEXT NOT NULL,
    text TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_room_created ON transcripts(room, created_at);
`
	_, err := a.db.ExecContext(ctx, ddl)
	return err
}

// Append inserts one transcript record.
func (a *Archive) Append(ctx context.Context, rec models.TranscriptRecord) error {
	createdAt := rec.Timestamp
	if createdAt == "" {
		createdAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO transcripts(room, participant, text, created_at) VALUES(?, ?, ?, ?)`,
		rec.Room, rec.Participant, rec.Text, createdAt)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// Recent returns the newest records for a room, newest first.
func (a *Archive) Recent(ctx context.Context, roomName string, limit int) ([]models.TranscriptRecord, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT room, participant, text, created_at
		 FROM transcripts WHERE room = ?
		 ORDER BY id DESC LIMIT ?`,
		roomName, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var out []models.TranscriptRecord
	for rows.Next() {
		var rec models.TranscriptRecord
		if err := rows.Scan(&rec.Room, &rec.Participant, &rec.Text, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
