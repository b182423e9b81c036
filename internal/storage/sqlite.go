package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrSpeakerRequired is returned by CreateTranscripts when the speaker
// policy flag is set and a record lacks a speaker identity. The whole batch
// is rejected; nothing is written.
var ErrSpeakerRequired = errors.New("transcript record missing speaker id")

// TranscriptRecord is the persistence shape of a finalized transcript
// segment. Once written, the durable copy is owned by the store.
type TranscriptRecord struct {
	MeetingID  string  `json:"meeting_id"`
	SegmentID  string  `json:"segment_id"`
	SpeakerID  string  `json:"speaker_id,omitempty"`
	Content    string  `json:"content"`
	StartMS    int64   `json:"start_ms"`
	EndMS      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "notewire.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			meeting_id TEXT NOT NULL,
			segment_id TEXT NOT NULL,
			speaker_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			start_ms INTEGER NOT NULL,
			end_ms INTEGER NOT NULL,
			confidence REAL NOT NULL,
			is_final INTEGER NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(meeting_id, segment_id)
		);
	`); err != nil {
		return fmt.Errorf("create transcripts table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_transcripts_meeting ON transcripts(meeting_id, start_ms)"); err != nil {
		return fmt.Errorf("create transcripts index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// CreateTranscripts writes a batch of transcript records inside one
// transaction. When requireSpeaker is set, any record without a speaker id
// causes the whole batch to be rejected with ErrSpeakerRequired.
func (s *SQLiteStore) CreateTranscripts(ctx context.Context, records []TranscriptRecord, requireSpeaker bool) error {
	if len(records) == 0 {
		return nil
	}

	if requireSpeaker {
		for _, rec := range records {
			if strings.TrimSpace(rec.SpeakerID) == "" {
				return fmt.Errorf("segment %s: %w", rec.SegmentID, ErrSpeakerRequired)
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transcript batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transcripts(meeting_id, segment_id, speaker_id, content, start_ms, end_ms, confidence, is_final)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare transcript insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.MeetingID,
			rec.SegmentID,
			rec.SpeakerID,
			strings.TrimSpace(rec.Content),
			rec.StartMS,
			rec.EndMS,
			rec.Confidence,
			boolToInt(rec.IsFinal),
		); err != nil {
			return fmt.Errorf("insert transcript %s: %w", rec.SegmentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transcript batch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTranscripts(meetingID string) ([]TranscriptRecord, error) {
	rows, err := s.db.Query(
		`SELECT meeting_id, segment_id, speaker_id, content, start_ms, end_ms, confidence, is_final
		 FROM transcripts
		 WHERE meeting_id = ?
		 ORDER BY start_ms ASC, id ASC`,
		meetingID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcripts for meeting %s: %w", meetingID, err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]TranscriptRecord, 0, 32)
	for rows.Next() {
		var rec TranscriptRecord
		var final int
		if err := rows.Scan(&rec.MeetingID, &rec.SegmentID, &rec.SpeakerID, &rec.Content,
			&rec.StartMS, &rec.EndMS, &rec.Confidence, &final); err != nil {
			return nil, fmt.Errorf("scan transcript for meeting %s: %w", meetingID, err)
		}
		rec.IsFinal = final != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows for meeting %s: %w", meetingID, err)
	}

	return records, nil
}

func (s *SQLiteStore) GetMeetings() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT meeting_id FROM transcripts ORDER BY meeting_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query meetings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var meetings []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan meeting id: %w", err)
		}
		meetings = append(meetings, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meeting rows: %w", err)
	}

	return meetings, nil
}

// SnapshotTo writes a consistent, self-contained copy of the database to
// destPath via VACUUM INTO. The live database runs in WAL mode, so copying
// its file directly would miss or tear uncheckpointed transactions; the
// snapshot has no WAL sidecar and is safe to upload while writes continue.
func (s *SQLiteStore) SnapshotTo(ctx context.Context, destPath string) error {
	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale snapshot %s: %w", destPath, err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("snapshot database to %s: %w", destPath, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
