// Package store persists sessions and their finalized segments in SQLite.
// Persistence is best-effort: a nil store is valid and every operation on
// it is a no-op, mirroring how the engine must keep working when the
// database is unavailable.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"transcript-sync-service/internal/models"
	"transcript-sync-service/internal/observability/metrics"
	"transcript-sync-service/internal/service/wordindex"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Store wraps a SQLite-backed session store.
type Store struct {
	db      *sql.DB
	log     zerolog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// Open initializes the store at the given path.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log, metrics: metrics.DefaultMetrics, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    status TEXT,
    final_text TEXT NOT NULL DEFAULT '',
    document BLOB,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    audio_path TEXT,
    mime TEXT,
    digest TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
    session_id TEXT NOT NULL,
    segment_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    is_final INTEGER NOT NULL,
    words BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, segment_id),
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_segments_session_seq ON segments(session_id, seq);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// SaveSnapshot upserts the session row and its finalized segments.
func (s *Store) SaveSnapshot(ctx context.Context, snap models.SessionSnapshot) error {
	if s == nil || s.db == nil {
		return nil
	}

	err := s.saveSnapshot(ctx, snap)
	s.metrics.RecordStoreOp("save", err)
	if err != nil {
		s.log.Error().Err(err).Str("sessionId", snap.SessionID).Msg("Session save failed")
	}
	return err
}

func (s *Store) saveSnapshot(ctx context.Context, snap models.SessionSnapshot) error {
	now := s.clock().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO sessions (session_id, status, final_text, document, duration_ms, audio_path, mime, digest, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    status = excluded.status,
    final_text = excluded.final_text,
    document = excluded.document,
    duration_ms = excluded.duration_ms,
    audio_path = excluded.audio_path,
    mime = excluded.mime,
    digest = excluded.digest,
    updated_at = excluded.updated_at`,
		snap.SessionID, snap.Status, snap.FinalText, snap.Document, snap.DurationMs,
		snap.AudioPath, snap.Mime, snap.Digest, now, now)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	for _, seg := range snap.Segments {
		if !seg.IsFinal {
			continue
		}
		words, err := json.Marshal(seg.Words)
		if err != nil {
			return fmt.Errorf("marshal words: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO segments (session_id, segment_id, seq, is_final, words, updated_at)
VALUES (?, ?, ?, 1, ?, ?)
ON CONFLICT(session_id, segment_id) DO UPDATE SET
    words = excluded.words,
    updated_at = excluded.updated_at`,
			snap.SessionID, seg.SegmentID, wordindex.SequenceNumber(seg.SegmentID), words, now)
		if err != nil {
			return fmt.Errorf("upsert segment %s: %w", seg.SegmentID, err)
		}
	}

	return tx.Commit()
}

// Load returns the stored snapshot for a session, segments ordered by
// sequence number.
func (s *Store) Load(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	if s == nil || s.db == nil {
		return models.SessionSnapshot{}, ErrNotFound
	}

	snap, err := s.load(ctx, sessionID)
	s.metrics.RecordStoreOp("load", err)
	return snap, err
}

func (s *Store) load(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	var snap models.SessionSnapshot
	var status, audioPath, mime, digest sql.NullString

	row := s.db.QueryRowContext(ctx, `
SELECT session_id, status, final_text, document, duration_ms, audio_path, mime, digest
FROM sessions WHERE session_id = ?`, sessionID)
	err := row.Scan(&snap.SessionID, &status, &snap.FinalText, &snap.Document,
		&snap.DurationMs, &audioPath, &mime, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SessionSnapshot{}, ErrNotFound
	}
	if err != nil {
		return models.SessionSnapshot{}, fmt.Errorf("load session: %w", err)
	}
	snap.Status = status.String
	snap.AudioPath = audioPath.String
	snap.Mime = mime.String
	snap.Digest = digest.String

	rows, err := s.db.QueryContext(ctx, `
SELECT segment_id, is_final, words FROM segments
WHERE session_id = ? ORDER BY seq ASC, segment_id ASC`, sessionID)
	if err != nil {
		return models.SessionSnapshot{}, fmt.Errorf("load segments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.SegmentRecord
		var isFinal int
		var words []byte
		if err := rows.Scan(&rec.SegmentID, &isFinal, &words); err != nil {
			return models.SessionSnapshot{}, fmt.Errorf("scan segment: %w", err)
		}
		rec.SessionID = sessionID
		rec.IsFinal = isFinal != 0
		if err := json.Unmarshal(words, &rec.Words); err != nil {
			return models.SessionSnapshot{}, fmt.Errorf("unmarshal words: %w", err)
		}
		snap.Segments = append(snap.Segments, rec)
	}
	if err := rows.Err(); err != nil {
		return models.SessionSnapshot{}, fmt.Errorf("iterate segments: %w", err)
	}

	return snap, nil
}

// List returns session summaries, latest first.
func (s *Store) List(ctx context.Context, limit int) ([]models.SessionSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, status, final_text, duration_ms, audio_path, mime, digest
FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit)
	s.metrics.RecordStoreOp("list", err)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionSnapshot
	for rows.Next() {
		var snap models.SessionSnapshot
		var status, audioPath, mime, digest sql.NullString
		if err := rows.Scan(&snap.SessionID, &status, &snap.FinalText,
			&snap.DurationMs, &audioPath, &mime, &digest); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		snap.Status = status.String
		snap.AudioPath = audioPath.String
		snap.Mime = mime.String
		snap.Digest = digest.String
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
