package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-tutor/internal/config"
	_ "modernc.org/sqlite"
)

// Kind names a capture session lifecycle step.
type Kind string

const (
	KindStarted      Kind = "recording.started"
	KindDenied       Kind = "recording.denied"
	KindPackaged     Kind = "recording.packaged"
	KindUploaded     Kind = "upload.succeeded"
	KindUploadFailed Kind = "upload.failed"
	KindPlayed       Kind = "playback.started"
)

// Entry is one lifecycle step of a capture session. It never carries audio
// or transcription text.
type Entry struct {
	ID        int64
	SessionID string
	Kind      Kind
	Language  string
	Fragments int
	Bytes     int
	Detail    string
	CreatedAt time.Time
}

// Session summarises a recorded capture session.
type Session struct {
	ID        string    `json:"id"`
	Language  string    `json:"language,omitempty"`
	Entries   int       `json:"entries"`
	StartedAt time.Time `json:"started_at"`
}

// Timeline keeps capture session lifecycle entries in SQLite. In ephemeral
// mode it keeps nothing.
type Timeline struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open prepares the timeline according to cfg.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Timeline, error) {
	log = log.With(slog.String("component", "timeline"))
	if cfg.RetentionMode == "ephemeral" {
		return &Timeline{cfg: cfg, log: log, clock: time.Now}, nil
	}

	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps the foreign_keys pragma in force for every statement.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	t := &Timeline{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := t.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate timeline: %w", err)
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("timeline vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := t.Prune(ctx); err != nil {
		log.Warn("timeline prune on start failed", slog.String("error", err.Error()))
	}
	return t, nil
}

func (t *Timeline) migrate(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS capture_sessions (
    session_id TEXT PRIMARY KEY,
    language TEXT,
    started_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS session_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    language TEXT,
    fragments INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0,
    detail TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(session_id) REFERENCES capture_sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_session_entries_session ON session_entries(session_id, id);
`
	_, err := t.db.ExecContext(ctx, ddl)
	return err
}

// Enabled reports whether entries are kept.
func (t *Timeline) Enabled() bool {
	return t != nil && t.db != nil
}

// Close releases the database.
func (t *Timeline) Close() error {
	if !t.Enabled() {
		return nil
	}
	return t.db.Close()
}

// Record appends e, creating its session row on first use.
func (t *Timeline) Record(ctx context.Context, e Entry) error {
	if !t.Enabled() {
		return nil
	}
	if e.SessionID == "" {
		return fmt.Errorf("timeline entry %s has no session id", e.Kind)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.clock()
	}
	at := e.CreatedAt.UTC().UnixNano()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO capture_sessions(session_id, language, started_at) VALUES(?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		e.SessionID, e.Language, at); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_entries(session_id, kind, language, fragments, bytes, detail, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, string(e.Kind), e.Language, e.Fragments, e.Bytes, e.Detail, at); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return tx.Commit()
}

// Entries returns up to limit entries of a session in the order recorded.
func (t *Timeline) Entries(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if !t.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, session_id, kind, language, fragments, bytes, detail, created_at
		 FROM session_entries WHERE session_id = ? ORDER BY id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			kind     string
			language sql.NullString
			detail   sql.NullString
			at       int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &language, &e.Fragments, &e.Bytes, &detail, &at); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.Language = language.String
		e.Detail = detail.String
		e.CreatedAt = time.Unix(0, at).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Sessions returns the most recent sessions, newest first.
func (t *Timeline) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if !t.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT s.session_id, s.language, s.started_at, COUNT(e.id)
		 FROM capture_sessions s LEFT JOIN session_entries e ON e.session_id = s.session_id
		 GROUP BY s.session_id ORDER BY s.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s        Session
			language sql.NullString
			at       int64
		)
		if err := rows.Scan(&s.ID, &language, &at, &s.Entries); err != nil {
			return nil, err
		}
		s.Language = language.String
		s.StartedAt = time.Unix(0, at).UTC()
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Prune applies the configured retention. Open runs it once.
func (t *Timeline) Prune(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if t.cfg.RetentionDays > 0 {
		cutoff := t.clock().Add(-time.Duration(t.cfg.RetentionDays) * 24 * time.Hour).UTC().UnixNano()
		if _, err := tx.ExecContext(ctx, `DELETE FROM capture_sessions WHERE started_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if t.cfg.MaxSessions > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM capture_sessions WHERE session_id IN (
			SELECT session_id FROM capture_sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, t.cfg.MaxSessions); err != nil {
			return err
		}
	}
	return tx.Commit()
}
