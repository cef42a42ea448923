package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/speakuplabs/speakup-core/internal/config"
	_ "modernc.org/sqlite"
)

// Status is the lifecycle state of a ledger entry. Transitions are
// one-directional: queued -> playing -> played, queued -> skipped, or
// playing -> skipped. An entry never regresses.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusPlaying Status = "playing"
	StatusPlayed  Status = "played"
	StatusSkipped Status = "skipped"
)

// Entry is the persisted record of one announcement request.
type Entry struct {
	ID         int64    `json:"id"`
	Project    string   `json:"project"`
	Text       string   `json:"text"`
	Tone       string   `json:"tone"`
	Status     Status   `json:"status"`
	CreatedAt  string   `json:"created_at"`
	PlayedAt   string   `json:"played_at,omitempty"`
	DurationMS *float64 `json:"duration_ms,omitempty"`
}

// Store wraps the SQLite-backed message ledger. The *sql.DB pool hands each
// accessor its own connection, so row-level mutations are safe across
// goroutines without extra locking here.
type Store struct {
	db    *sql.DB
	cfg   config.LedgerConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the ledger according to config.
func Open(ctx context.Context, cfg config.LedgerConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("ledger vacuum failed", slog.String("error", err.Error()))
		}
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project TEXT NOT NULL,
    text TEXT NOT NULL,
    tone TEXT NOT NULL DEFAULT 'neutral',
    status TEXT NOT NULL DEFAULT 'queued',
    created_at TIMESTAMP NOT NULL,
    played_at TIMESTAMP,
    duration_ms REAL
);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add records a new request as queued and returns its assigned id.
func (s *Store) Add(ctx context.Context, project, text, tone string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(project, text, tone, status, created_at)
		 VALUES(?, ?, ?, 'queued', ?)`,
		project, text, tone, s.clock().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return res.LastInsertId()
}

// MarkPlaying transitions an entry to playing. A no-op for entries already
// in a terminal state, so crash-recovery replays are safe.
func (s *Store) MarkPlaying(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = 'playing'
		 WHERE id = ? AND status IN ('queued', 'playing')`, id)
	return err
}

// MarkPlayed transitions an entry to played, recording when and how long it
// actually rendered. Entries already skipped stay skipped.
func (s *Store) MarkPlayed(ctx context.Context, id int64, durationMS float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = 'played', played_at = ?, duration_ms = ?
		 WHERE id = ? AND status IN ('playing', 'played')`,
		s.clock().UTC().Format(time.RFC3339Nano), durationMS, id)
	return err
}

// MarkSkipped transitions an entry to skipped. Entries already played stay
// played; exactly one terminal status per entry.
func (s *Store) MarkSkipped(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = 'skipped'
		 WHERE id = ? AND status IN ('queued', 'playing', 'skipped')`, id)
	return err
}

// MarkAllQueuedSkipped skips every still-queued entry and returns the count.
func (s *Store) MarkAllQueuedSkipped(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = 'skipped' WHERE status = 'queued'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	return s.queryEntries(ctx,
		`SELECT id, project, text, tone, status, created_at, played_at, duration_ms
		 FROM messages ORDER BY id DESC LIMIT ?`, limit)
}

// Queued returns all queued entries, oldest first.
func (s *Store) Queued(ctx context.Context) ([]Entry, error) {
	return s.queryEntries(ctx,
		`SELECT id, project, text, tone, status, created_at, played_at, duration_ms
		 FROM messages WHERE status = 'queued' ORDER BY id ASC`)
}

// Playing returns the currently playing entry, or nil.
func (s *Store) Playing(ctx context.Context) (*Entry, error) {
	entries, err := s.queryEntries(ctx,
		`SELECT id, project, text, tone, status, created_at, played_at, duration_ms
		 FROM messages WHERE status = 'playing' LIMIT 1`)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// CleanupOlderThan removes entries older than the given age, regardless of
// status. Returns the number removed.
func (s *Store) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := s.clock().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE created_at < ?`, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var playedAt sql.NullString
		var duration sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.Project, &e.Text, &e.Tone, &e.Status, &e.CreatedAt, &playedAt, &duration); err != nil {
			return nil, err
		}
		if playedAt.Valid {
			e.PlayedAt = playedAt.String
		}
		if duration.Valid {
			d := duration.Float64
			e.DurationMS = &d
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
