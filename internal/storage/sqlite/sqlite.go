package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/michaelbrown/artoo/internal/storage"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ storage.Store = (*SQLiteStore)(nil)

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: every ":memory:" connection is a separate database.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Claim(ctx context.Context, channel, ts string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO handled_messages (channel, ts, handled_at) VALUES (?, ?, ?)
		ON CONFLICT(channel, ts) DO NOTHING`,
		channel, ts, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("claiming message %s/%s: %w", channel, ts, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming message %s/%s: %w", channel, ts, err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) Complete(ctx context.Context, h storage.Handled) error {
	if h.HandledAt.IsZero() {
		h.HandledAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE handled_messages SET instruction = ?, state = ?, handled_at = ?
		WHERE channel = ? AND ts = ?`,
		h.Instruction, h.State, h.HandledAt.UTC().Format(time.RFC3339), h.Channel, h.TS,
	)
	if err != nil {
		return fmt.Errorf("completing message %s/%s: %w", h.Channel, h.TS, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message not claimed: %s/%s", h.Channel, h.TS)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]storage.Handled, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, ts, instruction, state, handled_at
		FROM handled_messages ORDER BY handled_at DESC, ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing handled messages: %w", err)
	}
	defer rows.Close()

	var out []storage.Handled
	for rows.Next() {
		var h storage.Handled
		var handledAt string
		if err := rows.Scan(&h.Channel, &h.TS, &h.Instruction, &h.State, &handledAt); err != nil {
			return nil, fmt.Errorf("scanning handled message: %w", err)
		}
		h.HandledAt = parseTime(handledAt)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM handled_messages WHERE handled_at < ?`,
		before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning handled messages: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
