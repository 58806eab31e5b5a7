package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"smart-query/internal/domain"
	"smart-query/internal/usecase"
)

// SQLiteStore persists conversation threads in a local SQLite database.
// Commit writes the retained window and the eviction tombstones in one
// transaction, so a thread is never observed half-updated.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	// Pragmas for performance.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS threads (
			id         TEXT PRIMARY KEY,
			last_step  INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id           TEXT PRIMARY KEY,
			thread_id    TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
			seq          INTEGER NOT NULL,
			role         TEXT NOT NULL,
			content      TEXT NOT NULL,
			name         TEXT NOT NULL DEFAULT '',
			tool_calls   TEXT NOT NULL DEFAULT '',
			tool_call_id TEXT NOT NULL DEFAULT '',
			timestamp    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, seq);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get implements usecase.ThreadStore.
func (s *SQLiteStore) Get(ctx context.Context, threadID string) (*domain.Thread, error) {
	thread := &domain.Thread{ID: threadID}

	var lastStep int
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_step, created_at, updated_at FROM threads WHERE id = ?`, threadID).
		Scan(&lastStep, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewDomainError("store.Get", domain.ErrThreadNotFound, threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	thread.LastStep = lastStep != 0
	thread.CreatedAt = parseTime(createdAt)
	thread.UpdatedAt = parseTime(updatedAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, name, tool_calls, tool_call_id, timestamp
		 FROM messages WHERE thread_id = ? ORDER BY seq`, threadID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Message
		var toolCalls, timestamp string
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Name, &toolCalls, &m.ToolCallID, &timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		m.Timestamp = parseTime(timestamp)
		thread.Messages = append(thread.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	return thread, nil
}

// Commit implements usecase.ThreadStore. The thread row, the retained
// messages, and the eviction deletes land in a single transaction.
func (s *SQLiteStore) Commit(ctx context.Context, thread *domain.Thread, evictions []domain.Eviction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	createdAt := thread.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := thread.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO threads (id, last_step, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_step = excluded.last_step, updated_at = excluded.updated_at`,
		thread.ID, boolToInt(thread.LastStep), formatTime(createdAt), formatTime(updatedAt)); err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}

	for _, ev := range evictions {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE thread_id = ? AND id = ?`, thread.ID, ev.MessageID); err != nil {
			return fmt.Errorf("apply eviction %q: %w", ev.MessageID, err)
		}
	}

	for seq, m := range thread.Messages {
		var toolCalls string
		if len(m.ToolCalls) > 0 {
			data, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("marshal tool calls: %w", err)
			}
			toolCalls = string(data)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, thread_id, seq, role, content, name, tool_calls, tool_call_id, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET seq = excluded.seq`,
			m.ID, thread.ID, seq, m.Role, m.Content, m.Name, toolCalls, m.ToolCallID, formatTime(m.Timestamp)); err != nil {
			return fmt.Errorf("insert message %q: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("thread committed",
		"thread_id", thread.ID, "messages", len(thread.Messages), "evictions", len(evictions))
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Compile-time interface check.
var _ usecase.ThreadStore = (*SQLiteStore)(nil)
