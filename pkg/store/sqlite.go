package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/Athemis/squidbot/pkg/providers"
)

// SQLiteStore keeps the conversation log and the memory document in a
// single SQLite database. SQLite serializes writers, so concurrent appends
// from multiple channels and sub-agent jobs need no locking here.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	role          TEXT NOT NULL,
	content       TEXT NOT NULL,
	reasoning     TEXT NOT NULL DEFAULT '',
	tool_calls    TEXT NOT NULL DEFAULT '',
	tool_call_id  TEXT NOT NULL DEFAULT '',
	channel       TEXT NOT NULL DEFAULT '',
	sender        TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);

CREATE TABLE IF NOT EXISTS memory_document (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	content    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger = logger.With().Str("component", "store").Logger()
	logger.Info().Str("path", path).Msg("History store opened")

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append adds one entry to the log.
func (s *SQLiteStore) Append(ctx context.Context, msg providers.Message) error {
	if msg.Role == "" {
		return fmt.Errorf("message role is required")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	toolCalls := ""
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to encode tool calls: %w", err)
		}
		toolCalls = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (role, content, reasoning, tool_calls, tool_call_id, channel, sender, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.Role, msg.Content, msg.Reasoning, toolCalls, msg.ToolCallID, msg.Channel, msg.Sender, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// LoadRecent returns at most n of the most recent entries in chronological
// order.
func (s *SQLiteStore) LoadRecent(ctx context.Context, n int) ([]providers.Message, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, reasoning, tool_calls, tool_call_id, channel, sender, created_at
		FROM (
			SELECT * FROM messages ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// SearchHistory returns entries whose content matches the query, most
// recent first. Matching is a substring scan over the full log; it backs
// the explicit history-search tool, never automatic retrieval.
func (s *SQLiteStore) SearchHistory(ctx context.Context, query string, limit int) ([]providers.Message, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, reasoning, tool_calls, tool_call_id, channel, sender, created_at
		FROM messages
		WHERE content LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY id DESC LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search history: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// LoadMemoryDocument returns the memory document, or "" when unset.
func (s *SQLiteStore) LoadMemoryDocument(ctx context.Context) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM memory_document WHERE id = 1`).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load memory document: %w", err)
	}
	return content, nil
}

// SaveMemoryDocument replaces the memory document wholesale.
func (s *SQLiteStore) SaveMemoryDocument(ctx context.Context, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_document (id, content, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		text, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save memory document: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]providers.Message, error) {
	var out []providers.Message

	for rows.Next() {
		var msg providers.Message
		var toolCalls string
		if err := rows.Scan(
			&msg.Role, &msg.Content, &msg.Reasoning, &toolCalls,
			&msg.ToolCallID, &msg.Channel, &msg.Sender, &msg.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return out, nil
}
