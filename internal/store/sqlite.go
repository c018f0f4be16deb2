// ABOUTME: SQLite transcript archive using modernc.org/sqlite
// ABOUTME: Persists conversation snapshots with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/coven-chat/internal/wire"
)

// ErrNotFound is returned when a conversation has no archived snapshot.
var ErrNotFound = errors.New("conversation not found")

// Archive persists conversation transcripts to SQLite. Each SaveSnapshot
// replaces the conversation's transcript wholesale, mirroring how the
// engine treats the message list.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// ConversationInfo summarizes one archived conversation.
type ConversationInfo struct {
	Key       string
	Messages  int
	UpdatedAt time.Time
}

// Open creates or opens the archive at the given path. Parent directories
// are created if needed.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	a := &Archive{db: db, logger: logger}

	if err := a.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("transcript archive opened", "path", path)
	return a, nil
}

// createSchema creates the database tables if they don't exist
func (a *Archive) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			key        TEXT PRIMARY KEY,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			conversation_key TEXT NOT NULL,
			seq              INTEGER NOT NULL,
			id               TEXT NOT NULL,
			role             TEXT NOT NULL,
			parts_json       TEXT NOT NULL,

			PRIMARY KEY (conversation_key, seq),
			FOREIGN KEY (conversation_key) REFERENCES conversations(key) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_key, seq);
	`

	_, err := a.db.Exec(schema)
	return err
}

// Close closes the database connection
func (a *Archive) Close() error {
	a.logger.Info("closing transcript archive")
	return a.db.Close()
}

// SaveSnapshot replaces the archived transcript for a conversation with
// the given messages. An empty slice archives an empty conversation.
func (a *Archive) SaveSnapshot(ctx context.Context, key string, msgs []wire.Message) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (key, updated_at) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET updated_at = excluded.updated_at
	`, key, now); err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_key = ?`, key); err != nil {
		return fmt.Errorf("clearing old transcript: %w", err)
	}

	for seq, msg := range msgs {
		parts, err := json.Marshal(msg.Parts)
		if err != nil {
			return fmt.Errorf("encoding parts for message %s: %w", msg.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_key, seq, id, role, parts_json)
			VALUES (?, ?, ?, ?, ?)
		`, key, seq, msg.ID, string(msg.Role), string(parts)); err != nil {
			return fmt.Errorf("inserting message %s: %w", msg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}

	a.logger.Debug("archived snapshot", "conversation", key, "messages", len(msgs))
	return nil
}

// Snapshot returns the archived transcript for a conversation in order.
// Returns ErrNotFound if the conversation was never archived.
func (a *Archive) Snapshot(ctx context.Context, key string) ([]wire.Message, error) {
	var exists int
	err := a.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE key = ?`, key).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, role, parts_json
		FROM messages
		WHERE conversation_key = ?
		ORDER BY seq ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}
	defer rows.Close()

	var msgs []wire.Message
	for rows.Next() {
		var msg wire.Message
		var role, partsJSON string

		if err := rows.Scan(&msg.ID, &role, &partsJSON); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.Role = wire.Role(role)
		if err := json.Unmarshal([]byte(partsJSON), &msg.Parts); err != nil {
			return nil, fmt.Errorf("decoding parts for message %s: %w", msg.ID, err)
		}
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}

// Conversations lists archived conversations, most recently updated first.
func (a *Archive) Conversations(ctx context.Context) ([]ConversationInfo, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT c.key, c.updated_at, COUNT(m.seq)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_key = c.key
		GROUP BY c.key
		ORDER BY c.updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var infos []ConversationInfo
	for rows.Next() {
		var info ConversationInfo
		var updatedAtStr string

		if err := rows.Scan(&info.Key, &updatedAtStr, &info.Messages); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		info.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return infos, nil
}
