// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/forkchat/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chats (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    bookmarked INTEGER NOT NULL DEFAULT 0,
    body TEXT NOT NULL
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_chats_updated_at ON chats(updated_at);
`

// timeLayout is fixed width so updated_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore keeps conversations as JSON documents in one SQLite table.
// Listing reads only the metadata columns.
type SQLiteStore struct {
	db       *sql.DB
	filesDir string
}

// NewSQLiteStore opens (creating if needed) the database at dbPath. Uploads
// live under filesRoot.
func NewSQLiteStore(filesRoot, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, filesDir: filesRoot}, nil
}

// Save upserts the conversation.
func (s *SQLiteStore) Save(ctx context.Context, conv *model.Conversation) error {
	if !ValidID(conv.ID) {
		return ErrInvalidID
	}
	conv.UpdatedAt = time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}
	body, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO chats (id, title, created_at, updated_at, bookmarked, body)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title,
    updated_at = excluded.updated_at,
    bookmarked = excluded.bookmarked,
    body = excluded.body`,
		conv.ID, conv.GetTitle(),
		conv.CreatedAt.UTC().Format(timeLayout), conv.UpdatedAt.Format(timeLayout),
		conv.Bookmarked, string(body))
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// Load reads a conversation by id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*model.Conversation, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM chats WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	var conv model.Conversation
	if err := json.Unmarshal([]byte(body), &conv); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	if conv.Messages == nil {
		conv.Messages = []*model.Message{}
	}
	return &conv, nil
}

// List returns metadata for all conversations, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]model.ConversationMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at, bookmarked FROM chats ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	metas := []model.ConversationMeta{}
	for rows.Next() {
		var (
			meta             model.ConversationMeta
			created, updated string
		)
		if err := rows.Scan(&meta.ID, &meta.Title, &created, &updated, &meta.Bookmarked); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		meta.CreatedAt, _ = time.Parse(timeLayout, created)
		meta.UpdatedAt, _ = time.Parse(timeLayout, updated)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// Delete removes the row and the conversation's upload directory.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	if !ValidID(id) {
		return nil
	}
	return removeFiles(filepath.Join(s.filesDir, id))
}

// FilesDir returns <root>/<id>/files.
func (s *SQLiteStore) FilesDir(id string) string {
	return filepath.Join(s.filesDir, id, "files")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
