// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps each conversation in <BaseDir>/<id>.json.
type FileStore struct {
	// BaseDir holds the JSON documents and per-conversation upload dirs.
	BaseDir string

	mu sync.Mutex
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{BaseDir: baseDir}, nil
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save writes the conversation atomically.
func (s *FileStore) Save(_ context.Context, conv *model.Conversation) error {
	if !ValidID(conv.ID) {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv.UpdatedAt = time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	return util.AtomicWriteFile(s.filePath(conv.ID), data, 0644)
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load reads a conversation by id.
func (s *FileStore) Load(_ context.Context, id string) (*model.Conversation, error) {
	if !ValidID(id) {
		return nil, ErrConversationNotFound
	}
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	if conv.Messages == nil {
		conv.Messages = []*model.Message{}
	}
	return &conv, nil
}

// List returns all readable conversations, most recently updated first.
// Corrupt documents are skipped.
func (s *FileStore) List(ctx context.Context) ([]model.ConversationMeta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.ConversationMeta{}, nil
		}
		return nil, err
	}

	metas := []model.ConversationMeta{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		conv, err := s.Load(ctx, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil || conv.ID == "" {
			continue
		}
		metas = append(metas, conv.GetMeta())
	}

	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes the document and the conversation's upload directory.
func (s *FileStore) Delete(_ context.Context, id string) error {
	if !ValidID(id) {
		return ErrConversationNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrConversationNotFound
		}
		return err
	}
	return removeFiles(filepath.Join(s.BaseDir, id))
}

// FilesDir returns <BaseDir>/<id>/files.
func (s *FileStore) FilesDir(id string) string {
	return filepath.Join(s.BaseDir, id, "files")
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}
