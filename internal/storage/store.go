// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"

	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/util"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store reads and writes whole conversations. Each call is atomic from the
// caller's perspective.
type Store interface {
	// List returns metadata for every readable conversation, newest first.
	List(ctx context.Context) ([]model.ConversationMeta, error)

	// Load returns the conversation or ErrConversationNotFound.
	Load(ctx context.Context, id string) (*model.Conversation, error)

	// Save writes the conversation, stamping UpdatedAt.
	Save(ctx context.Context, conv *model.Conversation) error

	// Delete removes the conversation and its uploaded files.
	Delete(ctx context.Context, id string) error

	// FilesDir returns the directory holding the conversation's uploads.
	FilesDir(id string) string

	// Close releases resources.
	Close() error
}

// Open creates a store of the named kind ("file" or "sqlite") rooted at dir.
func Open(kind, dir string) (Store, error) {
	switch kind {
	case "", "file":
		return NewFileStore(dir)
	case "sqlite":
		return NewSQLiteStore(dir, filepath.Join(dir, "chats.db"))
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

// ErrInvalidID is returned for ids that could escape the data directory.
var ErrInvalidID = &ConversationError{Message: "invalid conversation id"}

// ConversationError represents a conversation-related error.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// ValidID reports whether id is safe to use as a file name.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." || len(id) > 128 {
		return false
	}
	return !strings.ContainsAny(id, `/\:`) && !strings.Contains(id, "..")
}

// =============================================================================
// SEARCH
// =============================================================================

// SearchMode selects which fields a search covers.
type SearchMode string

const (
	SearchTitle   SearchMode = "title"
	SearchContent SearchMode = "content"
	SearchAll     SearchMode = "all"
)

// Snippet context around a content match, in characters.
const (
	snippetBefore = 30
	snippetAfter  = 50
)

// SearchResult is one matching conversation.
type SearchResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Search finds conversations whose title or message content contains query,
// case-insensitively. An empty query matches nothing.
func Search(ctx context.Context, s Store, query string, mode SearchMode) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	results := []SearchResult{}
	if query == "" {
		return results, nil
	}
	fold := cases.Fold()
	folded := fold.String(query)
	switch mode {
	case SearchTitle, SearchContent, SearchAll:
	default:
		mode = SearchAll
	}

	metas, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, meta := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		titleMatch := strings.Contains(fold.String(meta.Title), folded)

		snippet, contentMatch := "", false
		if mode != SearchTitle {
			conv, err := s.Load(ctx, meta.ID)
			if err != nil {
				continue
			}
			for _, msg := range conv.Messages {
				if snip := util.Snippet(msg.Content, query, snippetBefore, snippetAfter); snip != "" {
					snippet, contentMatch = snip, true
					break
				}
			}
		}

		switch {
		case mode == SearchTitle && titleMatch:
			results = append(results, SearchResult{ID: meta.ID, Title: meta.Title})
		case mode == SearchContent && contentMatch:
			results = append(results, SearchResult{ID: meta.ID, Title: meta.Title, Snippet: snippet})
		case mode == SearchAll && (titleMatch || contentMatch):
			results = append(results, SearchResult{ID: meta.ID, Title: meta.Title, Snippet: snippet})
		}
	}
	return results, nil
}

// removeFiles deletes a conversation's upload directory if present.
func removeFiles(dir string) error {
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove files: %w", err)
	}
	return nil
}
