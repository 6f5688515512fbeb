// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// DefaultTitle is the title given to freshly created conversations.
const DefaultTitle = "Untitled chat"

// =============================================================================
// SETTINGS
// =============================================================================

// Settings are the per-conversation generation settings. The service builds
// the upstream prompt from them; the client only edits and persists them.
type Settings struct {
	Provider           string         `json:"provider"`
	Model              string         `json:"model"`
	SystemInstructions string         `json:"system_instructions"`
	Params             map[string]any `json:"params"`
}

// DefaultSettings returns the settings a new conversation starts with.
func DefaultSettings() Settings {
	return Settings{
		Provider: "openrouter",
		Model:    "google/gemini-3-pro-preview",
		Params: map[string]any{
			"temperature": 1.0,
			"top_p":       1.0,
			"max_tokens":  4096,
		},
	}
}

// Clone returns a copy whose Params map can be mutated independently.
func (s Settings) Clone() Settings {
	c := s
	if s.Params != nil {
		c.Params = make(map[string]any, len(s.Params))
		for k, v := range s.Params {
			c.Params[k] = v
		}
	}
	return c
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds the ordered message sequence and the branch side index.
// Messages is the single source of truth for what is currently displayed.
type Conversation struct {
	ID         string                  `json:"id"`
	Title      string                  `json:"title"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
	Bookmarked bool                    `json:"bookmarked,omitempty"`
	Settings   Settings                `json:"settings"`
	Messages   []*Message              `json:"messages"`
	Branches   map[string]*BranchPoint `json:"branches,omitempty"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        NewID(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Settings:  DefaultSettings(),
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message to the conversation.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.touch()
}

// IndexOf returns the position of the message with the given ID, or -1.
func (c *Conversation) IndexOf(id string) int {
	for i, msg := range c.Messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

// MessageByID returns a message by its ID, or nil.
func (c *Conversation) MessageByID(id string) *Message {
	if i := c.IndexOf(id); i >= 0 {
		return c.Messages[i]
	}
	return nil
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// RemoveMessage removes a message by ID.
func (c *Conversation) RemoveMessage(id string) bool {
	i := c.IndexOf(id)
	if i < 0 {
		return false
	}
	c.Messages = append(c.Messages[:i:i], c.Messages[i+1:]...)
	c.touch()
	return true
}

// Suffix returns the live messages that follow the anchor. The returned
// slice shares elements with the conversation; clone before storing it.
func (c *Conversation) Suffix(anchorID string) ([]*Message, bool) {
	i := c.IndexOf(anchorID)
	if i < 0 {
		return nil, false
	}
	return c.Messages[i+1:], true
}

// TruncateAfter drops every message after the anchor, keeping the anchor.
func (c *Conversation) TruncateAfter(anchorID string) bool {
	i := c.IndexOf(anchorID)
	if i < 0 {
		return false
	}
	c.Messages = c.Messages[: i+1 : i+1]
	c.touch()
	return true
}

// ReplaceSuffix swaps the live suffix after the anchor for the given tail.
// The tail is installed as given; callers pass a fresh clone.
func (c *Conversation) ReplaceSuffix(anchorID string, tail []*Message) bool {
	i := c.IndexOf(anchorID)
	if i < 0 {
		return false
	}
	msgs := make([]*Message, 0, i+1+len(tail))
	msgs = append(msgs, c.Messages[:i+1]...)
	msgs = append(msgs, tail...)
	c.Messages = msgs
	c.touch()
	return true
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return DefaultTitle
}

func (c *Conversation) touch() {
	c.UpdatedAt = time.Now().UTC()
}

// =============================================================================
// CLONING & METADATA
// =============================================================================

// Clone creates a deep copy of the conversation, including branch tails.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Settings = c.Settings.Clone()
	clone.Messages = CloneMessages(c.Messages)
	if c.Branches != nil {
		clone.Branches = make(map[string]*BranchPoint, len(c.Branches))
		for anchor, bp := range c.Branches {
			clone.Branches[anchor] = bp.Clone()
		}
	}
	return &clone
}

// ConversationMeta holds lightweight metadata for listing.
type ConversationMeta struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Bookmarked bool      `json:"bookmarked"`
}

// GetMeta returns metadata about the conversation.
func (c *Conversation) GetMeta() ConversationMeta {
	return ConversationMeta{
		ID:         c.ID,
		Title:      c.GetTitle(),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		Bookmarked: c.Bookmarked,
	}
}
