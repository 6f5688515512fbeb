// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"

	// roleAssistant is accepted on input for records written by
	// OpenAI-shaped tools and normalized to RoleModel.
	roleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Normalize maps accepted aliases onto the canonical roles.
func (r Role) Normalize() Role {
	if r == roleAssistant {
		return RoleModel
	}
	return r
}

// IsValid reports whether the role is one the conversation can hold.
func (r Role) IsValid() bool {
	switch r.Normalize() {
	case RoleUser, RoleModel:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r.Normalize() {
	case RoleUser:
		return "You"
	case RoleModel:
		return "Model"
	default:
		return string(r)
	}
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// MediaSettings holds optional settings for time-based media attachments.
type MediaSettings struct {
	ClipStart string  `json:"clip_start,omitempty"` // e.g. "0:05"
	ClipEnd   string  `json:"clip_end,omitempty"`
	FPS       float64 `json:"fps,omitempty"`
}

// IsZero reports whether no setting has been chosen.
func (s *MediaSettings) IsZero() bool {
	return s == nil || (s.ClipStart == "" && s.ClipEnd == "" && s.FPS == 0)
}

// AttachmentRef is the metadata returned by the upload endpoint for one file.
type AttachmentRef struct {
	ID          string         `json:"id,omitempty"`
	Filename    string         `json:"filename"` // stored name, unique per conversation
	DisplayName string         `json:"name"`
	MimeType    string         `json:"type"`
	Size        int64          `json:"size"`
	Media       *MediaSettings `json:"media,omitempty"`
}

// Category returns the top-level mime category ("image", "video", ...).
func (a AttachmentRef) Category() string {
	if i := strings.IndexByte(a.MimeType, '/'); i > 0 {
		return a.MimeType[:i]
	}
	return a.MimeType
}

// IsTimeBased reports whether clip and sampling settings apply.
func (a AttachmentRef) IsTimeBased() bool {
	c := a.Category()
	return c == "video" || c == "audio"
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	ID          string          `json:"id"`
	Role        Role            `json:"role"`
	Content     string          `json:"content"`
	Reasoning   string          `json:"thoughts"`
	Attachments []AttachmentRef `json:"files,omitempty"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewModelMessage creates an empty model message, used as the streaming
// placeholder.
func NewModelMessage() *Message {
	return NewMessage(RoleModel, "")
}

// IsUser reports whether the message was written by the user.
func (m *Message) IsUser() bool {
	return m.Role.Normalize() == RoleUser
}

// IsModel reports whether the message was produced by the model.
func (m *Message) IsModel() bool {
	return m.Role.Normalize() == RoleModel
}

// IsEmpty returns true if the message carries no text and no files.
func (m *Message) IsEmpty() bool {
	return m.Content == "" && m.Reasoning == "" && len(m.Attachments) == 0
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Attachments != nil {
		c.Attachments = make([]AttachmentRef, len(m.Attachments))
		for i, a := range m.Attachments {
			c.Attachments[i] = a
			if a.Media != nil {
				media := *a.Media
				c.Attachments[i].Media = &media
			}
		}
	}
	return &c
}

// Preview returns a truncated single-line preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := strings.Join(strings.Fields(m.Content), " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// CloneMessages deep-copies a message sequence. A nil input yields an empty,
// non-nil slice so stored tails always serialize as [].
func CloneMessages(msgs []*Message) []*Message {
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		out = append(out, m.Clone())
	}
	return out
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}
