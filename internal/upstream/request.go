// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upstream

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/forkchat/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message is one chat message in the upstream format. Content is either a
// string or a []Part.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Part is one element of multi-part content.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries a data URL for media content.
type ImageURL struct {
	URL string `json:"url"`
}

// toolToggles are UI switches stored in params that the upstream API does
// not accept.
var toolToggles = []string{"structured_output", "code_execution", "url_context"}

// reserved body fields that params may not override.
var reserved = map[string]bool{"model": true, "messages": true, "stream": true}

// textExtensions are inlined as text regardless of their mime type.
var textExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".html": true, ".htm": true, ".css": true, ".scss": true,
	".json": true, ".xml": true, ".yaml": true, ".yml": true, ".toml": true,
	".ini": true, ".cfg": true, ".conf": true, ".md": true, ".txt": true,
	".csv": true, ".log": true, ".sh": true, ".bash": true, ".zsh": true,
	".bat": true, ".ps1": true, ".c": true, ".cpp": true, ".h": true,
	".hpp": true, ".java": true, ".kt": true, ".go": true, ".rs": true,
	".rb": true, ".php": true, ".pl": true, ".r": true, ".sql": true,
	".swift": true, ".dart": true, ".lua": true, ".ex": true, ".exs": true,
	".vue": true, ".svelte": true, ".astro": true, ".env": true,
	".gitignore": true, ".dockerfile": true,
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder turns a conversation into a request body.
type Builder struct {
	Catalog model.Catalog

	// FilesDir locates a conversation's uploaded files.
	FilesDir func(convID string) string
}

// Body returns the JSON request body for conv.
func (b Builder) Body(conv *model.Conversation) map[string]any {
	s := conv.Settings
	body := map[string]any{
		"model":    ResolveModel(s),
		"messages": b.Messages(conv),
		"stream":   true,
	}
	if sys := strings.TrimSpace(s.SystemInstructions); sys != "" {
		body["system"] = sys
	}

	params := make(map[string]any, len(s.Params))
	for k, v := range s.Params {
		params[k] = v
	}
	thinking, _ := params["thinking"].(bool)
	delete(params, "thinking")
	for _, k := range toolToggles {
		delete(params, k)
	}
	for k, v := range params {
		if !reserved[k] {
			body[k] = v
		}
	}
	if thinking {
		body["reasoning"] = map[string]any{"effort": "high"}
	}
	return body
}

// ResolveModel returns the upstream model id. Ids that already name a vendor
// ("vendor/model") are used as is; bare ids get a non-openrouter provider
// prefix.
func ResolveModel(s model.Settings) string {
	provider := strings.TrimSpace(s.Provider)
	id := strings.TrimSpace(s.Model)
	if id == "" {
		id = model.DefaultSettings().Model
	}
	if strings.Contains(id, "/") {
		return id
	}
	if provider != "" && provider != "openrouter" {
		return provider + "/" + id
	}
	return id
}

// Messages converts the live message sequence.
func (b Builder) Messages(conv *model.Conversation) []Message {
	caps := b.Catalog.Capabilities(conv.Settings)
	dir := ""
	if b.FilesDir != nil {
		dir = b.FilesDir(conv.ID)
	}

	out := make([]Message, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		role, ok := apiRole(msg.Role)
		if !ok {
			continue
		}
		var extra []Part
		for _, att := range msg.Attachments {
			if part, ok := attachmentPart(dir, att, caps); ok {
				extra = append(extra, part)
			}
		}
		if len(extra) == 0 {
			out = append(out, Message{Role: role, Content: msg.Content})
			continue
		}
		parts := make([]Part, 0, len(extra)+1)
		if msg.Content != "" {
			parts = append(parts, Part{Type: "text", Text: msg.Content})
		}
		out = append(out, Message{Role: role, Content: append(parts, extra...)})
	}
	return out
}

func apiRole(r model.Role) (string, bool) {
	switch r.Normalize() {
	case model.RoleUser:
		return "user", true
	case model.RoleModel:
		return "assistant", true
	}
	return "", false
}

func attachmentPart(dir string, att model.AttachmentRef, caps map[string]bool) (Part, bool) {
	name := att.DisplayName
	if name == "" {
		name = att.Filename
	}
	path := filepath.Join(dir, filepath.Base(att.Filename))
	if _, err := os.Stat(path); err != nil {
		return Part{}, false
	}

	switch cat := att.Category(); {
	case cat == "image" || cat == "video" || cat == "audio":
		if !caps[cat] {
			return Part{}, false
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Part{}, false
		}
		url := "data:" + att.MimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
		return Part{Type: "image_url", ImageURL: &ImageURL{URL: url}}, true

	case IsTextFile(name, att.MimeType):
		data, err := os.ReadFile(path)
		if err != nil {
			return Part{}, false
		}
		text := strings.ToValidUTF8(string(data), "�")
		return Part{Type: "text", Text: fmt.Sprintf("--- File: %s ---\n%s\n--- End of %s ---", name, text, name)}, true

	default:
		return Part{Type: "text", Text: fmt.Sprintf(
			"[Attached file: %s (%s, %d bytes) - binary file, content not shown]", name, att.MimeType, att.Size)}, true
	}
}

// IsTextFile reports whether a file should be inlined as text.
func IsTextFile(name, mimeType string) bool {
	if textExtensions[strings.ToLower(filepath.Ext(name))] {
		return true
	}
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	for _, k := range []string{"json", "xml", "yaml", "javascript", "typescript"} {
		if strings.Contains(mimeType, k) {
			return true
		}
	}
	return false
}
