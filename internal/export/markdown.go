// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/forkchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, errors.New("conversation is nil")
	}

	var sb strings.Builder
	title := conv.GetTitle()

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(title))
		fmt.Fprintf(&sb, "model: %s\n", escapeYAML(conv.Settings.Model))
		fmt.Fprintf(&sb, "date: %s\n", conv.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "updated: %s\n", conv.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(conv.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", e.options.now().Format(time.RFC3339))
		sb.WriteString("generator: forkchat\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))

	if e.options.IncludeMetadata {
		sb.WriteString("## Settings\n\n")
		fmt.Fprintf(&sb, "- **Provider**: %s\n", conv.Settings.Provider)
		fmt.Fprintf(&sb, "- **Model**: %s\n", conv.Settings.Model)
		fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(conv.CreatedAt))
		if si := strings.TrimSpace(conv.Settings.SystemInstructions); si != "" {
			sb.WriteString("- **System instructions**:\n\n")
			sb.WriteString(quote(si))
			sb.WriteString("\n")
		}
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("## Conversation\n\n")
	if len(conv.Messages) == 0 {
		sb.WriteString("*No messages.*\n")
	}
	e.writeMessages(&sb, conv.Messages, "###")

	if e.options.IncludeBranches {
		e.writeAlternatives(&sb, conv)
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from forkchat on %s*\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// SECTIONS
// =============================================================================

func (e *MarkdownExporter) writeMessages(sb *strings.Builder, msgs []*model.Message, heading string) {
	for i, msg := range msgs {
		label := msg.Role.DisplayName()
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			fmt.Fprintf(sb, "%s %s <sub>%s</sub>\n\n", heading, label, msg.CreatedAt.Format("15:04:05"))
		} else {
			fmt.Fprintf(sb, "%s %s\n\n", heading, label)
		}

		if e.options.IncludeReasoning && strings.TrimSpace(msg.Reasoning) != "" {
			sb.WriteString("<details>\n<summary>Reasoning</summary>\n\n")
			sb.WriteString(strings.TrimSpace(msg.Reasoning))
			sb.WriteString("\n\n</details>\n\n")
		}

		if content := strings.TrimSpace(msg.Content); content != "" {
			sb.WriteString(content)
			sb.WriteString("\n\n")
		}

		for _, a := range msg.Attachments {
			fmt.Fprintf(sb, "- Attachment: `%s` (%s, %s)%s\n",
				attachmentName(a), a.MimeType, humanize.Bytes(uint64(a.Size)), mediaNote(a.Media))
		}
		if len(msg.Attachments) > 0 {
			sb.WriteString("\n")
		}

		if i < len(msgs)-1 {
			sb.WriteString("---\n\n")
		}
	}
}

// writeAlternatives lists every inactive branch, in conversation order of
// its anchor.
func (e *MarkdownExporter) writeAlternatives(sb *strings.Builder, conv *model.Conversation) {
	wrote := false
	for i, anchor := range conv.Messages {
		bp, ok := conv.Branches[anchor.ID]
		if !ok || !bp.Valid() || bp.Len() < 2 {
			continue
		}
		for j, b := range bp.Branches {
			if j == bp.Active {
				continue
			}
			if !wrote {
				sb.WriteString("\n---\n\n## Alternative branches\n\n")
				wrote = true
			}
			fmt.Fprintf(sb, "### After message %d, branch %d of %d\n\n", i+1, j+1, bp.Len())
			sb.WriteString(quote(anchor.Preview(80)))
			sb.WriteString("\n\n")
			if len(b.Tail) == 0 {
				sb.WriteString("*Empty branch.*\n\n")
				continue
			}
			e.writeMessages(sb, b.Tail, "####")
		}
	}
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func attachmentName(a model.AttachmentRef) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Filename
}

func mediaNote(s *model.MediaSettings) string {
	if s.IsZero() {
		return ""
	}
	var parts []string
	if s.ClipStart != "" || s.ClipEnd != "" {
		parts = append(parts, fmt.Sprintf("clip %s-%s", s.ClipStart, s.ClipEnd))
	}
	if s.FPS > 0 {
		parts = append(parts, fmt.Sprintf("%g fps", s.FPS))
	}
	return ", " + strings.Join(parts, ", ")
}

func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer("#", `\#`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`)
	return r.Replace(s)
}

// escapeYAML quotes values containing YAML syntax.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
		return `"` + r.Replace(s) + `"`
	}
	return s
}
