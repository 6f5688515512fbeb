// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/ui/styles"
	"github.com/jeranaias/forkchat/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderFooter(),
	)
}

// layout sizes the viewport to the space the header and footer leave.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	h := m.height - lipgloss.Height(m.renderHeader()) - lipgloss.Height(m.renderFooter())
	if h < 1 {
		h = 1
	}
	m.viewport.Height = h
}

// refresh rebuilds the transcript and keeps the newest text in view while
// the controller is following.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	if m.ctl.Following() {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderHeader() string {
	title, modelID := model.DefaultTitle, ""
	if m.conv != nil {
		title = m.conv.GetTitle()
		modelID = m.conv.Settings.Model
	}
	line := m.theme.HeaderTitle.Render("forkchat") + "  " + util.OneLine(title)
	if modelID != "" {
		line += "  " + m.theme.Muted.Render(modelID)
	}
	return m.theme.Header.Width(m.width).MaxHeight(1).Render(line)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m *Model) renderTranscript() string {
	if m.conv == nil || len(m.conv.Messages) == 0 {
		return m.theme.Muted.Render("No messages yet. Type below and press Enter.")
	}
	sel := m.selected()
	blocks := make([]string, 0, len(m.conv.Messages))
	for _, msg := range m.conv.Messages {
		blocks = append(blocks, m.renderMessage(msg, sel != nil && msg.ID == sel.ID))
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderMessage(msg *model.Message, selected bool) string {
	width := m.width - 4
	if width < 10 {
		width = 10
	}

	var b strings.Builder
	if msg.IsUser() {
		b.WriteString(m.theme.UserLabel.Render(msg.Role.DisplayName()))
	} else {
		b.WriteString(m.theme.ModelLabel.Render(msg.Role.DisplayName()))
		if ind := m.branchIndicator(msg.ID); ind != "" {
			b.WriteString(" " + ind)
		}
	}
	b.WriteString("\n")

	content, reasoning, streaming := msg.Content, msg.Reasoning, false
	if m.live != nil && m.live.MessageID == msg.ID {
		content, reasoning, streaming = m.live.Answer, m.live.Reasoning, true
	}

	wrap := lipgloss.NewStyle().Width(width)
	if reasoning != "" {
		b.WriteString(m.theme.Reasoning.Width(width).Render(strings.TrimSpace(reasoning)))
		b.WriteString("\n")
	}
	switch {
	case streaming && content == "" && reasoning == "":
		b.WriteString(m.spinner.View())
	case streaming:
		b.WriteString(wrap.Render(content))
	case content != "":
		b.WriteString(m.renderMarkdown(msg.ID, content, width))
	}
	for _, a := range msg.Attachments {
		b.WriteString("\n" + m.theme.Attachment.Render(describeAttachment(a)))
	}

	gutter := m.theme.Unselected
	if selected {
		gutter = m.theme.Selected
	}
	return gutter.Render(strings.TrimRight(b.String(), "\n"))
}

// renderMarkdown renders finished text, caching per message.
func (m *Model) renderMarkdown(id, content string, width int) string {
	if r, ok := m.rendered[id]; ok && r.content == content && r.width == width {
		return r.out
	}
	out := lipgloss.NewStyle().Width(width).Render(content)
	if m.markdown != nil {
		if md, err := m.markdown.Render(content); err == nil {
			out = strings.Trim(md, "\n")
		}
	}
	m.rendered[id] = renderedMessage{content: content, width: width, out: out}
	return out
}

// branchIndicator returns "‹ i/n ›" when msgID's anchor has alternatives.
func (m *Model) branchIndicator(msgID string) string {
	active, total, ok := m.ctl.Position(msgID)
	if !ok || total < 2 {
		return ""
	}
	return m.theme.BranchIndicator.Render(fmt.Sprintf("‹ %d/%d ›", active, total))
}

func describeAttachment(a model.AttachmentRef) string {
	name := a.DisplayName
	if name == "" {
		name = a.Filename
	}
	s := fmt.Sprintf("[file] %s (%s, %s)", name, a.MimeType, humanize.Bytes(uint64(a.Size)))
	return s + describeMedia(a.Media)
}

func describeMedia(s *model.MediaSettings) string {
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
	return " " + strings.Join(parts, ", ")
}

// =============================================================================
// FOOTER
// =============================================================================

func (m *Model) renderFooter() string {
	var rows []string
	if len(m.pending) > 0 {
		rows = append(rows, m.renderPending())
	}
	if m.prompt != nil {
		rows = append(rows, m.renderPrompt())
	}
	rows = append(rows, m.input.View(), m.renderStatus(), m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m *Model) renderPending() string {
	names := make([]string, len(m.pending))
	for i, p := range m.pending {
		s := fmt.Sprintf("%d:%s (%s)", i+1, p.file.Name, humanize.Bytes(uint64(p.file.Size())))
		names[i] = s + describeMedia(p.media)
	}
	line := "Attached  " + strings.Join(names, "  ")
	return m.theme.Attachment.Render(util.TruncateWidth(line, m.width))
}

func (m *Model) renderPrompt() string {
	p := m.prompt.prompt
	q := fmt.Sprintf("%s is %s, over the %s limit.",
		p.Filename, humanize.Bytes(uint64(p.Size)), humanize.Bytes(uint64(p.Budget)))
	opts := "[c]onvert  [s]kip"
	if p.AllowKeep {
		opts = "[c]onvert  [k]eep original  [s]kip"
	}
	return m.theme.Prompt.Render(q + "\n" + opts)
}

func (m *Model) renderStatus() string {
	var state string
	switch {
	case m.ctl.Busy():
		state = m.theme.StatusBusy.Render(m.spinner.View() + " generating")
	case m.working:
		state = m.theme.StatusBusy.Render(m.spinner.View() + " preparing")
	default:
		state = m.theme.StatusIdle.Render(styles.StatusIndicators.Success + " ready")
	}

	parts := []string{state}
	if sel := m.selected(); sel != nil {
		if ind := m.branchIndicator(sel.ID); ind != "" {
			parts = append(parts, ind)
		}
	}
	switch {
	case m.err != nil:
		parts = append(parts, m.theme.Error.Render(styles.StatusIndicators.Error+" "+util.OneLine(m.err.Error())))
	case m.notice != "":
		parts = append(parts, m.theme.Notice.Render(util.OneLine(m.notice)))
	}
	line := strings.Join(parts, "  ")
	return m.theme.StatusBar.Width(m.width).MaxHeight(1).Render(line)
}
