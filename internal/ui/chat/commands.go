// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/forkchat/internal/model"
)

const commandHelp = "/attach <path>  /detach [n]  /clip <start> <end>  /fps <n>  /delete  /retry  /quit"

// timestampPattern accepts seconds, m:ss or h:mm:ss.
var timestampPattern = regexp.MustCompile(`^(\d+|\d+:[0-5]\d|\d+:[0-5]\d:[0-5]\d)$`)

// parseCommand splits "/name arg..." into its name and raw argument text.
func parseCommand(line string) (name, rest string) {
	line = strings.TrimPrefix(strings.TrimSpace(line), "/")
	name, rest, _ = strings.Cut(line, " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

func validTimestamp(s string) bool {
	return timestampPattern.MatchString(s)
}

// expandPath resolves a leading ~ and strips surrounding quotes.
func expandPath(p string) string {
	if len(p) >= 2 && (p[0] == '"' || p[0] == '\'') && p[len(p)-1] == p[0] {
		p = p[1 : len(p)-1]
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// runCommand executes a slash command typed into the input.
func (m *Model) runCommand(line string) tea.Cmd {
	m.err = nil
	m.notice = ""
	name, rest := parseCommand(line)

	switch name {
	case "help", "?":
		m.notice = commandHelp
		m.help.ShowAll = true

	case "attach", "a":
		if rest == "" {
			m.notice = "Usage: /attach <path>"
			return nil
		}
		return m.attach(expandPath(rest))

	case "detach":
		m.detach(rest)

	case "clip":
		args := strings.Fields(rest)
		if len(args) != 2 || !validTimestamp(args[0]) || !validTimestamp(args[1]) {
			m.notice = "Usage: /clip <start> <end>, e.g. /clip 0:05 1:30"
			return nil
		}
		m.setMedia(func(s *model.MediaSettings) {
			s.ClipStart, s.ClipEnd = args[0], args[1]
		})

	case "fps":
		fps, err := strconv.ParseFloat(rest, 64)
		if err != nil || fps <= 0 || fps > 60 {
			m.notice = "Usage: /fps <n> with 0 < n <= 60"
			return nil
		}
		m.setMedia(func(s *model.MediaSettings) { s.FPS = fps })

	case "delete":
		return m.onSelected("delete", m.ctl.DeleteMessage)

	case "retry":
		if m.ctl.Busy() {
			m.notice = "Wait for the current reply to finish"
			return nil
		}
		return m.run("retry", m.ctl.Regenerate)

	case "quit", "q":
		m.ctl.Cancel()
		m.quitting = true
		return tea.Quit

	default:
		m.notice = fmt.Sprintf("Unknown command /%s. %s", name, commandHelp)
	}
	return nil
}

// detach removes the n-th queued attachment (1-based), or all of them.
func (m *Model) detach(arg string) {
	if len(m.pending) == 0 {
		m.notice = "No attachments queued"
		return
	}
	if arg == "" {
		m.pending = nil
		m.notice = "Removed all attachments"
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(m.pending) {
		m.notice = fmt.Sprintf("Usage: /detach [1-%d]", len(m.pending))
		return
	}
	name := m.pending[n-1].file.Name
	m.pending = append(m.pending[:n-1], m.pending[n:]...)
	m.notice = "Removed " + name
}

// setMedia edits the settings of the most recent time-based attachment.
func (m *Model) setMedia(edit func(*model.MediaSettings)) {
	for i := len(m.pending) - 1; i >= 0; i-- {
		p := &m.pending[i]
		if !p.timeBased() {
			continue
		}
		if p.media == nil {
			p.media = &model.MediaSettings{}
		}
		edit(p.media)
		m.notice = "Updated " + p.file.Name
		return
	}
	m.notice = "No audio or video attachment queued"
}

