// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/forkchat/internal/generation"
	"github.com/jeranaias/forkchat/internal/mediafit"
)

// actionDoneMsg reports the end of a controller action.
type actionDoneMsg struct {
	name string
	ok   bool
	err  error
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	dirty := false

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = msg.Width - 4
		m.help.Width = msg.Width
		m.newMarkdown(msg.Width - 4)
		m.rendered = make(map[string]renderedMessage)
		m.viewport.Width = msg.Width
		m.ready = true
		dirty = true

	case tea.KeyMsg:
		cmd, changed := m.handleKey(msg)
		cmds = append(cmds, cmd)
		dirty = changed

	case tea.MouseMsg:
		if msg.Type == tea.MouseWheelUp {
			m.ctl.UserScrolled()
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case frameMsg:
		f := generation.Frame(msg)
		m.live = &f
		dirty = true

	case conversationMsg:
		m.conv = msg.conv
		if !m.ctl.Busy() {
			m.live = nil
		}
		dirty = true

	case errorMsg:
		m.err = msg.err
		m.notice = ""

	case fitPromptMsg:
		m.prompt = &msg
		dirty = true

	case actionDoneMsg:
		m.handleActionDone(msg)
		dirty = true

	case attachDoneMsg:
		m.handleAttachDone(msg)
		dirty = true

	case submitDoneMsg:
		m.handleSubmitDone(msg)
		dirty = true

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if dirty {
		m.layout()
		m.refresh()
	}
	return m, tea.Batch(cmds...)
}

// handleKey dispatches a key press. It reports whether the transcript or
// footer changed.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if m.prompt != nil {
		return m.answerPrompt(msg), true
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.ctl.Cancel()
		m.quitting = true
		return tea.Quit, false

	case key.Matches(msg, m.keys.Cancel):
		switch {
		case m.ctl.Cancel():
			m.notice = "Stopped"
		case m.err != nil:
			m.err = nil
		default:
			m.notice = ""
		}
		return nil, true

	case key.Matches(msg, m.keys.Submit):
		return m.submitInput(), true

	case key.Matches(msg, m.keys.Regenerate):
		return m.onSelected("regenerate", m.ctl.Rerun), true

	case key.Matches(msg, m.keys.Branch):
		return m.onSelected("branch", m.ctl.BranchRerun), true

	case key.Matches(msg, m.keys.DeleteBranch):
		return m.onSelected("delete branch", m.ctl.DeleteBranch), true

	case key.Matches(msg, m.keys.Collapse):
		return m.onSelected("collapse", m.ctl.Collapse), true

	case key.Matches(msg, m.keys.PrevBranch, m.keys.NextBranch) && m.input.Value() == "":
		delta := -1
		if key.Matches(msg, m.keys.NextBranch) {
			delta = 1
		}
		return m.onSelected("switch branch", func(ctx context.Context, id string) (bool, error) {
			return m.ctl.Navigate(ctx, id, delta)
		}), true

	case key.Matches(msg, m.keys.SelectUp):
		m.moveSelection(-1)
		return nil, true

	case key.Matches(msg, m.keys.SelectDown):
		m.moveSelection(1)
		return nil, true

	case key.Matches(msg, m.keys.PageUp):
		m.ctl.UserScrolled()
		m.viewport.HalfViewUp()
		return nil, false

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return nil, false

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil, true
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd, false
}

// answerPrompt resolves the pending fit question from a key press.
func (m *Model) answerPrompt(msg tea.KeyMsg) tea.Cmd {
	p := m.prompt
	var choice mediafit.Choice
	switch msg.String() {
	case "c", "C":
		choice = mediafit.ChoiceConvert
	case "k", "K":
		if !p.prompt.AllowKeep {
			return nil
		}
		choice = mediafit.ChoiceKeep
	case "s", "S", "esc":
		choice = mediafit.ChoiceSkip
	case "ctrl+c", "ctrl+q":
		p.reply <- mediafit.ChoiceSkip
		m.prompt = nil
		m.ctl.Cancel()
		m.quitting = true
		return tea.Quit
	default:
		return nil
	}
	p.reply <- choice
	m.prompt = nil
	return nil
}

// onSelected runs a controller action on the selected message.
func (m *Model) onSelected(name string, fn func(ctx context.Context, msgID string) (bool, error)) tea.Cmd {
	sel := m.selected()
	if sel == nil {
		m.notice = "No message selected"
		return nil
	}
	if m.ctl.Busy() {
		m.notice = "Wait for the current reply to finish"
		return nil
	}
	return m.run(name, func(ctx context.Context) (bool, error) {
		return fn(ctx, sel.ID)
	})
}

// run executes a controller action off the update loop. Actions block on
// persistence, so they never run inside Update.
func (m *Model) run(name string, fn func(ctx context.Context) (bool, error)) tea.Cmd {
	ctx := m.ctx
	m.err = nil
	m.notice = ""
	return func() tea.Msg {
		ok, err := fn(ctx)
		return actionDoneMsg{name: name, ok: ok, err: err}
	}
}

func (m *Model) handleActionDone(msg actionDoneMsg) {
	switch {
	case errors.Is(msg.err, generation.ErrBusy):
		m.notice = "Wait for the current reply to finish"
	case errors.Is(msg.err, context.Canceled):
	case msg.err != nil:
		m.err = msg.err
	case !msg.ok:
		m.notice = "Nothing to " + msg.name + " here"
	}
}

// submitInput sends the input line, or runs it as a command.
func (m *Model) submitInput() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if strings.HasPrefix(text, "/") {
		m.input.Reset()
		return m.runCommand(text)
	}
	if text == "" && len(m.pending) == 0 {
		return nil
	}
	if m.working {
		m.notice = "Attachments are still being prepared"
		return nil
	}
	if m.ctl.Busy() {
		m.notice = "Wait for the current reply to finish"
		return nil
	}
	m.input.Reset()
	return m.submit(text)
}
