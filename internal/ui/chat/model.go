// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"

	"github.com/jeranaias/forkchat/internal/client"
	"github.com/jeranaias/forkchat/internal/generation"
	"github.com/jeranaias/forkchat/internal/mediafit"
	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/ui/styles"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Controller is the generation controller as used by the screen.
type Controller interface {
	Submit(ctx context.Context, msgs ...*model.Message) error
	Rerun(ctx context.Context, msgID string) (bool, error)
	BranchRerun(ctx context.Context, msgID string) (bool, error)
	Regenerate(ctx context.Context) (bool, error)
	Navigate(ctx context.Context, msgID string, delta int) (bool, error)
	DeleteBranch(ctx context.Context, msgID string) (bool, error)
	Collapse(ctx context.Context, msgID string) (bool, error)
	DeleteMessage(ctx context.Context, msgID string) (bool, error)
	Position(msgID string) (active, total int, ok bool)
	Cancel() bool
	Busy() bool
	Snapshot() *model.Conversation
	UserScrolled()
	Following() bool
}

var _ Controller = (*generation.Controller)(nil)

// Uploader stores attachment bytes with the service.
type Uploader interface {
	Upload(ctx context.Context, chatID, name, mimeType string, data []byte) (client.Upload, error)
}

// Fitter shrinks oversized images.
type Fitter interface {
	Fit(ctx context.Context, file mediafit.File, budget int64, preflight bool) (mediafit.Result, error)
}

// Options configures the chat screen.
type Options struct {
	Controller  Controller
	Uploader    Uploader
	Fitter      Fitter
	ImageBudget int64
	Theme       *styles.Theme
	Logger      zerolog.Logger
}

// =============================================================================
// MODEL
// =============================================================================

// pendingFile is an attachment queued for the next message.
type pendingFile struct {
	file  mediafit.File
	media *model.MediaSettings
}

func (p pendingFile) timeBased() bool {
	return model.AttachmentRef{MimeType: p.file.MimeType}.IsTimeBased()
}

type renderedMessage struct {
	content string
	width   int
	out     string
}

// Model is the chat screen state.
type Model struct {
	ctx         context.Context
	ctl         Controller
	uploader    Uploader
	fitter      Fitter
	imageBudget int64
	theme       *styles.Theme
	log         zerolog.Logger
	keys        KeyMap

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model

	markdown *glamour.TermRenderer
	rendered map[string]renderedMessage

	conv       *model.Conversation
	live       *generation.Frame
	selectedID string // "" follows the last message

	pending []pendingFile
	prompt  *fitPromptMsg

	notice string
	err    error

	width, height int
	ready         bool
	working       bool // an upload or fit is running for the next message
	quitting      bool
}

// New creates the chat screen. ctx bounds every action the screen starts,
// including generations that outlive a single key press.
func New(ctx context.Context, opts Options) *Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme()
	}

	ti := textinput.New()
	ti.Placeholder = "Message, or /help"
	ti.Prompt = theme.InputPrompt.Render("> ")
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.StatusBusy

	m := &Model{
		ctx:         ctx,
		ctl:         opts.Controller,
		uploader:    opts.Uploader,
		fitter:      opts.Fitter,
		imageBudget: opts.ImageBudget,
		theme:       theme,
		log:         opts.Logger,
		keys:        DefaultKeyMap(),
		input:       ti,
		spinner:     sp,
		help:        help.New(),
		rendered:    make(map[string]renderedMessage),
	}
	m.conv = opts.Controller.Snapshot()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// selected returns the message branch actions apply to.
func (m *Model) selected() *model.Message {
	if m.conv == nil {
		return nil
	}
	if m.selectedID != "" {
		if msg := m.conv.MessageByID(m.selectedID); msg != nil {
			return msg
		}
	}
	return m.conv.LastMessage()
}

// moveSelection shifts the selection by delta messages.
func (m *Model) moveSelection(delta int) {
	if m.conv == nil || len(m.conv.Messages) == 0 {
		return
	}
	i := len(m.conv.Messages) - 1
	if sel := m.selected(); sel != nil {
		i = m.conv.IndexOf(sel.ID)
	}
	i += delta
	if i < 0 {
		i = 0
	}
	if i >= len(m.conv.Messages)-1 {
		m.selectedID = ""
		return
	}
	m.selectedID = m.conv.Messages[i].ID
}

func (m *Model) newMarkdown(width int) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.theme.GlamourStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.log.Warn().Err(err).Msg("markdown renderer unavailable")
		m.markdown = nil
		return
	}
	m.markdown = r
}
