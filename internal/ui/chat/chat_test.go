// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/forkchat/internal/client"
	"github.com/jeranaias/forkchat/internal/generation"
	"github.com/jeranaias/forkchat/internal/mediafit"
	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/ui/styles"
)

// =============================================================================
// FAKES
// =============================================================================

type call struct {
	name  string
	id    string
	delta int
}

type fakeController struct {
	mu        sync.Mutex
	conv      *model.Conversation
	busy      bool
	submitted []*model.Message
	calls     []call
	positions map[string][2]int
	submitErr error
}

func newFakeController(msgs ...*model.Message) *fakeController {
	conv := model.NewConversation()
	conv.Messages = msgs
	return &fakeController{conv: conv, positions: map[string][2]int{}}
}

func (f *fakeController) record(name, id string, delta int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name: name, id: id, delta: delta})
	return true, nil
}

func (f *fakeController) Submit(_ context.Context, msgs ...*model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, msgs...)
	return nil
}

func (f *fakeController) Rerun(_ context.Context, id string) (bool, error) {
	return f.record("rerun", id, 0)
}

func (f *fakeController) BranchRerun(_ context.Context, id string) (bool, error) {
	return f.record("branch", id, 0)
}

func (f *fakeController) Regenerate(context.Context) (bool, error) {
	return f.record("regenerate", "", 0)
}

func (f *fakeController) Navigate(_ context.Context, id string, delta int) (bool, error) {
	return f.record("navigate", id, delta)
}

func (f *fakeController) DeleteBranch(_ context.Context, id string) (bool, error) {
	return f.record("delete-branch", id, 0)
}

func (f *fakeController) Collapse(_ context.Context, id string) (bool, error) {
	return f.record("collapse", id, 0)
}

func (f *fakeController) DeleteMessage(_ context.Context, id string) (bool, error) {
	return f.record("delete", id, 0)
}

func (f *fakeController) Position(id string) (int, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.positions[id]
	return p[0], p[1], ok
}

func (f *fakeController) Cancel() bool { return false }
func (f *fakeController) Busy() bool { return f.busy }
func (f *fakeController) UserScrolled() {}
func (f *fakeController) Following() bool { return true }

func (f *fakeController) Snapshot() *model.Conversation { return f.conv.Clone() }

func (f *fakeController) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeUploader struct {
	names []string
}

func (u *fakeUploader) Upload(_ context.Context, _, name, mimeType string, data []byte) (client.Upload, error) {
	u.names = append(u.names, name)
	return client.Upload{ID: "u1", Name: name, Type: mimeType, Size: int64(len(data)), Filename: "abcd1234_" + name}, nil
}

type fitterFunc func(ctx context.Context, f mediafit.File, budget int64, preflight bool) (mediafit.Result, error)

func (fn fitterFunc) Fit(ctx context.Context, f mediafit.File, budget int64, preflight bool) (mediafit.Result, error) {
	return fn(ctx, f, budget, preflight)
}

func newTestModel(t *testing.T, ctl Controller, opts Options) *Model {
	t.Helper()
	opts.Controller = ctl
	opts.Theme = styles.NewThemeFor(termenv.Ascii, true)
	opts.Logger = zerolog.Nop()
	m := New(context.Background(), opts)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

// drain runs cmd and feeds the screen's own result messages back in.
func drain(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			drain(t, m, c)
		}
	case actionDoneMsg, attachDoneMsg, submitDoneMsg:
		_, next := m.Update(msg)
		drain(t, m, next)
	}
}

func press(t *testing.T, m *Model, k tea.KeyMsg) {
	t.Helper()
	_, cmd := m.Update(k)
	drain(t, m, cmd)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func msg(id string, role model.Role, text string) *model.Message {
	return &model.Message{ID: id, Role: role, Content: text}
}

// =============================================================================
// COMMAND PARSING
// =============================================================================

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line, name, rest string
	}{
		{"/attach ~/a b.png", "attach", "~/a b.png"},
		{"  /CLIP 0:05 1:00 ", "clip", "0:05 1:00"},
		{"/retry", "retry", ""},
	}
	for _, tt := range tests {
		name, rest := parseCommand(tt.line)
		assert.Equal(t, tt.name, name, tt.line)
		assert.Equal(t, tt.rest, rest, tt.line)
	}
}

func TestValidTimestamp(t *testing.T) {
	for _, s := range []string{"5", "0:05", "12:59", "1:02:03"} {
		assert.True(t, validTimestamp(s), s)
	}
	for _, s := range []string{"", "a", "1:5", "1:60", "-1", "1:02:03:04"} {
		assert.False(t, validTimestamp(s), s)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x.png"), expandPath("~/x.png"))
	assert.Equal(t, "a b.txt", expandPath(`"a b.txt"`))
	assert.Equal(t, "/tmp/x", expandPath("/tmp/x"))
}

// =============================================================================
// BRIDGE
// =============================================================================

func TestBridge_DropsWithoutProgram(t *testing.T) {
	b := NewBridge()
	b.RenderFrame(generation.Frame{MessageID: "m"})

	c, err := b.Choose(context.Background(), mediafit.Prompt{Filename: "x.png"})
	require.NoError(t, err)
	assert.Equal(t, mediafit.ChoiceSkip, c)
}

func TestBridge_ChooseWaitsForReply(t *testing.T) {
	b := NewBridge()
	b.AttachFunc(func(msg tea.Msg) {
		p, ok := msg.(fitPromptMsg)
		if ok {
			go func() { p.reply <- mediafit.ChoiceConvert }()
		}
	})

	c, err := b.Choose(context.Background(), mediafit.Prompt{Filename: "x.png"})
	require.NoError(t, err)
	assert.Equal(t, mediafit.ChoiceConvert, c)
}

func TestBridge_ChooseCancelled(t *testing.T) {
	b := NewBridge()
	b.AttachFunc(func(tea.Msg) {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	c, err := b.Choose(ctx, mediafit.Prompt{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, mediafit.ChoiceSkip, c)
}

func TestBridge_ForwardsRendererCalls(t *testing.T) {
	var got []tea.Msg
	b := NewBridge()
	b.AttachFunc(func(msg tea.Msg) { got = append(got, msg) })

	b.RenderFrame(generation.Frame{MessageID: "m", Answer: "hi"})
	b.RenderConversation(model.NewConversation())
	b.ShowError(errors.New("boom"))

	require.Len(t, got, 3)
	assert.Equal(t, "hi", got[0].(frameMsg).Answer)
	assert.IsType(t, conversationMsg{}, got[1])
	assert.EqualError(t, got[2].(errorMsg).err, "boom")
}

// =============================================================================
// KEYS & ACTIONS
// =============================================================================

func TestSubmitText(t *testing.T) {
	ctl := newFakeController()
	m := newTestModel(t, ctl, Options{})

	m.input.SetValue("  hello  ")
	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	require.Len(t, ctl.submitted, 1)
	assert.Equal(t, "hello", ctl.submitted[0].Content)
	assert.True(t, ctl.submitted[0].IsUser())
	assert.Empty(t, m.input.Value())
	assert.False(t, m.working)
}

func TestSubmitBusyKeepsInput(t *testing.T) {
	ctl := newFakeController()
	ctl.busy = true
	m := newTestModel(t, ctl, Options{})

	m.input.SetValue("hello")
	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Empty(t, ctl.submitted)
	assert.Equal(t, "hello", m.input.Value())
	assert.Contains(t, m.notice, "Wait")
}

func TestSubmitRejectedRestoresInput(t *testing.T) {
	ctl := newFakeController()
	ctl.submitErr = generation.ErrBusy
	m := newTestModel(t, ctl, Options{})

	m.input.SetValue("hello")
	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, "hello", m.input.Value())
	assert.ErrorIs(t, m.err, generation.ErrBusy)
}

func TestBranchKeysTargetSelection(t *testing.T) {
	ctl := newFakeController(
		msg("u1", model.RoleUser, "q1"),
		msg("m1", model.RoleModel, "a1"),
		msg("u2", model.RoleUser, "q2"),
		msg("m2", model.RoleModel, "a2"),
	)
	m := newTestModel(t, ctl, Options{})

	press(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	press(t, m, tea.KeyMsg{Type: tea.KeyUp, Alt: true})
	press(t, m, tea.KeyMsg{Type: tea.KeyUp, Alt: true})
	press(t, m, tea.KeyMsg{Type: tea.KeyCtrlB})
	press(t, m, runes("]"))
	press(t, m, runes("["))
	press(t, m, tea.KeyMsg{Type: tea.KeyCtrlX})
	press(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})

	assert.Equal(t, []call{
		{name: "rerun", id: "m2"},
		{name: "branch", id: "m1"},
		{name: "navigate", id: "m1", delta: 1},
		{name: "navigate", id: "m1", delta: -1},
		{name: "delete-branch", id: "m1"},
		{name: "collapse", id: "m1"},
	}, ctl.recorded())
}

func TestBracketTypesWhenInputNotEmpty(t *testing.T) {
	ctl := newFakeController(msg("u1", model.RoleUser, "q"), msg("m1", model.RoleModel, "a"))
	m := newTestModel(t, ctl, Options{})

	m.input.SetValue("x")
	m.input.CursorEnd()
	m.Update(runes("["))

	assert.Empty(t, ctl.recorded())
	assert.Equal(t, "x[", m.input.Value())
}

func TestActionNotApplied(t *testing.T) {
	m := newTestModel(t, newFakeController(), Options{})
	m.Update(actionDoneMsg{name: "collapse", ok: false})
	assert.Equal(t, "Nothing to collapse here", m.notice)

	m.Update(actionDoneMsg{name: "x", err: generation.ErrBusy})
	assert.Contains(t, m.notice, "Wait")
	assert.NoError(t, m.err)
}

func TestEscClearsError(t *testing.T) {
	m := newTestModel(t, newFakeController(), Options{})
	m.Update(errorMsg{err: errors.New("boom")})
	assert.Contains(t, m.View(), "boom")

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.NoError(t, m.err)
}

// =============================================================================
// FIT PROMPT
// =============================================================================

func TestFitPromptAnswers(t *testing.T) {
	m := newTestModel(t, newFakeController(), Options{})
	reply := make(chan mediafit.Choice, 1)
	m.Update(fitPromptMsg{prompt: mediafit.Prompt{Filename: "big.png", Size: 8 << 20, Budget: 5 << 20}, reply: reply})
	assert.Contains(t, m.View(), "big.png")
	assert.NotContains(t, m.View(), "[k]eep")

	// keep is not on offer in preflight mode
	m.Update(runes("k"))
	require.NotNil(t, m.prompt)
	assert.Empty(t, reply)

	m.Update(runes("c"))
	assert.Nil(t, m.prompt)
	assert.Equal(t, mediafit.ChoiceConvert, <-reply)
}

func TestFitPromptEscSkips(t *testing.T) {
	m := newTestModel(t, newFakeController(), Options{})
	reply := make(chan mediafit.Choice, 1)
	m.Update(fitPromptMsg{prompt: mediafit.Prompt{AllowKeep: true}, reply: reply})

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, mediafit.ChoiceSkip, <-reply)
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func typeCommand(t *testing.T, m *Model, line string) {
	t.Helper()
	m.input.SetValue(line)
	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

func TestAttachAndSubmit(t *testing.T) {
	ctl := newFakeController()
	up := &fakeUploader{}
	m := newTestModel(t, ctl, Options{Uploader: up})

	typeCommand(t, m, "/attach "+writeFile(t, "notes.txt", []byte("hello")))
	typeCommand(t, m, "/attach "+writeFile(t, "talk.mp4", []byte("video")))
	require.Len(t, m.pending, 2)
	assert.Equal(t, "text/plain", m.pending[0].file.MimeType)

	typeCommand(t, m, "/clip 0:05 1:30")
	typeCommand(t, m, "/fps 2")
	m.input.SetValue("look")
	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	require.Len(t, ctl.submitted, 1)
	sent := ctl.submitted[0]
	assert.Equal(t, "look", sent.Content)
	require.Len(t, sent.Attachments, 2)
	assert.Nil(t, sent.Attachments[0].Media)
	assert.Equal(t, &model.MediaSettings{ClipStart: "0:05", ClipEnd: "1:30", FPS: 2}, sent.Attachments[1].Media)
	assert.Equal(t, []string{"notes.txt", "talk.mp4"}, up.names)
	assert.Empty(t, m.pending)
}

func TestClipNeedsTimeBasedAttachment(t *testing.T) {
	m := newTestModel(t, newFakeController(), Options{})
	typeCommand(t, m, "/attach "+writeFile(t, "a.txt", []byte("x")))
	typeCommand(t, m, "/clip 0:01 0:02")
	assert.Equal(t, "No audio or video attachment queued", m.notice)

	typeCommand(t, m, "/clip 1:5 2")
	assert.Contains(t, m.notice, "Usage")
}

func TestDetach(t *testing.T) {
	m := newTestModel(t, newFakeController(), Options{})
	typeCommand(t, m, "/attach "+writeFile(t, "a.txt", []byte("a")))
	typeCommand(t, m, "/attach "+writeFile(t, "b.txt", []byte("b")))

	typeCommand(t, m, "/detach 3")
	assert.Contains(t, m.notice, "Usage")
	typeCommand(t, m, "/detach 1")
	require.Len(t, m.pending, 1)
	assert.Equal(t, "b.txt", m.pending[0].file.Name)
	typeCommand(t, m, "/detach")
	assert.Empty(t, m.pending)
}

func TestAttachImageRunsFitter(t *testing.T) {
	var modes []bool
	fitter := fitterFunc(func(_ context.Context, f mediafit.File, budget int64, preflight bool) (mediafit.Result, error) {
		modes = append(modes, preflight)
		assert.Equal(t, int64(4), budget)
		return mediafit.Result{File: mediafit.File{Name: "big.jpg", MimeType: "image/jpeg", Data: []byte("1")}, Changed: true}, nil
	})
	ctl := newFakeController()
	m := newTestModel(t, ctl, Options{Fitter: fitter, ImageBudget: 4, Uploader: &fakeUploader{}})

	typeCommand(t, m, "/attach "+writeFile(t, "big.png", []byte("0123456789")))
	require.Len(t, m.pending, 1)
	assert.Equal(t, "big.jpg", m.pending[0].file.Name)
	assert.Contains(t, m.notice, "Converted big.png")

	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []bool{false, true}, modes)
	require.Len(t, ctl.submitted, 1)
	assert.Equal(t, "image/jpeg", ctl.submitted[0].Attachments[0].MimeType)
}

func TestSubmitBlockedByUnfittableImage(t *testing.T) {
	fail := false
	fitter := fitterFunc(func(_ context.Context, f mediafit.File, _ int64, preflight bool) (mediafit.Result, error) {
		if preflight && fail {
			return mediafit.Result{}, mediafit.ErrCannotFit
		}
		return mediafit.Result{File: f}, nil
	})
	ctl := newFakeController()
	m := newTestModel(t, ctl, Options{Fitter: fitter, ImageBudget: 4, Uploader: &fakeUploader{}})

	typeCommand(t, m, "/attach "+writeFile(t, "huge.png", []byte("0123456789")))
	fail = true
	m.input.SetValue("see image")
	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Empty(t, ctl.submitted)
	require.Error(t, m.err)
	assert.ErrorIs(t, m.err, mediafit.ErrCannotFit)
	assert.Contains(t, m.err.Error(), "huge.png")
	assert.Equal(t, "see image", m.input.Value())
	assert.Len(t, m.pending, 1)
}

func TestSubmitDropsSkippedImage(t *testing.T) {
	fitter := fitterFunc(func(_ context.Context, f mediafit.File, _ int64, preflight bool) (mediafit.Result, error) {
		if preflight {
			return mediafit.Result{Choice: mediafit.ChoiceSkip}, mediafit.ErrSkipped
		}
		return mediafit.Result{File: f}, nil
	})
	ctl := newFakeController()
	m := newTestModel(t, ctl, Options{Fitter: fitter, ImageBudget: 4, Uploader: &fakeUploader{}})

	typeCommand(t, m, "/attach "+writeFile(t, "huge.png", []byte("0123456789")))
	m.input.SetValue("text only")
	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	require.Len(t, ctl.submitted, 1)
	assert.Empty(t, ctl.submitted[0].Attachments)
}

// =============================================================================
// VIEW
// =============================================================================

func TestViewShowsBranchIndicator(t *testing.T) {
	ctl := newFakeController(msg("u1", model.RoleUser, "question"), msg("m1", model.RoleModel, "answer"))
	ctl.positions["m1"] = [2]int{2, 3}
	m := newTestModel(t, ctl, Options{})

	view := m.View()
	assert.Contains(t, view, "question")
	assert.Contains(t, view, "answer")
	assert.Contains(t, view, "‹ 2/3 ›")
}

func TestViewStreamsLiveFrame(t *testing.T) {
	ctl := newFakeController(msg("u1", model.RoleUser, "q"), msg("m1", model.RoleModel, ""))
	ctl.busy = true
	m := newTestModel(t, ctl, Options{})

	m.Update(frameMsg{MessageID: "m1", Answer: "partial answer", Reasoning: "pondering"})
	view := m.View()
	assert.Contains(t, view, "partial answer")
	assert.Contains(t, view, "pondering")
	assert.Contains(t, view, "generating")

	ctl.busy = false
	done := model.NewConversation()
	done.Messages = []*model.Message{msg("u1", model.RoleUser, "q"), msg("m1", model.RoleModel, "final answer")}
	m.Update(conversationMsg{conv: done})
	assert.Nil(t, m.live)
	assert.Contains(t, m.View(), "final answer")
}
