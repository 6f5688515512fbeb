// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/jeranaias/forkchat/internal/generation"
	"github.com/jeranaias/forkchat/internal/mediafit"
	"github.com/jeranaias/forkchat/internal/model"
)

// attachDoneMsg reports a file read and, for images, fitted.
type attachDoneMsg struct {
	file   *pendingFile
	notice string
	err    error
}

// submitDoneMsg reports the end of a submission. On failure text and files
// are handed back so nothing the user queued is lost.
type submitDoneMsg struct {
	err     error
	text    string
	pending []pendingFile
}

// =============================================================================
// ATTACH
// =============================================================================

// attach reads path and queues it for the next message.
func (m *Model) attach(path string) tea.Cmd {
	if m.working {
		m.notice = "Attachments are still being prepared"
		return nil
	}
	m.working = true
	ctx, fitter, budget := m.ctx, m.fitter, m.imageBudget
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return attachDoneMsg{err: fmt.Errorf("read attachment: %w", err)}
		}
		f := mediafit.File{
			Name:     filepath.Base(path),
			MimeType: detectMimeType(path, data),
			Data:     data,
		}
		if !sizeLimited(f) || fitter == nil || budget <= 0 {
			return attachDoneMsg{file: &pendingFile{file: f}}
		}

		res, err := fitter.Fit(ctx, f, budget, false)
		switch {
		case errors.Is(err, mediafit.ErrSkipped):
			return attachDoneMsg{notice: "Skipped " + f.Name}
		case err != nil:
			return attachDoneMsg{err: err}
		}
		notice := ""
		if res.Changed {
			notice = fmt.Sprintf("Converted %s to %s (%s)", f.Name, res.File.Name, humanize.Bytes(uint64(res.File.Size())))
		}
		return attachDoneMsg{file: &pendingFile{file: res.File}, notice: notice}
	}
}

func (m *Model) handleAttachDone(msg attachDoneMsg) {
	m.working = false
	switch {
	case msg.err != nil:
		m.err = msg.err
		return
	case msg.file != nil:
		m.pending = append(m.pending, *msg.file)
		if msg.notice == "" {
			msg.notice = "Attached " + msg.file.file.Name
		}
	}
	m.notice = msg.notice
}

// sizeLimited reports whether the image size limit applies to f.
func sizeLimited(f mediafit.File) bool {
	return strings.HasPrefix(f.MimeType, "image/")
}

// mediaTypes covers audio and video extensions missing from minimal
// system mime tables.
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// detectMimeType prefers the extension and falls back to sniffing.
func detectMimeType(path string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if base, _, err := mime.ParseMediaType(t); err == nil {
			return base
		}
		return t
	}
	t := http.DetectContentType(data)
	if base, _, err := mime.ParseMediaType(t); err == nil {
		return base
	}
	return t
}

// =============================================================================
// SUBMIT
// =============================================================================

// submit uploads the queued files and hands the message to the controller.
// Images are checked against the size limit once more before upload; a
// skipped image is dropped, any other failure keeps everything queued.
func (m *Model) submit(text string) tea.Cmd {
	pending := m.pending
	m.pending = nil
	m.working = true
	m.err = nil
	m.notice = ""

	ctx, ctl, up, fitter, budget := m.ctx, m.ctl, m.uploader, m.fitter, m.imageBudget
	convID := ""
	if m.conv != nil {
		convID = m.conv.ID
	}
	return func() tea.Msg {
		fail := func(err error) tea.Msg {
			return submitDoneMsg{err: err, text: text, pending: pending}
		}

		msg := model.NewUserMessage(text)
		for _, p := range pending {
			f := p.file
			if sizeLimited(f) && fitter != nil && budget > 0 {
				res, err := fitter.Fit(ctx, f, budget, true)
				if errors.Is(err, mediafit.ErrSkipped) {
					continue
				}
				if err != nil {
					return fail(fmt.Errorf("%s: %w", f.Name, err))
				}
				f = res.File
			}
			if up == nil {
				return fail(errors.New("attachments are not supported here"))
			}
			u, err := up.Upload(ctx, convID, f.Name, f.MimeType, f.Data)
			if err != nil {
				return fail(fmt.Errorf("upload %s: %w", f.Name, err))
			}
			ref := u.Ref()
			if !p.media.IsZero() {
				media := *p.media
				ref.Media = &media
			}
			msg.Attachments = append(msg.Attachments, ref)
		}

		err := ctl.Submit(ctx, msg)
		if errors.Is(err, generation.ErrBusy) || errors.Is(err, generation.ErrNoMessages) {
			return fail(err)
		}
		if err != nil {
			// The message is in the conversation; only saving failed.
			return submitDoneMsg{err: err}
		}
		return submitDoneMsg{}
	}
}

func (m *Model) handleSubmitDone(msg submitDoneMsg) {
	m.working = false
	if msg.err == nil {
		m.selectedID = ""
		return
	}
	m.err = msg.err
	m.pending = append(msg.pending, m.pending...)
	if m.input.Value() == "" {
		m.input.SetValue(msg.text)
		m.input.CursorEnd()
	}
}
