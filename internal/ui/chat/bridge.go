// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/forkchat/internal/generation"
	"github.com/jeranaias/forkchat/internal/mediafit"
	"github.com/jeranaias/forkchat/internal/model"
)

// =============================================================================
// MESSAGES
// =============================================================================

// frameMsg carries a streaming update of the placeholder message.
type frameMsg generation.Frame

// conversationMsg carries a full conversation snapshot.
type conversationMsg struct {
	conv *model.Conversation
}

// errorMsg surfaces a failure to the user.
type errorMsg struct {
	err error
}

// fitPromptMsg asks the user what to do with an oversized image. Exactly one
// value must be sent on reply.
type fitPromptMsg struct {
	prompt mediafit.Prompt
	reply  chan<- mediafit.Choice
}

// =============================================================================
// BRIDGE
// =============================================================================

// Bridge delivers controller callbacks and fit prompts to a running
// program. It implements generation.Renderer and mediafit.Prompter. Updates
// sent before Attach are dropped; the model renders its initial state from
// the controller snapshot.
type Bridge struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

// NewBridge creates an unattached bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach routes messages into p.
func (b *Bridge) Attach(p *tea.Program) {
	b.AttachFunc(p.Send)
}

// AttachFunc routes messages into send.
func (b *Bridge) AttachFunc(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

func (b *Bridge) post(msg tea.Msg) bool {
	b.mu.RLock()
	send := b.send
	b.mu.RUnlock()
	if send == nil {
		return false
	}
	send(msg)
	return true
}

// RenderFrame implements generation.Renderer.
func (b *Bridge) RenderFrame(f generation.Frame) { b.post(frameMsg(f)) }

// RenderConversation implements generation.Renderer.
func (b *Bridge) RenderConversation(conv *model.Conversation) {
	b.post(conversationMsg{conv: conv})
}

// ShowError implements generation.Renderer.
func (b *Bridge) ShowError(err error) { b.post(errorMsg{err: err}) }

// Choose implements mediafit.Prompter by asking inside the program and
// waiting for the answer. Without an attached program the image is skipped.
func (b *Bridge) Choose(ctx context.Context, p mediafit.Prompt) (mediafit.Choice, error) {
	reply := make(chan mediafit.Choice, 1)
	if !b.post(fitPromptMsg{prompt: p, reply: reply}) {
		return mediafit.ChoiceSkip, nil
	}
	select {
	case c := <-reply:
		return c, nil
	case <-ctx.Done():
		return mediafit.ChoiceSkip, ctx.Err()
	}
}
