// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"context"
	"errors"

	"github.com/jeranaias/forkchat/internal/branch"
	"github.com/jeranaias/forkchat/internal/model"
)

// ErrNoMessages is returned by Submit when there is nothing to send.
var ErrNoMessages = errors.New("nothing to submit")

// =============================================================================
// GENERATING ACTIONS
// =============================================================================

// Submit appends user messages and starts a generation.
func (c *Controller) Submit(ctx context.Context, msgs ...*model.Message) error {
	var user []*model.Message
	for _, m := range msgs {
		if m != nil && !m.IsEmpty() {
			m.Role = model.RoleUser
			user = append(user, m)
		}
	}
	if len(user) == 0 {
		return ErrNoMessages
	}
	_, err := c.generate(ctx, func() bool {
		for _, m := range user {
			c.conv.AddMessage(m)
		}
		c.branches.Sync()
		return true
	})
	return err
}

// Rerun regenerates the turn around msgID in place, replacing the active
// branch's tail. It reports false when msgID has no anchor.
func (c *Controller) Rerun(ctx context.Context, msgID string) (bool, error) {
	return c.generate(ctx, func() bool {
		anchor, ok := branch.ResolveAnchor(c.conv, msgID)
		return ok && c.branches.OverwriteActive(anchor)
	})
}

// BranchRerun forks a new alternative at msgID's anchor and generates into
// it, keeping the previous continuation as a sibling branch.
func (c *Controller) BranchRerun(ctx context.Context, msgID string) (bool, error) {
	return c.generate(ctx, func() bool {
		anchor, ok := branch.ResolveAnchor(c.conv, msgID)
		if !ok {
			return false
		}
		_, ok = c.branches.CreateSibling(anchor)
		return ok
	})
}

// Regenerate starts a generation for the conversation as it stands, e.g.
// after a previous attempt failed and left the anchor with an empty tail.
func (c *Controller) Regenerate(ctx context.Context) (bool, error) {
	return c.generate(ctx, func() bool {
		last := c.conv.LastMessage()
		return last != nil && last.IsUser()
	})
}

// generate reserves the session slot, applies mutate, persists the result
// and only then opens the generation request.
func (c *Controller) generate(ctx context.Context, mutate func() bool) (bool, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return false, ErrBusy
	}
	if !mutate() {
		c.mu.Unlock()
		return false, nil
	}
	c.state = StateStreaming
	c.mu.Unlock()

	if err := c.persist(ctx); err != nil {
		c.mu.Lock()
		c.state = StateIdle
		snap := c.conv.Clone()
		c.mu.Unlock()
		c.render.RenderConversation(snap)
		c.render.ShowError(err)
		return true, err
	}

	c.mu.Lock()
	c.start(ctx)
	c.mu.Unlock()
	return true, nil
}

// =============================================================================
// NAVIGATION ACTIONS
// =============================================================================

// Navigate moves the active branch at msgID's anchor by delta.
func (c *Controller) Navigate(ctx context.Context, msgID string, delta int) (bool, error) {
	return c.edit(ctx, msgID, func(anchor string) bool {
		return c.branches.Select(anchor, delta)
	})
}

// DeleteBranch removes the active branch at msgID's anchor.
func (c *Controller) DeleteBranch(ctx context.Context, msgID string) (bool, error) {
	return c.edit(ctx, msgID, c.branches.DeleteActive)
}

// Collapse discards every alternative at msgID's anchor except the live one.
func (c *Controller) Collapse(ctx context.Context, msgID string) (bool, error) {
	return c.edit(ctx, msgID, c.branches.Collapse)
}

// Position returns the 1-based active branch and branch count at msgID's
// anchor.
func (c *Controller) Position(msgID string) (active, total int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	anchor, ok := branch.ResolveAnchor(c.conv, msgID)
	if !ok {
		return 0, 0, false
	}
	return c.branches.Position(anchor)
}

func (c *Controller) edit(ctx context.Context, msgID string, op func(anchor string) bool) (bool, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return false, nil
	}
	anchor, ok := branch.ResolveAnchor(c.conv, msgID)
	if !ok || !op(anchor) {
		c.mu.Unlock()
		return false, nil
	}
	snap := c.conv.Clone()
	c.mu.Unlock()

	c.render.RenderConversation(snap)
	return true, c.persist(ctx)
}

// =============================================================================
// CONVERSATION SWITCHING
// =============================================================================

// Load replaces the live conversation with the service's copy of id.
func (c *Controller) Load(ctx context.Context, id string) error {
	if c.Busy() {
		return ErrBusy
	}
	conv, err := c.svc.Load(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.conv = conv
	c.branches.SetConversation(conv)
	c.branches.Sync()
	snap := c.conv.Clone()
	c.mu.Unlock()

	c.render.RenderConversation(snap)
	return nil
}

// DeleteMessage removes a message from the live conversation.
func (c *Controller) DeleteMessage(ctx context.Context, msgID string) (bool, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return false, ErrBusy
	}
	if !c.conv.RemoveMessage(msgID) {
		c.mu.Unlock()
		return false, nil
	}
	c.branches.Sync()
	snap := c.conv.Clone()
	c.mu.Unlock()

	c.render.RenderConversation(snap)
	return true, c.persist(ctx)
}
