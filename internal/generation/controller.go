// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/forkchat/internal/branch"
	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/stream"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Service is the generation service as seen by the controller.
type Service interface {
	// Load reads the current state of a conversation.
	Load(ctx context.Context, id string) (*model.Conversation, error)

	// Save writes the full state of a conversation.
	Save(ctx context.Context, conv *model.Conversation) error

	// Generate opens the response stream for a conversation.
	Generate(ctx context.Context, id string) (io.ReadCloser, error)
}

// Frame is one incremental update of the placeholder message.
type Frame struct {
	MessageID string
	Answer    string
	Reasoning string
	Follow    bool
}

// Renderer receives display updates. Calls may come from any goroutine.
type Renderer interface {
	RenderFrame(f Frame)
	RenderConversation(conv *model.Conversation)
	ShowError(err error)
}

// Options configures a Controller.
type Options struct {
	RenderInterval time.Duration
	Logger         zerolog.Logger
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the live conversation and at most one generation session.
type Controller struct {
	mu       sync.Mutex
	conv     *model.Conversation
	branches *branch.Store
	state    State
	session  *Session
	seq      uint64

	svc      Service
	render   Renderer
	follow   Follower
	interval time.Duration
	log      zerolog.Logger

	saveMu sync.Mutex
	saved  uint64

	wg sync.WaitGroup
}

// New creates a controller over conv.
func New(svc Service, render Renderer, conv *model.Conversation, opts Options) *Controller {
	if conv == nil {
		conv = model.NewConversation()
	}
	c := &Controller{
		conv:     conv,
		svc:      svc,
		render:   render,
		interval: opts.RenderInterval,
		log:      opts.Logger,
	}
	c.branches = branch.NewStore(conv)
	// Read with mu held: every store call happens under the controller lock.
	c.branches.Busy = func() bool { return c.state != StateIdle }
	return c
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a session is active.
func (c *Controller) Busy() bool {
	return c.State() != StateIdle
}

// Snapshot returns a deep copy of the live conversation.
func (c *Controller) Snapshot() *model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Clone()
}

// Session returns a copy of the active session, if any.
func (c *Controller) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// UserScrolled records a manual scroll away from the followed position.
func (c *Controller) UserScrolled() {
	c.follow.UserScrolled()
}

// Following reports whether the view should follow streamed content.
func (c *Controller) Following() bool {
	return c.follow.Following()
}

// Wait blocks until the active session, if any, has fully finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Cancel aborts the active session. Text already received is kept.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.state != StateStreaming {
		return false
	}
	c.session.Cancelled = true
	c.session.cancel()
	return true
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// start appends the placeholder and launches the streaming goroutine.
// Called with mu held and state already reserved as Streaming.
func (c *Controller) start(ctx context.Context) *Session {
	placeholder := model.NewModelMessage()
	c.conv.AddMessage(placeholder)

	ctx, cancel := context.WithCancel(ctx)
	sess := &Session{
		PlaceholderID: placeholder.ID,
		Started:       time.Now(),
		cancel:        cancel,
	}
	c.session = sess
	c.follow.Reset()

	c.log.Info().
		Str("conversation", c.conv.ID).
		Str("placeholder", sess.PlaceholderID).
		Msg("generation started")

	c.wg.Add(1)
	go c.run(ctx, sess, c.conv.ID)
	return sess
}

func (c *Controller) run(ctx context.Context, sess *Session, convID string) {
	defer c.wg.Done()

	throttle := NewThrottle(c.interval, func() { c.renderFrame(sess) })
	var streamErr error
	defer func() { c.finish(ctx, sess, throttle, streamErr) }()

	c.render.RenderConversation(c.Snapshot())

	body, err := c.svc.Generate(ctx, convID)
	if err != nil {
		streamErr = fmt.Errorf("open stream: %w", err)
		return
	}
	defer body.Close()

	streamErr = stream.Consume(stream.NewReader(body), func(d stream.Delta) {
		if c.apply(sess, d) {
			throttle.Trigger()
		}
	})
	if streamErr == nil && c.enterFinalizing(sess) {
		// The service stores the finished message before it ends the
		// response, so reading to EOF orders the resync after that write.
		if _, err := io.Copy(io.Discard, body); err != nil {
			c.log.Debug().Err(err).Str("conversation", convID).Msg("drain after terminator")
		}
	}
}

// enterFinalizing moves a session that received its whole reply out of
// Streaming, after which Cancel no longer applies.
func (c *Controller) enterFinalizing(sess *Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess.Cancelled || c.session != sess {
		return false
	}
	c.state = StateFinalizing
	return true
}

// apply appends a fragment to the session and the placeholder message.
func (c *Controller) apply(sess *Session, d stream.Delta) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess.Cancelled || c.session != sess {
		return false
	}
	sess.Answer += d.Answer
	sess.Reasoning += d.Reasoning
	sess.Fragments++
	if msg := c.conv.MessageByID(sess.PlaceholderID); msg != nil {
		msg.Content = sess.Answer
		msg.Reasoning = sess.Reasoning
	}
	return true
}

func (c *Controller) renderFrame(sess *Session) {
	c.mu.Lock()
	f := Frame{
		MessageID: sess.PlaceholderID,
		Answer:    sess.Answer,
		Reasoning: sess.Reasoning,
		Follow:    c.follow.Following(),
	}
	c.mu.Unlock()
	c.render.RenderFrame(f)
}

// finish is the single exit path from Streaming.
func (c *Controller) finish(ctx context.Context, sess *Session, throttle *Throttle, streamErr error) {
	throttle.Stop()
	sess.cancel()

	c.mu.Lock()
	cancelled := sess.Cancelled || errors.Is(streamErr, context.Canceled)
	switch {
	case cancelled:
		c.state = StateCancelled
		sess.Cancelled = true
	case streamErr != nil:
		c.state = StateFailed
		c.conv.RemoveMessage(sess.PlaceholderID)
	default:
		c.state = StateFinalizing
	}
	state := c.state
	convID := c.conv.ID
	c.mu.Unlock()

	// ctx is cancelled by now; persistence uses a fresh one.
	ioCtx := context.WithoutCancel(ctx)

	switch state {
	case StateFinalizing:
		c.resync(ioCtx, convID, sess)
	case StateCancelled:
		c.mu.Lock()
		c.branches.Sync()
		c.mu.Unlock()
	case StateFailed:
		c.mu.Lock()
		c.branches.Sync()
		c.mu.Unlock()
		c.render.ShowError(streamErr)
	}
	if err := c.persist(ioCtx); err != nil {
		c.log.Warn().Err(err).Str("conversation", convID).Msg("persist after generation failed")
	}

	c.mu.Lock()
	outcome := Outcome{
		State:     state,
		Answer:    sess.Answer,
		Reasoning: sess.Reasoning,
		Err:       streamErr,
		Duration:  time.Since(sess.Started),
	}
	c.session = nil
	c.state = StateIdle
	snap := c.conv.Clone()
	c.mu.Unlock()

	c.render.RenderConversation(snap)
	c.logOutcome(convID, sess.PlaceholderID, outcome)
}

// resync replaces the live messages with the service's record, which carries
// the canonical finished message. A record that does not end in a model reply
// would drop the streamed text, so the local copy is kept instead.
func (c *Controller) resync(ctx context.Context, convID string, sess *Session) {
	fresh, err := c.svc.Load(ctx, convID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Warn().Err(err).Str("conversation", convID).Msg("resync failed, keeping streamed text")
		c.branches.Sync()
		return
	}
	if last := fresh.LastMessage(); (last == nil || !last.IsModel()) && sess.Answer+sess.Reasoning != "" {
		c.log.Warn().Str("conversation", convID).Msg("stored conversation lacks the reply, keeping streamed text")
		c.branches.Sync()
		return
	}
	c.conv.Title = fresh.Title
	c.conv.Messages = fresh.Messages
	if c.conv.Branches == nil && fresh.Branches != nil {
		c.conv.Branches = fresh.Branches
	}
	c.branches.Sync()
}

func (c *Controller) logOutcome(convID, placeholderID string, o Outcome) {
	ev := c.log.Info()
	if o.State == StateFailed {
		ev = c.log.Warn().Err(o.Err)
	}
	ev.Str("conversation", convID).
		Str("placeholder", placeholderID).
		Str("outcome", o.State.String()).
		Int("answer_bytes", len(o.Answer)).
		Int("reasoning_bytes", len(o.Reasoning)).
		Dur("duration", o.Duration).
		Msg("generation finished")
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// persist snapshots the conversation and writes it. Writes are
// serialized and a snapshot older than one already written is dropped.
func (c *Controller) persist(ctx context.Context) error {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	snap := c.conv.Clone()
	c.mu.Unlock()

	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if seq <= c.saved {
		return nil
	}
	if err := c.svc.Save(ctx, snap); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	c.saved = seq
	return nil
}
