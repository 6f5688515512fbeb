// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRenderInterval matches a ~30fps refresh.
const DefaultRenderInterval = 33 * time.Millisecond

// Throttle coalesces render requests to at most one call per interval. The
// first request renders immediately; requests inside the interval schedule a
// single trailing render.
type Throttle struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	render  func()
	timer   *time.Timer
	stopped bool
}

// NewThrottle creates a throttle around render.
func NewThrottle(interval time.Duration, render func()) *Throttle {
	if interval <= 0 {
		interval = DefaultRenderInterval
	}
	return &Throttle{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		render:  render,
	}
}

// Trigger requests a render.
func (t *Throttle) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.timer != nil {
		return
	}
	delay := t.limiter.Reserve().Delay()
	if delay == 0 {
		t.render()
		return
	}
	t.timer = time.AfterFunc(delay, t.fire)
}

func (t *Throttle) fire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.timer == nil {
		return
	}
	t.timer = nil
	t.render()
}

// Stop cancels any scheduled render and performs it immediately instead, so
// trailing text is never dropped. Later triggers are ignored.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
		t.render()
	}
}
