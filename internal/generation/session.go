// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// STATE
// =============================================================================

// State is the controller's session state.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateFinalizing
	StateCancelled
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrBusy is returned when an action needs the conversation while a session
// is active.
var ErrBusy = errors.New("a generation is already in progress")

// =============================================================================
// SESSION
// =============================================================================

// Session is the accumulation state of one in-flight request. It is never
// persisted.
type Session struct {
	PlaceholderID string
	Answer        string
	Reasoning     string
	Cancelled     bool
	Fragments     int
	Started       time.Time

	cancel context.CancelFunc
}

// Outcome is how a session ended.
type Outcome struct {
	State     State
	Answer    string
	Reasoning string
	Err       error
	Duration  time.Duration
}
