// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import "sync/atomic"

// Follower tracks whether the view should auto-follow streamed content. A
// manual scroll sets a sticky flag that only Reset clears.
type Follower struct {
	noFollow atomic.Bool
}

// UserScrolled records a manual scroll.
func (f *Follower) UserScrolled() {
	f.noFollow.Store(true)
}

// Following reports whether rendered updates should scroll to the bottom.
func (f *Follower) Following() bool {
	return !f.noFollow.Load()
}

// Reset clears the sticky flag.
func (f *Follower) Reset() {
	f.noFollow.Store(false)
}
