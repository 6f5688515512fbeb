// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package branch maintains the alternative continuations of a conversation.
//
// A BranchPoint is created lazily the first time a message is regenerated or
// forked, so a linear conversation carries no bookkeeping. Each branch holds a
// deep-copied tail; the active branch's tail always equals the live suffix of
// the conversation after the anchor once an operation returns.
//
// # Usage
//
//	store := branch.NewStore(conv)
//	anchor, ok := branch.ResolveAnchor(conv, msgID)
//	if ok {
//	    store.OverwriteActive(anchor) // live sequence now ends at anchor
//	}
//	...
//	store.Select(anchor, -1) // show the previous alternative
//
// Operations on an anchor that no longer exists are no-ops that return false.
package branch
