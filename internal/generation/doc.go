// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generation drives one in-flight generation request per
// conversation.
//
// A Controller owns the live conversation and its branch index. User actions
// (submit, rerun, branch, navigate, delete, collapse) mutate both under the
// controller's lock, persist the result, and optionally start a session that
// streams the model's answer into a placeholder message.
//
// Session lifecycle:
//
//	Idle -> Streaming -> Finalizing -> Idle   (clean end: resync from service)
//	Idle -> Streaming -> Cancelled  -> Idle   (user cancel: partial text kept)
//	Idle -> Streaming -> Failed     -> Idle   (error: placeholder discarded)
//
// Renderer callbacks arrive on the streaming goroutine and must be safe to
// call concurrently with the UI loop; tea.Program.Send satisfies this.
package generation
