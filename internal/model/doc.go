// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the domain types shared by the terminal client and the
// generation service: conversations, their ordered messages, upload metadata
// and the branch side index used for non-destructive regeneration.
//
// # Key Types
//
//   - Conversation: ordered messages plus the anchor-id to BranchPoint index
//   - Message: one user or model turn with answer and reasoning text
//   - AttachmentRef: metadata for an uploaded file attached to a message
//   - BranchPoint / Branch: frozen alternative continuations after an anchor
//   - ModelInfo: catalog entry describing a model's multimodal capabilities
//
// # Usage
//
//	conv := model.NewConversation()
//	conv.AddMessage(model.NewUserMessage("Hello!"))
//	tail := model.CloneMessages(conv.Messages[1:])
//
// Message slices stored in a Branch never alias the live sequence; always go
// through CloneMessages when moving messages between the two.
package model
