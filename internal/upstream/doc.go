// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package upstream builds OpenRouter-compatible chat completion requests from
// a stored conversation and opens the streaming call.
//
// Message conversion:
//
//   - "model" and "assistant" become "assistant"; "user" stays; other roles
//     are dropped.
//   - image, audio and video attachments are sent as data URLs when the
//     model's catalog entry lists the category, and dropped otherwise.
//   - text-like attachments are inlined between "--- File: name ---" markers.
//   - anything else is mentioned by name so the model knows it exists.
package upstream
