// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server implements the conversation service the terminal client
// talks to.
//
// # Endpoints
//
//   - GET    /api/chats                      - List conversations, newest first
//   - GET    /api/chats/search               - Search titles and content
//   - POST   /api/chats                      - Create a conversation
//   - GET    /api/chats/:id                  - Read a conversation
//   - PUT    /api/chats/:id                  - Partial update
//   - DELETE /api/chats/:id                  - Delete with uploaded files
//   - POST   /api/chats/:id/generate         - Stream a model response (SSE)
//   - POST   /api/chats/:id/upload           - Upload an attachment
//   - GET    /api/chats/:id/files/:filename  - Serve an attachment
//   - GET    /api/keys, POST /api/keys       - Provider key status and update
//   - GET    /api/models                     - Model catalog
//   - GET    /health, GET /metrics
//
// # Generation
//
// The generate endpoint proxies the upstream event stream verbatim. Failures
// are reported in-band as a single "event: error" record whose data is
// {"error": message, "status_code": n}. When the upstream stream ends
// normally the finished model message is appended to the stored
// conversation. A client that disconnects keeps its own partial text, so
// nothing is appended in that case.
package server
