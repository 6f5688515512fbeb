// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations for the forkchat service.
//
// Two backends implement Store:
//
//   - FileStore: one JSON document per conversation under the data
//     directory, written atomically. This is the default.
//   - SQLiteStore: a single SQLite database holding the same documents.
//
// Both keep uploaded attachment files on disk under <data>/<id>/files/.
//
// # Usage
//
//	store, err := storage.Open("file", dataDir)
//	conv, err := store.Load(ctx, id)
//	err = store.Save(ctx, conv)
//
// Search covers titles, message content, or both:
//
//	results, err := storage.Search(ctx, store, "query", storage.SearchAll)
package storage
