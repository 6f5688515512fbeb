// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders conversations for reading outside forkchat.
//
// # Supported Formats
//
//   - json: the stored record, branches included
//   - markdown: the live thread, with reasoning folded into <details> blocks
//     and, optionally, every inactive branch listed after it
//
// # Usage
//
//	exp, err := export.ForFormat("markdown", export.DefaultOptions())
//	path, err := export.ExportToFile(conv, exp, "exports")
package export
