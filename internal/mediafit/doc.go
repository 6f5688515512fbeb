// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mediafit transcodes image attachments until they satisfy a byte
// budget, or reports that they cannot.
//
// A file already inside its budget is returned untouched. Otherwise the user
// is offered convert, keep (outside preflight only) or skip. Convert first
// re-encodes at full resolution with a high quality setting, then searches
// quality levels in descending order, bisecting the resolution scale at each
// level. Every candidate is encoded from the decoded original.
package mediafit
