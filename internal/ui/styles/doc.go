// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling for the forkchat terminal
// client. All colors use Lip Gloss AdaptiveColor for automatic light/dark
// detection; the theme additionally records the terminal's color profile so
// markdown rendering can match it.
package styles
