// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines all keyboard bindings for the chat screen.
type KeyMap struct {
	Submit       key.Binding
	Regenerate   key.Binding
	Branch       key.Binding
	PrevBranch   key.Binding
	NextBranch   key.Binding
	DeleteBranch key.Binding
	Collapse     key.Binding
	Cancel       key.Binding
	SelectUp     key.Binding
	SelectDown   key.Binding
	PageUp       key.Binding
	PageDown     key.Binding
	Help         key.Binding
	Quit         key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Regenerate: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("C-r", "regenerate"),
		),
		Branch: key.NewBinding(
			key.WithKeys("ctrl+b"),
			key.WithHelp("C-b", "new branch"),
		),
		PrevBranch: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "prev branch"),
		),
		NextBranch: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "next branch"),
		),
		DeleteBranch: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("C-x", "delete branch"),
		),
		Collapse: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("C-o", "keep only this branch"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "stop"),
		),
		SelectUp: key.NewBinding(
			key.WithKeys("alt+up"),
			key.WithHelp("M-up", "select previous"),
		),
		SelectDown: key.NewBinding(
			key.WithKeys("alt+down"),
			key.WithHelp("M-down", "select next"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "scroll down"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("F1", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+q", "ctrl+c"),
			key.WithHelp("C-q", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the one-line help.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Regenerate, k.Branch, k.PrevBranch, k.NextBranch, k.Cancel, k.Help}
}

// FullHelp returns the bindings grouped for the expanded help.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Cancel, k.Quit},
		{k.Regenerate, k.Branch, k.DeleteBranch, k.Collapse},
		{k.PrevBranch, k.NextBranch, k.SelectUp, k.SelectDown},
		{k.PageUp, k.PageDown, k.Help},
	}
}
