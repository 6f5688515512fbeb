// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the forkchat terminal chat screen.

The screen is a Bubble Tea model that drives a generation.Controller. It
never mutates the conversation itself: every action is handed to the
controller in a command, and the controller reports back through a Bridge,
which turns Renderer calls from any goroutine into Bubble Tea messages.

# Key Components

## Model (model.go)

  - the last conversation snapshot and the live streaming frame
  - the selected message, which branch actions apply to
  - queued attachments and the pending image-fit question

## Update Loop (update.go)

  - Enter submits; lines starting with "/" run commands
  - ctrl+r regenerates the selected turn, ctrl+b forks a new branch
  - [ and ] switch branches when the input is empty
  - ctrl+x deletes the active branch, ctrl+o keeps only the live one
  - esc cancels a running generation; manual scrolling stops auto-follow

## Commands (commands.go)

  - /attach <path>, /detach [n]
  - /clip <start> <end>, /fps <n> for audio and video attachments
  - /delete, /retry

# Usage

	bridge := chat.NewBridge()
	ctl := generation.New(svc, bridge, conv, generation.Options{})
	fitter := mediafit.New(bridge, logger)
	m := chat.New(ctx, chat.Options{Controller: ctl, Bridge: bridge, Fitter: fitter, Uploader: svc})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	bridge.Attach(p)
	_, err := p.Run()
*/
package chat
