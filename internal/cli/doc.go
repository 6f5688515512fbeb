// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the forkchat command-line interface.
//
// # Commands
//
//   - serve: run the conversation service
//   - chat: open the terminal chat (the default command)
//   - chats: list, search, create, export and delete conversations
//   - keys: show, set or clear provider API keys on the service
//   - fit: shrink an image to a byte budget
//   - config: write, show or locate the configuration file
//
// Configuration is read once per invocation from the --config file (or
// ~/.forkchat/config.toml), a .env file in the working directory and
// FORKCHAT_* environment variables.
//
// # Usage
//
//	app := cli.NewApp()
//	if err := app.Run(os.Args); err != nil {
//	    fmt.Fprintf(os.Stderr, "Error: %s\n", err)
//	    os.Exit(1)
//	}
package cli
