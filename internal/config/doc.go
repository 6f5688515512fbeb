// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for forkchat.
//
// # Configuration Precedence
//
// Configuration is layered with koanf, later layers overriding earlier ones:
//   - Built-in defaults
//   - ~/.forkchat/config.toml, or the file named with --config
//   - Environment variables (FORKCHAT_SECTION__KEY)
//
// A ".env" file in the working directory is loaded into the process
// environment first, so provider keys such as OPENROUTER_API_KEY can live
// there.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	addr := cfg.Server.Addr
package config
