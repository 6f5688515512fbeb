// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/jeranaias/forkchat/internal/config"
	"github.com/jeranaias/forkchat/internal/server"
)

// Version information (set at build time)
var (
	Version   = server.Version
	GitCommit = "unknown"
)

const configKey = "config"

// NewApp builds the forkchat command tree.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "forkchat",
		Usage:   "branching LLM chat in the terminal",
		Version: versionString(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"FORKCHAT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE`",
				Value: ".env",
			},
		},
		Before: func(c *cli.Context) error {
			config.LoadDotEnv(c.String("env-file"))
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			chatCommand(),
			chatsCommand(),
			keysCommand(),
			fitCommand(),
			configCommand(),
		},
		ArgsUsage: "[CHAT_ID]",
		Action:    runChat,
	}
}

func versionString() string {
	if GitCommit == "" || GitCommit == "unknown" {
		return Version
	}
	return Version + " (" + GitCommit + ")"
}

// loadConfig reads the configuration once per invocation.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg, nil
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return cfg, nil
}
