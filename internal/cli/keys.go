// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"
)

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "Manage provider API keys stored by the service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "Service base `URL`",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show which providers have a key",
				Action: runKeysStatus,
			},
			{
				Name:      "set",
				Usage:     "Save a key for a provider",
				ArgsUsage: "PROVIDER KEY",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return fmt.Errorf("usage: forkchat keys set PROVIDER KEY")
					}
					return updateKey(c, c.Args().Get(0), c.Args().Get(1))
				},
			},
			{
				Name:      "clear",
				Usage:     "Remove a provider's saved key",
				ArgsUsage: "PROVIDER",
				Action: func(c *cli.Context) error {
					provider, err := requireArg(c, "PROVIDER")
					if err != nil {
						return err
					}
					return updateKey(c, provider, "")
				},
			},
		},
		Action: runKeysStatus,
	}
}

func runKeysStatus(c *cli.Context) error {
	svc, err := serviceFromContext(c)
	if err != nil {
		return err
	}
	status, err := svc.KeyStatus(c.Context)
	if err != nil {
		return err
	}
	return printKeyStatus(c, status)
}

func updateKey(c *cli.Context, provider, key string) error {
	svc, err := serviceFromContext(c)
	if err != nil {
		return err
	}
	if err := svc.SetKeys(c.Context, map[string]string{provider: key}); err != nil {
		return err
	}
	status, err := svc.KeyStatus(c.Context)
	if err != nil {
		return err
	}
	return printKeyStatus(c, status)
}

func printKeyStatus(c *cli.Context, status map[string]bool) error {
	providers := make([]string, 0, len(status))
	for p := range status {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		state := "not set"
		if status[p] {
			state = "configured"
		}
		fmt.Fprintf(c.App.Writer, "%-12s %s\n", p, state)
	}
	return nil
}
