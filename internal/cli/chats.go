// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/jeranaias/forkchat/internal/client"
	"github.com/jeranaias/forkchat/internal/export"
	"github.com/jeranaias/forkchat/internal/storage"
	"github.com/jeranaias/forkchat/internal/util"
)

const titleWidth = 40

func chatsCommand() *cli.Command {
	urlFlag := &cli.StringFlag{
		Name:    "url",
		Aliases: []string{"u"},
		Usage:   "Service base `URL`",
	}
	return &cli.Command{
		Name:  "chats",
		Usage: "Manage stored conversations",
		Flags: []cli.Flag{urlFlag},
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List conversations, newest first",
				Action:  runChatsList,
			},
			{
				Name:      "search",
				Usage:     "Search titles and message text",
				ArgsUsage: "QUERY",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "What to search: title, content or all",
						Value: string(storage.SearchAll),
					},
				},
				Action: runChatsSearch,
			},
			{
				Name:   "new",
				Usage:  "Create an empty conversation and print its id",
				Action: runChatsNew,
			},
			{
				Name:      "export",
				Usage:     "Print or save a conversation",
				ArgsUsage: "CHAT_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: json or markdown",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Write a file into `DIR` instead of printing",
					},
					&cli.BoolFlag{
						Name:  "no-branches",
						Usage: "Leave inactive branches out of markdown",
					},
				},
				Action: runChatsExport,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a conversation and its files",
				ArgsUsage: "CHAT_ID",
				Action:    runChatsDelete,
			},
		},
		Action: runChatsList,
	}
}

// serviceFromContext builds a client honoring a --url override.
func serviceFromContext(c *cli.Context) (*client.Client, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if c.IsSet("url") {
		cfg.Client.BaseURL = c.String("url")
	}
	return newServiceClient(cfg)
}

func requireArg(c *cli.Context, name string) (string, error) {
	if v := c.Args().First(); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("missing %s", name)
}

func runChatsList(c *cli.Context) error {
	svc, err := serviceFromContext(c)
	if err != nil {
		return err
	}
	metas, err := svc.List(c.Context)
	if err != nil {
		return err
	}
	w := c.App.Writer
	if len(metas) == 0 {
		fmt.Fprintln(w, "No conversations yet.")
		return nil
	}
	for _, m := range metas {
		mark := " "
		if m.Bookmarked {
			mark = "*"
		}
		title := util.TruncateWidth(util.OneLine(m.Title), titleWidth)
		pad := titleWidth - util.StringWidth(title)
		fmt.Fprintf(w, "%s %s  %s%*s  %s\n", mark, m.ID, title, pad, "", humanize.Time(m.UpdatedAt))
	}
	return nil
}

func runChatsSearch(c *cli.Context) error {
	query, err := requireArg(c, "QUERY")
	if err != nil {
		return err
	}
	svc, err := serviceFromContext(c)
	if err != nil {
		return err
	}
	results, err := svc.Search(c.Context, query, storage.SearchMode(c.String("mode")))
	if err != nil {
		return err
	}
	w := c.App.Writer
	if len(results) == 0 {
		fmt.Fprintln(w, "No matches.")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(w, "%s  %s\n", r.ID, util.OneLine(r.Title))
		if r.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", util.OneLine(r.Snippet))
		}
	}
	return nil
}

func runChatsNew(c *cli.Context) error {
	svc, err := serviceFromContext(c)
	if err != nil {
		return err
	}
	conv, err := svc.Create(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, conv.ID)
	return nil
}

func runChatsExport(c *cli.Context) error {
	id, err := requireArg(c, "CHAT_ID")
	if err != nil {
		return err
	}
	svc, err := serviceFromContext(c)
	if err != nil {
		return err
	}
	opts := export.DefaultOptions()
	opts.IncludeBranches = !c.Bool("no-branches")
	exp, err := export.ForFormat(c.String("format"), opts)
	if err != nil {
		return err
	}
	conv, err := svc.Load(c.Context, id)
	if err != nil {
		return chatError(id, err)
	}

	if dir := c.String("dir"); dir != "" {
		path, err := export.ExportToFile(conv, exp, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
		return nil
	}
	data, err := exp.Export(conv)
	if err != nil {
		return err
	}
	language := "json"
	if exp.FileExtension() == ".md" {
		language = "markdown"
	}
	return writeHighlighted(c.App.Writer, data, language)
}

func runChatsDelete(c *cli.Context) error {
	id, err := requireArg(c, "CHAT_ID")
	if err != nil {
		return err
	}
	svc, err := serviceFromContext(c)
	if err != nil {
		return err
	}
	if err := svc.Delete(c.Context, id); err != nil {
		return chatError(id, err)
	}
	fmt.Fprintf(c.App.Writer, "Deleted %s\n", id)
	return nil
}

// chatError names the conversation in not-found errors.
func chatError(id string, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status == 404 {
		return fmt.Errorf("no conversation %s", id)
	}
	return err
}
