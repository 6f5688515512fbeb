// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/peterh/liner"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/jeranaias/forkchat/internal/mediafit"
	"github.com/jeranaias/forkchat/internal/util"
)

func fitCommand() *cli.Command {
	return &cli.Command{
		Name:      "fit",
		Usage:     "Shrink an image to a byte budget",
		ArgsUsage: "IMAGE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "budget",
				Aliases: []string{"b"},
				Usage:   "Size limit such as 5MB (default: media.max_image_bytes)",
			},
			&cli.StringFlag{
				Name:  "choice",
				Usage: "Answer for oversized images: convert, keep or skip",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the result to `FILE`",
			},
		},
		Action: runFit,
	}
}

func runFit(c *cli.Context) error {
	src, err := requireArg(c, "IMAGE")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	budget := cfg.Media.MaxImageBytes
	if c.IsSet("budget") {
		n, err := humanize.ParseBytes(c.String("budget"))
		if err != nil {
			return fmt.Errorf("invalid budget %q: %w", c.String("budget"), err)
		}
		budget = int64(n)
	}

	var prompter mediafit.Prompter
	switch {
	case c.IsSet("choice"):
		choice, ok := mediafit.ParseChoice(strings.ToLower(c.String("choice")))
		if !ok {
			return fmt.Errorf("invalid choice %q: want convert, keep or skip", c.String("choice"))
		}
		prompter = mediafit.Always(choice)
	case IsTTY():
		prompter = linePrompter{}
	default:
		return errors.New("stdin is not a terminal; pass --choice")
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	file := mediafit.File{
		Name:     filepath.Base(src),
		MimeType: mime.TypeByExtension(filepath.Ext(src)),
		Data:     data,
	}

	fitter := newFitter(cfg.Media, prompter, zerolog.Nop())
	res, err := fitter.Fit(c.Context, file, budget, false)
	w := c.App.Writer
	if errors.Is(err, mediafit.ErrSkipped) {
		fmt.Fprintf(w, "Skipped %s\n", file.Name)
		return nil
	}
	if err != nil {
		return err
	}

	if !res.Changed {
		fmt.Fprintf(w, "%s is %s, within the %s limit; nothing to do\n",
			file.Name, humanize.Bytes(uint64(file.Size())), humanize.Bytes(uint64(budget)))
		return nil
	}

	out := c.String("output")
	if out == "" {
		out = outputPath(src, res.File.Name)
	}
	if err := util.AtomicWriteFile(out, res.File.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(w, "%s: %s -> %s (quality %d, scale %.2f), wrote %s\n",
		file.Name,
		humanize.Bytes(uint64(file.Size())),
		humanize.Bytes(uint64(res.File.Size())),
		res.Quality, res.Scale, out)
	return nil
}

// outputPath places the fitted file next to src without replacing it.
func outputPath(src, fittedName string) string {
	dir := filepath.Dir(src)
	ext := filepath.Ext(fittedName)
	out := filepath.Join(dir, strings.TrimSuffix(fittedName, ext)+".fit"+ext)
	return out
}

// linePrompter asks on the terminal with line editing.
type linePrompter struct{}

func (linePrompter) Choose(ctx context.Context, p mediafit.Prompt) (mediafit.Choice, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	options := "[c]onvert/[s]kip"
	if p.AllowKeep {
		options = "[c]onvert/[k]eep/[s]kip"
	}
	question := fmt.Sprintf("%s is %s, over the %s limit. %s: ",
		p.Filename, humanize.Bytes(uint64(p.Size)), humanize.Bytes(uint64(p.Budget)), options)

	for {
		if err := ctx.Err(); err != nil {
			return mediafit.ChoiceSkip, err
		}
		answer, err := line.Prompt(question)
		if errors.Is(err, liner.ErrPromptAborted) {
			return mediafit.ChoiceSkip, nil
		}
		if err != nil {
			return mediafit.ChoiceSkip, err
		}
		choice, ok := mediafit.ParseChoice(strings.ToLower(strings.TrimSpace(answer)))
		if ok && (choice != mediafit.ChoiceKeep || p.AllowKeep) {
			return choice, nil
		}
	}
}
