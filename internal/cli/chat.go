// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/jeranaias/forkchat/internal/client"
	"github.com/jeranaias/forkchat/internal/config"
	"github.com/jeranaias/forkchat/internal/generation"
	"github.com/jeranaias/forkchat/internal/logging"
	"github.com/jeranaias/forkchat/internal/mediafit"
	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/ui/chat"
	"github.com/jeranaias/forkchat/internal/ui/styles"
)

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Open the terminal chat",
		ArgsUsage: "[CHAT_ID]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "new",
				Aliases: []string{"n"},
				Usage:   "Start a new conversation",
			},
			&cli.StringFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "Service base `URL`",
			},
		},
		Action: runChat,
	}
}

func runChat(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("url") {
		cfg.Client.BaseURL = c.String("url")
	}

	// The terminal belongs to the UI, so logs always go to a file.
	logCfg := cfg.Log
	if logCfg.File == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		logCfg.File = filepath.Join(dir, "forkchat.log")
	}
	log, closer, err := logging.New(logCfg, io.Discard)
	if err != nil {
		return err
	}
	defer closer.Close()

	svc, err := newServiceClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	id := c.Args().First()
	if id == "" {
		id = cfg.Client.ChatID
	}
	conv, err := openConversation(ctx, svc, id, c.Bool("new"))
	if err != nil {
		return err
	}
	log.Info().Str("conversation", conv.ID).Str("service", svc.BaseURL()).Msg("chat opened")

	bridge := chat.NewBridge()
	ctl := generation.New(svc, bridge, conv, generation.Options{
		RenderInterval: cfg.Generation.RenderInterval,
		Logger:         log,
	})
	fitter := newFitter(cfg.Media, bridge, log)

	m := chat.New(ctx, chat.Options{
		Controller:  ctl,
		Uploader:    svc,
		Fitter:      fitter,
		ImageBudget: cfg.Media.MaxImageBytes,
		Theme:       styles.NewTheme(),
		Logger:      log,
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	bridge.Attach(p)

	_, runErr := p.Run()

	// Let a running generation persist what it has before the context goes.
	ctl.Cancel()
	ctl.Wait()
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("chat: %w", runErr)
	}
	return nil
}

// openConversation loads id, or creates a conversation when asked to or
// when the service has none. Without either, the most recent one is opened.
func openConversation(ctx context.Context, svc *client.Client, id string, fresh bool) (*model.Conversation, error) {
	if id != "" && !fresh {
		return svc.Load(ctx, id)
	}
	if !fresh {
		metas, err := svc.List(ctx)
		if err != nil {
			return nil, err
		}
		if len(metas) > 0 {
			return svc.Load(ctx, metas[0].ID)
		}
	}
	return svc.Create(ctx)
}

func newServiceClient(cfg *config.Config) (*client.Client, error) {
	return client.New(cfg.Client.BaseURL, cfg.Client.Timeout)
}

// newFitter applies the configured search parameters.
func newFitter(mc config.MediaConfig, prompter mediafit.Prompter, log zerolog.Logger) *mediafit.Fitter {
	f := mediafit.New(prompter, log)
	f.DefaultQuality = mc.DefaultQuality
	f.Qualities = append([]int(nil), mc.Qualities...)
	f.MinScale = mc.MinScale
	f.Iterations = mc.Iterations
	f.TargetRatio = mc.TargetRatio
	return f
}
