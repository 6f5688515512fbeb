// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/jeranaias/forkchat/internal/keys"
	"github.com/jeranaias/forkchat/internal/logging"
	"github.com/jeranaias/forkchat/internal/server"
	"github.com/jeranaias/forkchat/internal/storage"
	"github.com/jeranaias/forkchat/internal/upstream"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the conversation service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Listen on `HOST:PORT`",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Store conversations under `DIR`",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Storage backend: file or sqlite",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("addr") {
		cfg.Server.Addr = c.String("addr")
	}
	if c.IsSet("data-dir") {
		cfg.Server.DataDir = c.String("data-dir")
	}
	if c.IsSet("store") {
		cfg.Server.Store = c.String("store")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closer, err := logging.New(cfg.Log, c.App.ErrWriter)
	if err != nil {
		return err
	}
	defer closer.Close()

	store, err := storage.Open(cfg.Server.Store, cfg.Server.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(server.Config{
		Addr:          cfg.Server.Addr,
		RateLimit:     cfg.Server.RateLimit,
		RateBurst:     cfg.Server.RateBurst,
		MaxUploadSize: cfg.Server.MaxUploadBytes,
	}, server.Deps{
		Store:    store,
		Keys:     keys.NewStore(filepath.Join(cfg.Server.DataDir, "keys.json")),
		Upstream: upstream.NewClient(cfg.Server.UpstreamURL, cfg.Server.RequestTimeout),
		Catalog:  cfg.Catalog(),
		Logger:   log,
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug().
		Str("store", cfg.Server.Store).
		Str("data_dir", cfg.Server.DataDir).
		Msg("storage opened")
	return srv.ListenAndServe(ctx)
}
