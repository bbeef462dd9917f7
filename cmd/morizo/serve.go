package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/config"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/gateway"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/server"
)

var (
	serveAddr     string
	serveTelegram bool
	serveDiscord  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the Morizo HTTP API under /api/v1.

Progress of a session's chains streams from /api/v1/sessions/{id}/events as
server-sent events. When a config file exists it is watched, and a changed
services.catalog is applied without a restart.

With --telegram or --discord the chat bots run in the same process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr)")
	serveCmd.Flags().BoolVar(&serveTelegram, "telegram", false, "Also run the Telegram bot")
	serveCmd.Flags().BoolVar(&serveDiscord, "discord", false, "Also run the Discord bot")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if path := watchedConfigPath(); path != "" {
		if _, err := config.Watch(path, a.reloadCatalog); err != nil {
			log.Printf("[morizo] not watching %s: %v", path, err)
		}
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	opts := []server.Option{server.WithEvents(a.bus)}
	if a.db != nil {
		opts = append(opts, server.WithMenus(a.db), server.WithTaskHistory(a.db))
	}
	srv := server.New(addr, a.orch, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go a.pruneChains(ctx)

	var bots []gateway.Messenger
	if serveTelegram || cfg.Telegram.Enabled {
		bot, err := newTelegram(a)
		if err != nil {
			return err
		}
		bots = append(bots, bot)
	}
	if serveDiscord || cfg.Discord.Enabled {
		bot, err := newDiscord(a)
		if err != nil {
			return err
		}
		bots = append(bots, bot)
	}
	for _, bot := range bots {
		go func(bot gateway.Messenger) {
			if err := bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[morizo] chat bot stopped: %v", err)
			}
		}(bot)
	}

	return srv.Start(ctx)
}

// watchedConfigPath is the project config if present, else the user config
// if it exists.
func watchedConfigPath() string {
	if p := config.GetProjectConfigPath(); p != "" {
		return p
	}
	p := config.GetUserConfigPath()
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// reloadCatalog swaps the HTTP services' catalog after a config change.
func (a *app) reloadCatalog(next *config.Config) {
	catalog, err := loadCatalog(next)
	if err != nil {
		log.Printf("[morizo] keeping previous service catalog: %v", err)
		return
	}
	a.http.SetCatalog(catalog)
	log.Printf("[morizo] service catalog reloaded (%d services)", len(catalog.Services))
}
