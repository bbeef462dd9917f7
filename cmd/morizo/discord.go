package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/config"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/gateway"
)

var discordCmd = &cobra.Command{
	Use:   "discord",
	Short: "Run the Discord bot",
	Long: `Run Morizo as a Discord bot. Each channel is one session.

The bot token is read from discord.token, MORIZO_DISCORD_TOKEN or
DISCORD_BOT_TOKEN. The bot needs the Message Content intent.`,
	RunE: runDiscord,
}

func runDiscord(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	bot, err := newDiscord(a)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go a.pruneChains(ctx)

	fmt.Println("Morizo Discord bot running. Press Ctrl+C to stop.")
	if err := bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newDiscord(a *app) (gateway.Messenger, error) {
	if a.cfg.Discord.Token == "" {
		return nil, errors.New("discord.token is not set")
	}
	return gateway.NewDiscordGateway(a.cfg.Discord.Token, a.router)
}
