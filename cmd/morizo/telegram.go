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

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Run the Telegram bot",
	Long: `Run Morizo as a Telegram bot. Each chat is one session.

The bot token is read from telegram.token, MORIZO_TELEGRAM_TOKEN or
TELEGRAM_BOT_TOKEN.`,
	RunE: runTelegram,
}

func runTelegram(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	bot, err := newTelegram(a)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go a.pruneChains(ctx)

	fmt.Println("Morizo Telegram bot running. Press Ctrl+C to stop.")
	if err := bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newTelegram(a *app) (gateway.Messenger, error) {
	if a.cfg.Telegram.Token == "" {
		return nil, errors.New("telegram.token is not set")
	}
	bot, err := gateway.NewTelegramGateway(a.cfg.Telegram.Token, a.router)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return bot, nil
}
