package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/config"
)

var purgeOlderThan time.Duration

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored sessions",
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove stale sessions and expired confirmations",
	Long: `Remove menu sessions not touched within --older-than (default:
session.ttl) and every expired pending confirmation from the database.`,
	RunE: runSessionsPurge,
}

func init() {
	sessionsPurgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 0, "Age after which a session is removed")
	sessionsCmd.AddCommand(sessionsPurgeCmd)
}

func runSessionsPurge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Driver == "memory" {
		printStatus("•", "storage.driver is memory; nothing is persisted", color.FgHiBlack)
		return nil
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	olderThan := purgeOlderThan
	if olderThan <= 0 {
		olderThan = cfg.Session.TTL
	}

	ctx := context.Background()
	sessions, err := db.Sessions(cfg.Session.TTL).Purge(ctx, olderThan)
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	confirmations, err := db.Confirmations(cfg.Confirmation.TTL).PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge confirmations: %w", err)
	}

	printStatus("✓", fmt.Sprintf("Removed %d sessions older than %s and %d expired confirmations",
		sessions, olderThan, confirmations), color.FgGreen)
	return nil
}
