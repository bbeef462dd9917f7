package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "morizo",
	Short: "Conversational cooking assistant",
	Long: `Morizo plans your requests into service calls, runs them in dependency
order, asks when a request is ambiguous, and walks you through picking a
main dish, a side dish and a soup.

With no arguments, starts a chat in the terminal.

Front ends:
- chat      terminal chat (add --tui for the full-screen view)
- serve     HTTP API with server-sent progress events
- telegram  Telegram bot
- discord   Discord bot`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	addChatFlags(rootCmd)

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(telegramCmd)
	rootCmd.AddCommand(discordCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(versionCmd)
}
