package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Morizo configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/morizo/config.yaml
Project-specific overrides can be placed in .morizo.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
			return nil
		case 1:
			value, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		default:
			return setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints every key and where the planner key comes from.
func displayAllConfig(cfg *config.Config) {
	keyColor := color.New(color.FgCyan)
	for _, name := range config.Keys() {
		value, _ := cfg.Get(name)
		fmt.Printf("%s: %s\n", keyColor.Sprint(name), value)
	}
	fmt.Println()
	printStatus("•", fmt.Sprintf("API key source: %s", config.GetAPIKeySource(cfg)), color.FgHiBlack)
	if p := config.GetProjectConfigPath(); p != "" {
		printStatus("•", "Project config: "+p, color.FgHiBlack)
	}
	printStatus("•", "User config: "+config.GetUserConfigPath(), color.FgHiBlack)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) error {
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if key == "planner.api_key" {
		if err := config.ValidateAPIKey(cfg.Planner.Provider, value); err != nil {
			printStatus("!", err.Error(), color.FgYellow)
		}
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	shown, _ := cfg.Get(key)
	printStatus("✓", fmt.Sprintf("Set %s = %s", key, shown), color.FgGreen)
	return nil
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(os.Stdout, "%s %s\n", c.Sprint(symbol), message)
}
