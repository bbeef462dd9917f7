// Package config handles configuration loading and management for Morizo.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for Morizo.
type Config struct {
	Planner      PlannerConfig      `mapstructure:"planner"`
	Services     ServicesConfig     `mapstructure:"services"`
	Execution    ExecutionConfig    `mapstructure:"execution"`
	Confirmation ConfirmationConfig `mapstructure:"confirmation"`
	Session      SessionConfig      `mapstructure:"session"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Server       ServerConfig       `mapstructure:"server"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Discord      DiscordConfig      `mapstructure:"discord"`
	Log          LogConfig          `mapstructure:"log"`
}

// PlannerConfig selects and configures the LLM behind the planner.
type PlannerConfig struct {
	// Provider is "anthropic" or "openai" (any OpenAI-compatible endpoint).
	Provider  string        `mapstructure:"provider"`
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	MaxTokens int64         `mapstructure:"max_tokens"`
	Bedrock   BedrockConfig `mapstructure:"bedrock"`
}

// BedrockConfig routes Anthropic calls through AWS Bedrock.
type BedrockConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

// ServicesConfig locates the service catalog.
type ServicesConfig struct {
	// Catalog is a YAML catalog path; empty uses the built-in catalog.
	Catalog string        `mapstructure:"catalog"`
	Timeout time.Duration `mapstructure:"timeout"`
	// AuthToken is sent as a bearer token to HTTP services.
	AuthToken string `mapstructure:"auth_token"`
}

// ExecutionConfig bounds chain execution.
type ExecutionConfig struct {
	MaxParallel int           `mapstructure:"max_parallel"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// ConfirmationConfig controls pending confirmations.
type ConfirmationConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// SessionConfig controls stage sessions.
type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "sqlite" (pure Go), "sqlite3" (cgo) or "memory".
	Driver string `mapstructure:"driver"`
	// Path is the database file; empty uses the XDG data directory.
	Path string `mapstructure:"path"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelegramConfig holds the Telegram gateway settings.
type TelegramConfig struct {
	Token   string `mapstructure:"token"`
	Enabled bool   `mapstructure:"enabled"`
}

// DiscordConfig holds the Discord gateway settings.
type DiscordConfig struct {
	Token   string `mapstructure:"token"`
	Enabled bool   `mapstructure:"enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// DebugPath enables the debug log when set.
	DebugPath string `mapstructure:"debug_path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (MORIZO_*, ANTHROPIC_API_KEY, OPENAI_API_KEY, TELEGRAM_BOT_TOKEN, DISCORD_BOT_TOKEN)
// 2. Project config (.morizo.yaml in current directory or parent)
// 3. User config (~/.config/morizo/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

// Watch loads path and calls onChange with the re-read configuration every
// time the file is written. Invalid intermediate states are logged and skipped.
func Watch(path string, onChange func(*Config)) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := unmarshal(v)
		if err != nil {
			log.Printf("[config] reload %s: %v", e.Name, err)
			return
		}
		log.Printf("[config] reloaded %s", e.Name)
		onChange(next)
	})
	v.WatchConfig()
	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveToPath(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveToPath writes the configuration as YAML to path.
func SaveToPath(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	for _, k := range keys {
		v.Set(k.name, k.get(cfg))
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Planner.APIKey = expandEnv(cfg.Planner.APIKey)
	cfg.Telegram.Token = expandEnv(cfg.Telegram.Token)
	cfg.Discord.Token = expandEnv(cfg.Discord.Token)
	cfg.Services.AuthToken = expandEnv(cfg.Services.AuthToken)
	return cfg, nil
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("MORIZO")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	v.BindEnv("telegram.token", "MORIZO_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("discord.token", "MORIZO_DISCORD_TOKEN", "DISCORD_BOT_TOKEN")
	v.BindEnv("planner.api_key", "MORIZO_PLANNER_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()
	for _, k := range keys {
		v.SetDefault(k.name, k.get(d))
	}
}

// getUserConfigDir returns the XDG config directory for Morizo.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "morizo")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "morizo")
	}
	return filepath.Join(home, ".config", "morizo")
}

// findProjectConfig searches for .morizo.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".morizo.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Planner: PlannerConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 2048,
			Bedrock: BedrockConfig{
				Region: "us-east-1",
			},
		},
		Services: ServicesConfig{
			Timeout: 30 * time.Second,
		},
		Execution: ExecutionConfig{
			MaxParallel: 4,
			TaskTimeout: time.Minute,
		},
		Confirmation: ConfirmationConfig{
			TTL:         10 * time.Minute,
			MaxAttempts: 3,
		},
		Session: SessionConfig{
			TTL: 24 * time.Hour,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}
