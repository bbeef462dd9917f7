package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoAPIKey is returned when no planner API key is configured.
var ErrNoAPIKey = errors.New("no planner API key configured")

var envReplacer = strings.NewReplacer(".", "_")

// key is one dot-notation configuration entry.
type key struct {
	name   string
	secret bool
	get    func(*Config) any
	set    func(*Config, string) error
}

var keys = []key{
	{name: "planner.provider", get: func(c *Config) any { return c.Planner.Provider },
		set: func(c *Config, v string) error { return setProvider(c, v) }},
	{name: "planner.model", get: func(c *Config) any { return c.Planner.Model },
		set: func(c *Config, v string) error { c.Planner.Model = v; return nil }},
	{name: "planner.api_key", secret: true, get: func(c *Config) any { return c.Planner.APIKey },
		set: func(c *Config, v string) error { c.Planner.APIKey = v; return nil }},
	{name: "planner.base_url", get: func(c *Config) any { return c.Planner.BaseURL },
		set: func(c *Config, v string) error { c.Planner.BaseURL = v; return nil }},
	{name: "planner.max_tokens", get: func(c *Config) any { return c.Planner.MaxTokens },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for planner.max_tokens: %w", err)
			}
			c.Planner.MaxTokens = n
			return nil
		}},
	{name: "planner.bedrock.enabled", get: func(c *Config) any { return c.Planner.Bedrock.Enabled },
		set: boolSetter("planner.bedrock.enabled", func(c *Config) *bool { return &c.Planner.Bedrock.Enabled })},
	{name: "planner.bedrock.region", get: func(c *Config) any { return c.Planner.Bedrock.Region },
		set: func(c *Config, v string) error { c.Planner.Bedrock.Region = v; return nil }},
	{name: "planner.bedrock.profile", get: func(c *Config) any { return c.Planner.Bedrock.Profile },
		set: func(c *Config, v string) error { c.Planner.Bedrock.Profile = v; return nil }},
	{name: "services.catalog", get: func(c *Config) any { return c.Services.Catalog },
		set: func(c *Config, v string) error { c.Services.Catalog = v; return nil }},
	{name: "services.timeout", get: func(c *Config) any { return c.Services.Timeout.String() },
		set: durationSetter("services.timeout", func(c *Config) *time.Duration { return &c.Services.Timeout })},
	{name: "services.auth_token", secret: true, get: func(c *Config) any { return c.Services.AuthToken },
		set: func(c *Config, v string) error { c.Services.AuthToken = v; return nil }},
	{name: "execution.max_parallel", get: func(c *Config) any { return c.Execution.MaxParallel },
		set: intSetter("execution.max_parallel", func(c *Config) *int { return &c.Execution.MaxParallel })},
	{name: "execution.task_timeout", get: func(c *Config) any { return c.Execution.TaskTimeout.String() },
		set: durationSetter("execution.task_timeout", func(c *Config) *time.Duration { return &c.Execution.TaskTimeout })},
	{name: "confirmation.ttl", get: func(c *Config) any { return c.Confirmation.TTL.String() },
		set: durationSetter("confirmation.ttl", func(c *Config) *time.Duration { return &c.Confirmation.TTL })},
	{name: "confirmation.max_attempts", get: func(c *Config) any { return c.Confirmation.MaxAttempts },
		set: intSetter("confirmation.max_attempts", func(c *Config) *int { return &c.Confirmation.MaxAttempts })},
	{name: "session.ttl", get: func(c *Config) any { return c.Session.TTL.String() },
		set: durationSetter("session.ttl", func(c *Config) *time.Duration { return &c.Session.TTL })},
	{name: "storage.driver", get: func(c *Config) any { return c.Storage.Driver },
		set: func(c *Config, v string) error { return setDriver(c, v) }},
	{name: "storage.path", get: func(c *Config) any { return c.Storage.Path },
		set: func(c *Config, v string) error { c.Storage.Path = v; return nil }},
	{name: "server.addr", get: func(c *Config) any { return c.Server.Addr },
		set: func(c *Config, v string) error { c.Server.Addr = v; return nil }},
	{name: "telegram.token", secret: true, get: func(c *Config) any { return c.Telegram.Token },
		set: func(c *Config, v string) error { c.Telegram.Token = v; return nil }},
	{name: "telegram.enabled", get: func(c *Config) any { return c.Telegram.Enabled },
		set: boolSetter("telegram.enabled", func(c *Config) *bool { return &c.Telegram.Enabled })},
	{name: "discord.token", secret: true, get: func(c *Config) any { return c.Discord.Token },
		set: func(c *Config, v string) error { c.Discord.Token = v; return nil }},
	{name: "discord.enabled", get: func(c *Config) any { return c.Discord.Enabled },
		set: boolSetter("discord.enabled", func(c *Config) *bool { return &c.Discord.Enabled })},
	{name: "log.debug_path", get: func(c *Config) any { return c.Log.DebugPath },
		set: func(c *Config, v string) error { c.Log.DebugPath = v; return nil }},
}

// Keys returns every configuration key in sorted order.
func Keys() []string {
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.name)
	}
	sort.Strings(names)
	return names
}

// Get returns the display value of a dot-notation key. Secrets are masked.
func (c *Config) Get(name string) (string, error) {
	k, ok := lookupKey(name)
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", name)
	}
	v := fmt.Sprint(k.get(c))
	if k.secret {
		return MaskAPIKey(v), nil
	}
	return v, nil
}

// Set parses value and assigns it to a dot-notation key.
func (c *Config) Set(name, value string) error {
	k, ok := lookupKey(name)
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", name)
	}
	return k.set(c, value)
}

func lookupKey(name string) (key, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range keys {
		if k.name == name {
			return k, true
		}
	}
	return key{}, false
}

func setProvider(c *Config, v string) error {
	switch v {
	case "anthropic", "openai":
		c.Planner.Provider = v
		return nil
	default:
		return fmt.Errorf("invalid planner.provider %q: want anthropic or openai", v)
	}
}

func setDriver(c *Config, v string) error {
	switch v {
	case "sqlite", "sqlite3", "memory":
		c.Storage.Driver = v
		return nil
	default:
		return fmt.Errorf("invalid storage.driver %q: want sqlite, sqlite3 or memory", v)
	}
}

func durationSetter(name string, field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
		*field(c) = d
		return nil
	}
}

func intSetter(name string, field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", name, err)
		}
		*field(c) = n
		return nil
	}
}

func boolSetter(name string, field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %w", name, err)
		}
		*field(c) = b
		return nil
	}
}

// GetAPIKey returns the planner API key.
// It checks in order: provider environment variable, config file.
func GetAPIKey(cfg *Config) (string, error) {
	if key := os.Getenv(providerEnv(cfg)); key != "" {
		return key, nil
	}

	if cfg != nil && cfg.Planner.APIKey != "" {
		key := os.ExpandEnv(cfg.Planner.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, nil
		}
	}

	return "", ErrNoAPIKey
}

// ValidateAPIKey performs basic format validation on a planner API key.
// It does not contact the provider.
func ValidateAPIKey(provider, key string) error {
	if key == "" {
		return ErrNoAPIKey
	}

	if provider == "anthropic" && !strings.HasPrefix(key, "sk-ant-") {
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	}

	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}

	return nil
}

// MaskAPIKey returns a masked version of a secret for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKeySource returns where the planner API key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	if os.Getenv(providerEnv(cfg)) != "" {
		return KeySourceEnv
	}

	if cfg != nil && cfg.Planner.APIKey != "" {
		key := os.ExpandEnv(cfg.Planner.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return KeySourceConfig
		}
	}

	return KeySourceNone
}

func providerEnv(cfg *Config) string {
	if cfg != nil && cfg.Planner.Provider == "openai" {
		return "OPENAI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}
