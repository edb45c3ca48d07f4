package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			CommandPrefix: "!",
		},
		OpenAI: OpenAIConfig{
			Model:      "gpt-4o",
			ImageModel: "dall-e-3",
			ImageSize:  "1024x1024",
		},
		Chat: ChatConfig{
			ContextWindow:     16384,
			MaxResponseTokens: 1024,
			Temperature:       0.7,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file yields the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values; secrets come only from env.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("BANTER_DISCORD_TOKEN", &c.Discord.Token)
	envStr("BANTER_ERROR_CHANNEL_ID", &c.Discord.ErrorChannelID)
	envStr("BANTER_OPENAI_API_KEY", &c.OpenAI.APIKey)
	envStr("BANTER_OPENAI_API_BASE", &c.OpenAI.APIBase)
	envStr("BANTER_MODEL", &c.OpenAI.Model)
}

// Validate reports configuration errors that are fatal at startup.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord token missing (set BANTER_DISCORD_TOKEN)")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai api key missing (set BANTER_OPENAI_API_KEY)")
	}
	if c.Chat.ContextWindow <= 0 {
		return fmt.Errorf("chat.context_window must be positive")
	}
	if c.Chat.MaxResponseTokens <= 0 || c.Chat.MaxResponseTokens >= c.Chat.ContextWindow {
		return fmt.Errorf("chat.max_response_tokens must be positive and below the context window")
	}
	return nil
}
