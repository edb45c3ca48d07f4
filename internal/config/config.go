// Package config holds the bot configuration: credentials, model settings,
// and the layered per-guild conversation options.
package config

// Config is the root configuration.
type Config struct {
	Discord   DiscordConfig          `json:"discord"`
	OpenAI    OpenAIConfig           `json:"openai"`
	Chat      ChatConfig             `json:"chat"`
	Guilds    map[string]GuildConfig `json:"guilds,omitempty"`
	Telemetry TelemetryConfig        `json:"telemetry,omitempty"`
	Log       LogConfig              `json:"log,omitempty"`
}

// DiscordConfig configures the platform connection. Token is env-only
// (BANTER_DISCORD_TOKEN), never persisted in the config file.
type DiscordConfig struct {
	Token          string `json:"-"`
	CommandPrefix  string `json:"command_prefix,omitempty"`
	ErrorChannelID string `json:"error_channel_id,omitempty"`
}

// OpenAIConfig configures the chat-completion and image-generation clients.
// APIKey is env-only (BANTER_OPENAI_API_KEY).
type OpenAIConfig struct {
	APIKey     string `json:"-"`
	APIBase    string `json:"api_base,omitempty"`
	Model      string `json:"model"`
	ImageModel string `json:"image_model,omitempty"`
	ImageSize  string `json:"image_size,omitempty"`
}

// ChatConfig tunes the conversation pipeline.
type ChatConfig struct {
	ContextWindow     int     `json:"context_window"`
	MaxResponseTokens int     `json:"max_response_tokens"`
	Temperature       float64 `json:"temperature"`
	CacheMaxEntries   uint64  `json:"cache_max_entries,omitempty"`
	RepliesPerMinute  int     `json:"replies_per_minute,omitempty"` // 0 = unthrottled
}

// GuildConfig holds the conversation options of one guild, keyed by channel
// id and by parent category id.
type GuildConfig struct {
	Channels   map[string]ChannelOptions `json:"channels,omitempty"`
	Categories map[string]ChannelOptions `json:"categories,omitempty"`
}

// ChannelOptions is the resolved per-channel configuration. A channel with
// no resolvable entry has the feature disabled.
type ChannelOptions struct {
	Enabled        bool     `json:"enabled"`
	AlwaysOn       bool     `json:"always_on,omitempty"`
	Topic          string   `json:"topic,omitempty"`
	Prompt         []string `json:"prompt,omitempty"`
	IgnorePrefixes []string `json:"ignore_prefixes,omitempty"`
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"` // OTLP/HTTP endpoint
	ServiceName string `json:"service_name,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level string `json:"level,omitempty"` // "debug", "info", "warn", "error"
	JSON  bool   `json:"json,omitempty"`
}

// Resolve looks up the options for a channel: the channel-specific entry
// wins, else the parent category entry, else no options (feature disabled
// for that channel).
func (c *Config) Resolve(guildID, channelID, categoryID string) (ChannelOptions, bool) {
	guild, ok := c.Guilds[guildID]
	if !ok {
		return ChannelOptions{}, false
	}
	if opts, ok := guild.Channels[channelID]; ok {
		return opts, true
	}
	if categoryID != "" {
		if opts, ok := guild.Categories[categoryID]; ok {
			return opts, true
		}
	}
	return ChannelOptions{}, false
}
