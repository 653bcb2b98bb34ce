package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config represents the main Arunika configuration
type Config struct {
	// Agent
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// LLM provider selection
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Channels
	Channels ChannelsConfig `json:"channels" mapstructure:"channels"`

	// Moderation
	Moderation ModerationConfig `json:"moderation" mapstructure:"moderation"`

	// Escalations
	Escalations EscalationsConfig `json:"escalations" mapstructure:"escalations"`

	// External collaborators
	Knowledge  KnowledgeConfig  `json:"knowledge" mapstructure:"knowledge"`
	Memory     MemoryConfig     `json:"memory" mapstructure:"memory"`
	Storefront StorefrontConfig `json:"storefront" mapstructure:"storefront"`

	// Gateway (HTTP surface)
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AgentConfig configures the customer-support agent
type AgentConfig struct {
	Name         string  `json:"name" mapstructure:"name"`
	SystemPrompt string  `json:"system_prompt" mapstructure:"system_prompt"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int     `json:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries   int     `json:"max_retries" mapstructure:"max_retries"`
}

// LLMConfig holds provider credentials and selection mode
type LLMConfig struct {
	Mode           string           `json:"mode" mapstructure:"mode"` // static, auto
	StaticProvider string           `json:"static_provider" mapstructure:"static_provider"`
	PriorityList   []string         `json:"priority_list" mapstructure:"priority_list"`
	ProbeTimeout   int              `json:"probe_timeout" mapstructure:"probe_timeout"` // seconds
	Providers      []ProviderConfig `json:"providers" mapstructure:"providers"`
}

// ProviderConfig describes one LLM backend
type ProviderConfig struct {
	Name    string `json:"name" mapstructure:"name"` // anthropic, openai, ollama
	APIKey  string `json:"api_key" mapstructure:"api_key"`
	BaseURL string `json:"base_url" mapstructure:"base_url"` // ollama only
	Model   string `json:"model" mapstructure:"model"`
}

// ChannelsConfig holds per-channel settings
type ChannelsConfig struct {
	Web      ChannelConfig        `json:"web" mapstructure:"web"`
	Telegram TelegramChannel      `json:"telegram" mapstructure:"telegram"`
	WhatsApp WhatsAppChannel      `json:"whatsapp" mapstructure:"whatsapp"`
}

// ChannelConfig represents a channel toggle
type ChannelConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// TelegramChannel holds Telegram bot settings
type TelegramChannel struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	BotToken string `json:"bot_token" mapstructure:"bot_token"`
}

// WhatsAppChannel holds WhatsApp Cloud API settings
type WhatsAppChannel struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	AccessToken   string `json:"access_token" mapstructure:"access_token"`
	PhoneNumberID string `json:"phone_number_id" mapstructure:"phone_number_id"`
}

// ModerationConfig configures the content guard
type ModerationConfig struct {
	Enabled        bool     `json:"enabled" mapstructure:"enabled"`
	BannedKeywords []string `json:"banned_keywords" mapstructure:"banned_keywords"`
	KeywordsFile   string   `json:"keywords_file" mapstructure:"keywords_file"` // optional, hot-reloaded
}

// EscalationsConfig configures the escalation store
type EscalationsConfig struct {
	Backend     string   `json:"backend" mapstructure:"backend"` // memory, sqlite
	SQLitePath  string   `json:"sqlite_path" mapstructure:"sqlite_path"`
	WebhookURLs []string `json:"webhook_urls" mapstructure:"webhook_urls"`
}

// KnowledgeConfig points at the RAG search backend
type KnowledgeConfig struct {
	BaseURL string `json:"base_url" mapstructure:"base_url"`
}

// MemoryConfig points at the long-term memory service
type MemoryConfig struct {
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	APIKey  string `json:"api_key" mapstructure:"api_key"`
}

// StorefrontConfig points at the shop backend
type StorefrontConfig struct {
	Store           string `json:"store" mapstructure:"store"`
	StorefrontToken string `json:"storefront_token" mapstructure:"storefront_token"`
	AdminToken      string `json:"admin_token" mapstructure:"admin_token"`
}

// GatewayConfig holds HTTP gateway settings
type GatewayConfig struct {
	Port               int    `json:"port" mapstructure:"port"`
	Host               string `json:"host" mapstructure:"host"`
	APIKey             string `json:"api_key" mapstructure:"api_key"` // admin endpoints
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:        "CustomerServiceAgent",
			Temperature: 0.3,
			MaxTokens:   4096,
			MaxRetries:  3,
		},
		LLM: LLMConfig{
			Mode:         "auto",
			PriorityList: []string{"anthropic", "openai", "ollama"},
			ProbeTimeout: 10,
		},
		Channels: ChannelsConfig{
			Web: ChannelConfig{Enabled: true},
		},
		Moderation: ModerationConfig{
			Enabled:        true,
			BannedKeywords: []string{"hack", "exploit", "malware"},
		},
		Escalations: EscalationsConfig{
			Backend: "memory",
		},
		Gateway: GatewayConfig{
			Port:               8080,
			Host:               "0.0.0.0",
			RateLimitPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.LLM.Mode {
	case "static", "auto":
	default:
		return fmt.Errorf("invalid llm mode %q (must be: static, auto)", c.LLM.Mode)
	}

	if c.LLM.Mode == "static" && c.LLM.StaticProvider == "" {
		return fmt.Errorf("llm static mode requires static_provider")
	}

	if c.LLM.Mode == "auto" && len(c.LLM.PriorityList) == 0 {
		return fmt.Errorf("llm auto mode requires a non-empty priority_list")
	}

	for i, p := range c.LLM.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d: name is required", i)
		}
		switch strings.ToLower(p.Name) {
		case "anthropic", "openai", "ollama":
		default:
			return fmt.Errorf("provider %s: unknown provider (must be: anthropic, openai, ollama)", p.Name)
		}
	}

	if c.Agent.Temperature < 0 || c.Agent.Temperature > 1 {
		return fmt.Errorf("agent temperature must be between 0 and 1")
	}
	if c.Agent.MaxTokens < 0 {
		return fmt.Errorf("agent max_tokens cannot be negative")
	}

	switch c.Escalations.Backend {
	case "", "memory":
	case "sqlite":
		if c.Escalations.SQLitePath == "" {
			return fmt.Errorf("escalations sqlite backend requires sqlite_path")
		}
	default:
		return fmt.Errorf("invalid escalations backend %q (must be: memory, sqlite)", c.Escalations.Backend)
	}

	if c.Channels.Telegram.Enabled && c.Channels.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required when the Telegram channel is enabled")
	}
	if c.Channels.WhatsApp.Enabled {
		if c.Channels.WhatsApp.AccessToken == "" {
			return fmt.Errorf("whatsapp access token is required when the WhatsApp channel is enabled")
		}
		if c.Channels.WhatsApp.PhoneNumberID == "" {
			return fmt.Errorf("whatsapp phone number id is required when the WhatsApp channel is enabled")
		}
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port %d", c.Gateway.Port)
	}

	return nil
}

// Provider returns the provider config with the given name, or nil.
func (c *LLMConfig) Provider(name string) *ProviderConfig {
	name = strings.ToLower(name)
	for i := range c.Providers {
		if strings.ToLower(c.Providers[i].Name) == name {
			return &c.Providers[i]
		}
	}
	return nil
}
