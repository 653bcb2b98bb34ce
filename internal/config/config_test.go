package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "auto", cfg.LLM.Mode)
	assert.Equal(t, []string{"anthropic", "openai", "ollama"}, cfg.LLM.PriorityList)
	assert.Equal(t, 10, cfg.LLM.ProbeTimeout)
	assert.True(t, cfg.Moderation.Enabled)
	assert.Contains(t, cfg.Moderation.BannedKeywords, "hack")
	assert.Equal(t, "memory", cfg.Escalations.Backend)
	assert.Equal(t, 8080, cfg.Gateway.Port)
}

func TestValidate(t *testing.T) {
	t.Run("should accept default config", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("should reject invalid llm mode", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LLM.Mode = "round-robin"

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "llm mode")
	})

	t.Run("should require static provider in static mode", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LLM.Mode = "static"
		cfg.LLM.StaticProvider = ""

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "static_provider")
	})

	t.Run("should require priority list in auto mode", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LLM.PriorityList = nil

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "priority_list")
	})

	t.Run("should reject unknown provider name", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LLM.Providers = []ProviderConfig{{Name: "bedrock", Model: "m"}}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown provider")
	})

	t.Run("should reject out-of-range temperature", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Agent.Temperature = 1.5

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "temperature")
	})

	t.Run("should require sqlite path for sqlite backend", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Escalations.Backend = "sqlite"

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "sqlite_path")
	})

	t.Run("should require telegram token when telegram enabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Channels.Telegram.Enabled = true

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "telegram")
	})

	t.Run("should require whatsapp credentials when whatsapp enabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Channels.WhatsApp.Enabled = true

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "whatsapp")
	})
}

func TestProviderLookup(t *testing.T) {
	llm := LLMConfig{
		Providers: []ProviderConfig{
			{Name: "anthropic", APIKey: "key", Model: "claude-sonnet-4-5"},
		},
	}

	t.Run("should find provider case-insensitively", func(t *testing.T) {
		p := llm.Provider("Anthropic")
		require.NotNil(t, p)
		assert.Equal(t, "claude-sonnet-4-5", p.Model)
	})

	t.Run("should return nil for unknown provider", func(t *testing.T) {
		assert.Nil(t, llm.Provider("groq"))
	})
}

func TestLoader(t *testing.T) {
	t.Run("should return defaults for missing file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
		require.NoError(t, err)
		assert.Equal(t, "auto", cfg.LLM.Mode)
	})

	t.Run("should load config file over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "arunika.json")
		content := `{
			"llm": {"mode": "static", "static_provider": "openai"},
			"gateway": {"port": 9090},
			"data_dir": "` + t.TempDir() + `"
		}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "static", cfg.LLM.Mode)
		assert.Equal(t, "openai", cfg.LLM.StaticProvider)
		assert.Equal(t, 9090, cfg.Gateway.Port)
		// Untouched sections keep defaults
		assert.True(t, cfg.Moderation.Enabled)
	})

	t.Run("should fail on malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("should roundtrip through save", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "arunika.json")
		loader := NewLoader(path)

		cfg := DefaultConfig()
		cfg.DataDir = t.TempDir()
		cfg.Gateway.Port = 9191
		require.NoError(t, loader.Save(cfg))

		loaded, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, 9191, loaded.Gateway.Port)
	})
}
