package llm

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/danang/arunika/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient answers probes according to its script.
type fakeClient struct {
	name    string
	callErr error
	reply   string
	calls   int
}

func (f *fakeClient) Call(ctx context.Context, req Request) (*Response, error) {
	f.calls++
	if f.callErr != nil {
		return nil, f.callErr
	}
	reply := f.reply
	if reply == "" {
		reply = "OK"
	}
	return &Response{Content: reply}, nil
}

func (f *fakeClient) Name() string { return f.name }

// fakeFactory hands out scripted clients per provider name.
type fakeFactory struct {
	clients map[string]*fakeClient
	initErr map[string]error
}

func (f *fakeFactory) New(d Descriptor) (Client, error) {
	if err := f.initErr[d.Name]; err != nil {
		return nil, err
	}
	c, ok := f.clients[d.Name]
	if !ok {
		return nil, errors.New("unsupported provider: " + d.Name)
	}
	return c, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func autoConfig(providers ...config.ProviderConfig) config.LLMConfig {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name
	}
	return config.LLMConfig{
		Mode:         "auto",
		PriorityList: names,
		Providers:    providers,
	}
}

func TestSelectAuto(t *testing.T) {
	t.Run("should pick first healthy provider", func(t *testing.T) {
		factory := &fakeFactory{clients: map[string]*fakeClient{
			"anthropic": {name: "anthropic"},
			"openai":    {name: "openai"},
		}}
		m := NewManager(autoConfig(
			config.ProviderConfig{Name: "anthropic", APIKey: "key-a", Model: "claude"},
			config.ProviderConfig{Name: "openai", APIKey: "key-o", Model: "gpt"},
		), testLogger(), WithFactory(factory))

		h, err := m.Select(context.Background(), SelectOptions{})
		require.NoError(t, err)
		assert.Equal(t, "anthropic", h.Descriptor.Name)
		assert.Equal(t, "claude", h.Descriptor.Model)
		// Lower-priority candidate never probed
		assert.Zero(t, factory.clients["openai"].calls)
	})

	t.Run("should skip provider without credentials", func(t *testing.T) {
		factory := &fakeFactory{clients: map[string]*fakeClient{
			"openai": {name: "openai"},
		}}
		m := NewManager(autoConfig(
			config.ProviderConfig{Name: "anthropic", Model: "claude"}, // no key
			config.ProviderConfig{Name: "openai", APIKey: "key-o", Model: "gpt"},
		), testLogger(), WithFactory(factory))

		h, err := m.Select(context.Background(), SelectOptions{})
		require.NoError(t, err)
		assert.Equal(t, "openai", h.Descriptor.Name)
	})

	t.Run("should skip provider without model", func(t *testing.T) {
		factory := &fakeFactory{clients: map[string]*fakeClient{
			"openai": {name: "openai"},
		}}
		m := NewManager(autoConfig(
			config.ProviderConfig{Name: "anthropic", APIKey: "key-a"}, // no model
			config.ProviderConfig{Name: "openai", APIKey: "key-o", Model: "gpt"},
		), testLogger(), WithFactory(factory))

		h, err := m.Select(context.Background(), SelectOptions{})
		require.NoError(t, err)
		assert.Equal(t, "openai", h.Descriptor.Name)
	})

	t.Run("should fall through on failed probe", func(t *testing.T) {
		factory := &fakeFactory{clients: map[string]*fakeClient{
			"anthropic": {name: "anthropic", callErr: errors.New("503 overloaded")},
			"openai":    {name: "openai"},
		}}
		m := NewManager(autoConfig(
			config.ProviderConfig{Name: "anthropic", APIKey: "key-a", Model: "claude"},
			config.ProviderConfig{Name: "openai", APIKey: "key-o", Model: "gpt"},
		), testLogger(), WithFactory(factory))

		h, err := m.Select(context.Background(), SelectOptions{})
		require.NoError(t, err)
		assert.Equal(t, "openai", h.Descriptor.Name)
		assert.Equal(t, 1, factory.clients["anthropic"].calls)
	})

	t.Run("should skip unregistered providers in priority list", func(t *testing.T) {
		factory := &fakeFactory{clients: map[string]*fakeClient{
			"openai": {name: "openai"},
		}}
		cfg := config.LLMConfig{
			Mode:         "auto",
			PriorityList: []string{"groq", "openai"},
			Providers: []config.ProviderConfig{
				{Name: "openai", APIKey: "key-o", Model: "gpt"},
			},
		}
		m := NewManager(cfg, testLogger(), WithFactory(factory))

		h, err := m.Select(context.Background(), SelectOptions{})
		require.NoError(t, err)
		assert.Equal(t, "openai", h.Descriptor.Name)
	})

	t.Run("should fail with ErrNoProviderAvailable when all candidates fail", func(t *testing.T) {
		factory := &fakeFactory{clients: map[string]*fakeClient{
			"anthropic": {name: "anthropic", callErr: errors.New("boom")},
		}}
		m := NewManager(autoConfig(
			config.ProviderConfig{Name: "anthropic", APIKey: "key-a", Model: "claude"},
		), testLogger(), WithFactory(factory))

		_, err := m.Select(context.Background(), SelectOptions{})
		assert.ErrorIs(t, err, ErrNoProviderAvailable)
	})

	t.Run("should not require api key for ollama", func(t *testing.T) {
		factory := &fakeFactory{clients: map[string]*fakeClient{
			"ollama": {name: "ollama"},
		}}
		m := NewManager(autoConfig(
			config.ProviderConfig{Name: "ollama", BaseURL: "http://localhost:11434", Model: "llama3.2"},
		), testLogger(), WithFactory(factory))

		h, err := m.Select(context.Background(), SelectOptions{})
		require.NoError(t, err)
		assert.Equal(t, "ollama", h.Descriptor.Name)
	})
}

func TestSelectStatic(t *testing.T) {
	factory := &fakeFactory{clients: map[string]*fakeClient{
		"openai": {name: "openai"},
	}}

	t.Run("should select the named provider without probing", func(t *testing.T) {
		cfg := config.LLMConfig{
			Mode:           "static",
			StaticProvider: "openai",
			Providers: []config.ProviderConfig{
				{Name: "openai", APIKey: "key-o", Model: "gpt"},
			},
		}
		m := NewManager(cfg, testLogger(), WithFactory(factory))

		h, err := m.Select(context.Background(), SelectOptions{})
		require.NoError(t, err)
		assert.Equal(t, "openai", h.Descriptor.Name)
		assert.Zero(t, factory.clients["openai"].calls)
	})

	t.Run("should fail fast when static provider is unregistered", func(t *testing.T) {
		cfg := config.LLMConfig{Mode: "static", StaticProvider: "groq"}
		m := NewManager(cfg, testLogger(), WithFactory(factory))

		_, err := m.Select(context.Background(), SelectOptions{})
		assert.ErrorIs(t, err, ErrProviderNotConfigured)
	})

	t.Run("should fail fast when static provider misses model", func(t *testing.T) {
		cfg := config.LLMConfig{
			Mode:           "static",
			StaticProvider: "openai",
			Providers:      []config.ProviderConfig{{Name: "openai", APIKey: "key-o"}},
		}
		m := NewManager(cfg, testLogger(), WithFactory(factory))

		_, err := m.Select(context.Background(), SelectOptions{})
		assert.ErrorIs(t, err, ErrProviderNotConfigured)
	})

	t.Run("should fail fast when static provider misses credentials", func(t *testing.T) {
		cfg := config.LLMConfig{
			Mode:           "static",
			StaticProvider: "openai",
			Providers:      []config.ProviderConfig{{Name: "openai", Model: "gpt"}},
		}
		m := NewManager(cfg, testLogger(), WithFactory(factory))

		_, err := m.Select(context.Background(), SelectOptions{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "API key")
	})
}

func TestCheckAll(t *testing.T) {
	factory := &fakeFactory{clients: map[string]*fakeClient{
		"anthropic": {name: "anthropic", reply: "OK"},
		"openai":    {name: "openai", callErr: errors.New("429 rate limit")},
	}}
	cfg := config.LLMConfig{
		Mode:         "auto",
		PriorityList: []string{"anthropic", "openai", "groq", "ollama"},
		Providers: []config.ProviderConfig{
			{Name: "anthropic", APIKey: "key-a", Model: "claude"},
			{Name: "openai", APIKey: "key-o", Model: "gpt"},
			{Name: "ollama", Model: "llama3.2"}, // no base url
		},
	}
	m := NewManager(cfg, testLogger(), WithFactory(factory))

	results := m.CheckAll(context.Background())

	assert.Equal(t, "active: OK", results["anthropic"])
	assert.Contains(t, results["openai"], "failed")
	assert.Equal(t, "not registered", results["groq"])
	assert.Contains(t, results["ollama"], "base URL")
	assert.Len(t, results, 4)
}
