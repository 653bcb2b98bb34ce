package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danang/arunika/internal/config"
	"github.com/rs/zerolog"
)

// probePrompt is the cheap liveness round-trip sent to each candidate.
const probePrompt = "Reply with the word OK only."

// Factory creates provider clients from descriptors.
type Factory interface {
	New(d Descriptor) (Client, error)
}

// ClientFactory is the default Factory backed by the real SDKs.
type ClientFactory struct{}

// New creates a client for the named provider.
func (f *ClientFactory) New(d Descriptor) (Client, error) {
	switch strings.ToLower(d.Name) {
	case "anthropic":
		return NewAnthropicClient(d.APIKey), nil
	case "openai":
		return NewOpenAIClient(d.APIKey), nil
	case "ollama":
		return NewOllamaClient(d.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", d.Name)
	}
}

// Manager selects a working LLM backend, either statically or by walking a
// priority-ordered candidate list with liveness probes.
type Manager struct {
	mode           string
	staticProvider string
	priorityList   []string
	registry       map[string]Descriptor
	probeTimeout   time.Duration
	factory        Factory
	logger         zerolog.Logger
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithFactory overrides the client factory (used by tests).
func WithFactory(f Factory) ManagerOption {
	return func(m *Manager) { m.factory = f }
}

// NewManager builds a manager from the LLM config section.
func NewManager(cfg config.LLMConfig, logger zerolog.Logger, opts ...ManagerOption) *Manager {
	registry := make(map[string]Descriptor, len(cfg.Providers))
	for _, p := range cfg.Providers {
		name := strings.ToLower(p.Name)
		registry[name] = Descriptor{
			Name:    name,
			APIKey:  p.APIKey,
			BaseURL: p.BaseURL,
			Model:   p.Model,
		}
	}

	probeTimeout := time.Duration(cfg.ProbeTimeout) * time.Second
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}

	m := &Manager{
		mode:           cfg.Mode,
		staticProvider: strings.ToLower(cfg.StaticProvider),
		priorityList:   cfg.PriorityList,
		registry:       registry,
		probeTimeout:   probeTimeout,
		factory:        &ClientFactory{},
		logger:         logger,
	}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SelectOptions tunes the selected handle.
type SelectOptions struct {
	Temperature float64
}

// Select returns a working backend according to the configured mode. It is
// blocking: auto mode performs network probes. Callers should select once
// per agent build, not per turn.
func (m *Manager) Select(ctx context.Context, opts SelectOptions) (*Handle, error) {
	if m.mode == "static" {
		return m.selectStatic()
	}
	return m.selectAuto(ctx)
}

// selectStatic resolves the configured provider with no fallback.
func (m *Manager) selectStatic() (*Handle, error) {
	d, ok := m.registry[m.staticProvider]
	if !ok {
		return nil, fmt.Errorf("static provider %q not found: %w", m.staticProvider, ErrProviderNotConfigured)
	}
	if d.Model == "" {
		return nil, fmt.Errorf("static provider %q missing model: %w", m.staticProvider, ErrProviderNotConfigured)
	}
	if err := m.checkCredentials(d); err != nil {
		return nil, fmt.Errorf("static provider %q: %w", m.staticProvider, err)
	}

	client, err := m.factory.New(d)
	if err != nil {
		return nil, fmt.Errorf("static provider %q init failed: %w", m.staticProvider, err)
	}

	return &Handle{Client: client, Descriptor: d}, nil
}

// selectAuto walks the priority list, probing each viable candidate in turn.
func (m *Manager) selectAuto(ctx context.Context) (*Handle, error) {
	for _, name := range m.priorityList {
		name = strings.ToLower(name)

		d, ok := m.registry[name]
		if !ok {
			m.logger.Warn().Str("provider", name).Msg("Provider not registered")
			continue
		}
		if d.Model == "" {
			m.logger.Warn().Str("provider", name).Msg("Model for provider not configured")
			continue
		}
		if err := m.checkCredentials(d); err != nil {
			m.logger.Warn().Str("provider", name).Err(err).Msg("Provider credentials missing")
			continue
		}

		client, err := m.factory.New(d)
		if err != nil {
			m.logger.Error().Str("provider", name).Err(err).Msg("Provider init failed")
			continue
		}

		if reply, err := m.probe(ctx, client, d); err != nil {
			m.logger.Error().Str("provider", name).Err(err).Msg("Provider failed health check")
			continue
		} else {
			m.logger.Info().Str("provider", name).Str("reply", reply).Msg("LLM provider active")
		}

		return &Handle{Client: client, Descriptor: d}, nil
	}

	return nil, ErrNoProviderAvailable
}

// CheckAll probes every provider in the priority list and returns a
// per-provider status string. Diagnostic only; never fails.
func (m *Manager) CheckAll(ctx context.Context) map[string]string {
	results := make(map[string]string, len(m.priorityList))

	for _, name := range m.priorityList {
		name = strings.ToLower(name)

		d, ok := m.registry[name]
		if !ok {
			results[name] = "not registered"
			continue
		}
		if d.Model == "" {
			results[name] = "model not configured"
			continue
		}
		if err := m.checkCredentials(d); err != nil {
			results[name] = err.Error()
			continue
		}

		client, err := m.factory.New(d)
		if err != nil {
			results[name] = fmt.Sprintf("init failed: %v", err)
			continue
		}

		reply, err := m.probe(ctx, client, d)
		if err != nil {
			results[name] = fmt.Sprintf("failed: %v", err)
			continue
		}
		results[name] = fmt.Sprintf("active: %s", reply)
	}

	return results
}

// checkCredentials verifies the descriptor carries what its provider needs.
func (m *Manager) checkCredentials(d Descriptor) error {
	if d.Name == "ollama" {
		if d.BaseURL == "" {
			return fmt.Errorf("base URL not set")
		}
		return nil
	}
	if d.APIKey == "" {
		return fmt.Errorf("API key not set")
	}
	return nil
}

// probe performs the minimal round-trip call with a bounded timeout.
func (m *Manager) probe(ctx context.Context, client Client, d Descriptor) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	resp, err := client.Call(probeCtx, Request{
		Model:     d.Model,
		Messages:  []Message{{Role: "user", Content: probePrompt}},
		MaxTokens: 8,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
