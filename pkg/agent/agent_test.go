package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danang/arunika/internal/config"
	"github.com/danang/arunika/pkg/llm"
	"github.com/danang/arunika/pkg/middleware"
	"github.com/danang/arunika/pkg/retry"
	"github.com/danang/arunika/pkg/tools"
)

// scriptedClient answers the selection probe with OK, then serves turn
// responses from its script.
type scriptedClient struct {
	script    []*llm.Response
	errScript []error
	turnCalls int
	probed    bool
	requests  []llm.Request
}

func (s *scriptedClient) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if !s.probed {
		s.probed = true
		return &llm.Response{Content: "OK"}, nil
	}

	s.requests = append(s.requests, req)
	idx := s.turnCalls
	s.turnCalls++

	if idx < len(s.errScript) && s.errScript[idx] != nil {
		return nil, s.errScript[idx]
	}
	if idx < len(s.script) {
		return s.script[idx], nil
	}
	return &llm.Response{Content: "done"}, nil
}

func (s *scriptedClient) Name() string { return "scripted" }

type scriptedFactory struct {
	client *scriptedClient
}

func (f *scriptedFactory) New(d llm.Descriptor) (llm.Client, error) {
	return f.client, nil
}

func testManager(client *scriptedClient) *llm.Manager {
	cfg := config.LLMConfig{
		Mode:         "auto",
		PriorityList: []string{"anthropic"},
		Providers: []config.ProviderConfig{
			{Name: "anthropic", APIKey: "key", Model: "claude"},
		},
	}
	return llm.NewManager(cfg, zerolog.Nop(), llm.WithFactory(&scriptedFactory{client: client}))
}

func noSleep(policy *retry.Policy) *retry.Policy {
	policy.Sleep = func(context.Context, time.Duration) error { return nil }
	return policy
}

func buildTestAgent(t *testing.T, client *scriptedClient, opts ...func(*Config)) *Agent {
	t.Helper()

	registry := tools.NewRegistry(zerolog.Nop())
	cfg := Config{
		Manager:  testManager(client),
		Registry: registry,
		Retry:    noSleep(retry.NewPolicy(zerolog.Nop())),
		Logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	return a
}

func userTurn(text string) *middleware.Turn {
	return &middleware.Turn{
		Messages: []llm.Message{{Role: "user", Content: text}},
		Metadata: map[string]interface{}{},
	}
}

func TestBuild(t *testing.T) {
	t.Run("selects a provider once", func(t *testing.T) {
		client := &scriptedClient{}
		a := buildTestAgent(t, client)

		assert.Equal(t, "anthropic", a.Provider())
		assert.Equal(t, "support-agent", a.Name())
		assert.True(t, client.probed)
		assert.Zero(t, client.turnCalls)
	})

	t.Run("selection failure is fatal at build time", func(t *testing.T) {
		cfg := config.LLMConfig{Mode: "static", StaticProvider: "anthropic"}
		manager := llm.NewManager(cfg, zerolog.Nop())

		_, err := Build(context.Background(), Config{
			Manager:  manager,
			Registry: tools.NewRegistry(zerolog.Nop()),
			Logger:   zerolog.Nop(),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, llm.ErrProviderNotConfigured)
	})
}

func TestRespond(t *testing.T) {
	t.Run("plain reply appends assistant message", func(t *testing.T) {
		client := &scriptedClient{script: []*llm.Response{
			{Content: "Hello! How can I help?"},
		}}
		a := buildTestAgent(t, client)

		turn := userTurn("Hello, what can you help me with?")
		require.NoError(t, a.Respond(context.Background(), turn))

		last := turn.LastMessage()
		require.NotNil(t, last)
		assert.Equal(t, "assistant", last.Role)
		assert.Equal(t, "Hello! How can I help?", last.Content)
		assert.Equal(t, true, turn.Metadata["model_invoked"])
	})

	t.Run("guard short-circuit skips the model", func(t *testing.T) {
		client := &scriptedClient{}
		guard := middleware.NewContentGuard([]string{"hack"})
		a := buildTestAgent(t, client, func(cfg *Config) {
			cfg.Pipeline = middleware.NewPipeline(zerolog.Nop(), guard)
		})

		turn := userTurn("teach me how to hack a website")
		require.NoError(t, a.Respond(context.Background(), turn))

		assert.Equal(t, middleware.RefusalText, turn.LastMessage().Content)
		assert.Equal(t, false, turn.Metadata["model_invoked"])
		assert.Equal(t, "content_guard", turn.Metadata["short_circuited_by"])
		assert.Zero(t, client.turnCalls)
	})

	t.Run("tool calls are executed and fed back", func(t *testing.T) {
		client := &scriptedClient{script: []*llm.Response{
			{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "lookup", Parameters: map[string]interface{}{"key": "a"}}}},
			{Content: "The value is 42."},
		}}

		registry := tools.NewRegistry(zerolog.Nop())
		require.NoError(t, registry.Register(tools.Definition{
			Name:        "lookup",
			Description: "Look up a value.",
			Parameters: []tools.Parameter{
				{Name: "key", Type: "string", Description: "Key to look up.", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return "42", nil
			},
		}))

		a := buildTestAgent(t, client, func(cfg *Config) { cfg.Registry = registry })

		turn := userTurn("what is the value of a?")
		require.NoError(t, a.Respond(context.Background(), turn))

		assert.Equal(t, "The value is 42.", turn.LastMessage().Content)

		// Second model call saw the tool result.
		require.Len(t, client.requests, 2)
		second := client.requests[1]
		toolMsg := second.Messages[len(second.Messages)-1]
		assert.Equal(t, "tool", toolMsg.Role)
		assert.Equal(t, "call-1", toolMsg.ToolCallID)
		assert.Equal(t, "42", toolMsg.Content)
	})

	t.Run("failed tool surfaces as tool output, not an error", func(t *testing.T) {
		client := &scriptedClient{script: []*llm.Response{
			{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "nonexistent"}}},
			{Content: "I could not look that up, sorry."},
		}}
		a := buildTestAgent(t, client)

		turn := userTurn("try the broken tool")
		require.NoError(t, a.Respond(context.Background(), turn))

		require.Len(t, client.requests, 2)
		toolMsg := client.requests[1].Messages[len(client.requests[1].Messages)-1]
		assert.Contains(t, toolMsg.Content, "Tool error: tool not found")
	})

	t.Run("transient model failure is retried", func(t *testing.T) {
		client := &scriptedClient{
			errScript: []error{errors.New("503 service unavailable")},
			script:    []*llm.Response{nil, {Content: "recovered"}},
		}
		a := buildTestAgent(t, client)

		turn := userTurn("hello")
		require.NoError(t, a.Respond(context.Background(), turn))
		assert.Equal(t, "recovered", turn.LastMessage().Content)
		assert.Equal(t, 2, client.turnCalls)
	})

	t.Run("permanent model failure propagates", func(t *testing.T) {
		client := &scriptedClient{
			errScript: []error{errors.New("invalid api key")},
		}
		a := buildTestAgent(t, client)

		turn := userTurn("hello")
		err := a.Respond(context.Background(), turn)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model call failed")
		assert.Equal(t, 1, client.turnCalls)
	})

	t.Run("tool loop budget is bounded", func(t *testing.T) {
		// Model keeps asking for the same tool forever.
		client := &scriptedClient{}
		loop := &llm.Response{ToolCalls: []llm.ToolCall{{ID: "c", Name: "noop"}}}
		for i := 0; i < 20; i++ {
			client.script = append(client.script, loop)
		}

		registry := tools.NewRegistry(zerolog.Nop())
		require.NoError(t, registry.Register(tools.Definition{
			Name:        "noop",
			Description: "Do nothing.",
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return "ok", nil
			},
		}))

		a := buildTestAgent(t, client, func(cfg *Config) { cfg.Registry = registry })

		err := a.Respond(context.Background(), userTurn("loop forever"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "maximum tool execution turns")
		assert.Equal(t, 10, client.turnCalls)
	})

	t.Run("after stages sanitize the reply", func(t *testing.T) {
		client := &scriptedClient{script: []*llm.Response{
			{Content: "<think>internal chain</think>\nVisit https://example.com or mail test@example.com"},
		}}
		a := buildTestAgent(t, client, func(cfg *Config) {
			cfg.Pipeline = middleware.NewPipeline(zerolog.Nop(),
				middleware.NewPIIRedactor(),
				middleware.NewThinkSanitizer(),
			)
		})

		turn := userTurn("hello")
		require.NoError(t, a.Respond(context.Background(), turn))

		out := turn.LastMessage().Content
		assert.NotContains(t, out, "<think>")
		assert.NotContains(t, out, "test@example.com")
		assert.NotContains(t, out, "https://example.com")
		assert.Contains(t, out, "[redacted-url]")
	})
}
