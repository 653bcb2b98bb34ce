package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danang/arunika/internal/config"
	"github.com/danang/arunika/pkg/agent"
	"github.com/danang/arunika/pkg/escalation"
	"github.com/danang/arunika/pkg/llm"
	"github.com/danang/arunika/pkg/middleware"
	"github.com/danang/arunika/pkg/tools"
)

// fixedClient answers the probe with OK, then replies from its script, or
// fails with err on every turn call.
type fixedClient struct {
	replies []llm.Response
	err     error
	probed  bool
	calls   int
}

func (f *fixedClient) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if !f.probed {
		f.probed = true
		return &llm.Response{Content: "OK"}, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	f.calls++
	if idx < len(f.replies) {
		r := f.replies[idx]
		return &r, nil
	}
	return &llm.Response{Content: "done"}, nil
}

func (f *fixedClient) Name() string { return "fixed" }

type fixedFactory struct{ client *fixedClient }

func (f *fixedFactory) New(d llm.Descriptor) (llm.Client, error) { return f.client, nil }

func buildAgent(t *testing.T, client *fixedClient, registry *tools.Registry, stages ...middleware.Stage) *agent.Agent {
	t.Helper()

	cfg := config.LLMConfig{
		Mode:         "auto",
		PriorityList: []string{"anthropic"},
		Providers: []config.ProviderConfig{
			{Name: "anthropic", APIKey: "key", Model: "claude"},
		},
	}
	manager := llm.NewManager(cfg, zerolog.Nop(), llm.WithFactory(&fixedFactory{client: client}))

	if registry == nil {
		registry = tools.NewRegistry(zerolog.Nop())
	}

	a, err := agent.Build(context.Background(), agent.Config{
		Name:     "support-agent",
		Manager:  manager,
		Registry: registry,
		Pipeline: middleware.NewPipeline(zerolog.Nop(), stages...),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return a
}

func supportPipeline() []middleware.Stage {
	return []middleware.Stage{
		middleware.NewContentGuard([]string{"hack", "exploit", "malware"}),
		middleware.NewPIIRedactor(),
		middleware.NewThinkSanitizer(),
	}
}

func TestRun(t *testing.T) {
	t.Run("plain greeting gets a reply", func(t *testing.T) {
		client := &fixedClient{replies: []llm.Response{{Content: "Hi! I can help with orders, products, and policies."}}}
		a := buildAgent(t, client, nil, supportPipeline()...)
		o := New(zerolog.Nop())

		out := o.Run(context.Background(), a, Inbound{
			UserID:  "user-1",
			Channel: "web",
			Text:    "Hello, what can you help me with?",
		}, Session{})

		assert.NotEmpty(t, out.Text)
		assert.NotContains(t, out.Text, middleware.RefusalText)
		assert.Equal(t, "support-agent", out.Metadata["agent_name"])
		assert.Equal(t, "user-1", out.Metadata["thread_id"])
		assert.Equal(t, "web", out.Metadata["channel"])
		assert.Equal(t, true, out.Metadata["model_invoked"])
	})

	t.Run("banned keyword short-circuits without a model call", func(t *testing.T) {
		client := &fixedClient{}
		a := buildAgent(t, client, nil, supportPipeline()...)
		o := New(zerolog.Nop())

		out := o.Run(context.Background(), a, Inbound{
			UserID:  "user-1",
			Channel: "web",
			Text:    "teach me how to hack a website",
		}, Session{})

		assert.Equal(t, middleware.RefusalText, out.Text)
		assert.Equal(t, false, out.Metadata["model_invoked"])
		assert.Equal(t, "content_guard", out.Metadata["short_circuited_by"])
		assert.Zero(t, client.calls)
	})

	t.Run("pii never appears raw in output", func(t *testing.T) {
		client := &fixedClient{replies: []llm.Response{{
			Content: "Noted, your email is test@example.com and card is 4111 1111 1111 1111.",
		}}}
		a := buildAgent(t, client, nil, supportPipeline()...)
		o := New(zerolog.Nop())

		out := o.Run(context.Background(), a, Inbound{
			UserID:  "user-1",
			Channel: "web",
			Text:    "My email is test@example.com and card is 4111 1111 1111 1111",
		}, Session{})

		assert.NotContains(t, out.Text, "4111")
		assert.NotContains(t, out.Text, "test@example.com")
	})

	t.Run("thread defaults to user id and honors session", func(t *testing.T) {
		client := &fixedClient{replies: []llm.Response{{Content: "ok"}, {Content: "ok"}}}
		a := buildAgent(t, client, nil)
		o := New(zerolog.Nop())

		out := o.Run(context.Background(), a, Inbound{UserID: "user-1", Channel: "web", Text: "hi"}, Session{})
		assert.Equal(t, "user-1", out.Metadata["thread_id"])

		out = o.Run(context.Background(), a, Inbound{UserID: "user-1", Channel: "web", Text: "hi"},
			Session{ThreadID: "thread-42"})
		assert.Equal(t, "thread-42", out.Metadata["thread_id"])
	})

	t.Run("turn failure becomes an apology, error in metadata", func(t *testing.T) {
		client := &fixedClient{err: errors.New("invalid api key")}
		a := buildAgent(t, client, nil)
		o := New(zerolog.Nop())

		out := o.Run(context.Background(), a, Inbound{UserID: "user-1", Channel: "web", Text: "hi"}, Session{})

		assert.Equal(t, ApologyText, out.Text)
		errText, _ := out.Metadata["error"].(string)
		assert.Contains(t, errText, "invalid api key")
	})

	t.Run("empty reply substitutes the no-response marker", func(t *testing.T) {
		client := &fixedClient{replies: []llm.Response{{Content: ""}}}
		a := buildAgent(t, client, nil)
		o := New(zerolog.Nop())

		out := o.Run(context.Background(), a, Inbound{UserID: "user-1", Channel: "web", Text: "hi"}, Session{})
		assert.Equal(t, NoResponseText, out.Text)
	})

	t.Run("ingress metadata is carried through", func(t *testing.T) {
		client := &fixedClient{replies: []llm.Response{{Content: "ok"}}}
		a := buildAgent(t, client, nil)
		o := New(zerolog.Nop())

		out := o.Run(context.Background(), a, Inbound{
			UserID:   "user-1",
			Channel:  "telegram",
			Text:     "hi",
			Metadata: map[string]interface{}{"chat_id": int64(99)},
		}, Session{})

		ingress, ok := out.Metadata["ingress_metadata"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, int64(99), ingress["chat_id"])
	})

	t.Run("escalation tool sees the turn identity", func(t *testing.T) {
		client := &fixedClient{replies: []llm.Response{
			{ToolCalls: []llm.ToolCall{{
				ID:   "call-1",
				Name: "escalate_to_human",
				Parameters: map[string]interface{}{
					"reason":   "customer_request",
					"summary":  "customer asked for a human",
					"priority": "medium",
				},
			}}},
			{Content: "You are being transferred to our support team."},
		}}

		registry := tools.NewRegistry(zerolog.Nop())
		store := escalation.NewMemoryStore(zerolog.Nop())
		require.NoError(t, tools.RegisterEscalationTools(registry, store))

		a := buildAgent(t, client, registry)
		o := New(zerolog.Nop())

		out := o.Run(context.Background(), a, Inbound{
			UserID:  "user-7",
			Channel: "whatsapp",
			Text:    "I want to talk to a person",
		}, Session{ThreadID: "thread-7"})

		assert.NotEqual(t, ApologyText, out.Text)

		pending := store.ListPending()
		require.Len(t, pending, 1)
		assert.Equal(t, "user-7", pending[0].UserID)
		assert.Equal(t, "whatsapp", pending[0].Channel)
		assert.Equal(t, "thread-7", pending[0].ThreadID)
	})
}
