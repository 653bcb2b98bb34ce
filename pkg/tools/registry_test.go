package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echo the input back.",
		Parameters: []Parameter{
			{Name: "text", Type: "string", Description: "Text to echo.", Required: true},
			{Name: "mode", Type: "string", Description: "Echo mode.", Enum: []string{"plain", "loud"}},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			text, _ := params["text"].(string)
			return text, nil
		},
	}
}

func TestRegister(t *testing.T) {
	t.Run("rejects duplicates", func(t *testing.T) {
		registry := NewRegistry(zerolog.Nop())
		require.NoError(t, registry.Register(echoTool()))

		err := registry.Register(echoTool())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("rejects missing handler", func(t *testing.T) {
		registry := NewRegistry(zerolog.Nop())
		err := registry.Register(Definition{Name: "broken", Description: "no handler"})
		require.Error(t, err)
	})

	t.Run("rejects unknown parameter type", func(t *testing.T) {
		registry := NewRegistry(zerolog.Nop())
		def := echoTool()
		def.Parameters[0].Type = "text"
		require.Error(t, registry.Register(def))
	})
}

func TestSpecs(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	require.NoError(t, registry.Register(echoTool()))
	require.NoError(t, registry.Register(Definition{
		Name:        "noop",
		Description: "Do nothing.",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return "ok", nil
		},
	}))

	specs := registry.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "echo", specs[0].Name)
	assert.Equal(t, "noop", specs[1].Name)

	schema := specs[0].InputSchema
	assert.Equal(t, "object", schema["type"])
	props := schema["properties"].(map[string]interface{})
	assert.Contains(t, props, "text")
	assert.Equal(t, []string{"text"}, schema["required"])
}

func TestExecute(t *testing.T) {
	t.Run("runs the handler", func(t *testing.T) {
		registry := NewRegistry(zerolog.Nop())
		require.NoError(t, registry.Register(echoTool()))

		result := registry.Execute(context.Background(), "echo", map[string]interface{}{"text": "hello"})
		require.True(t, result.Success)
		assert.Equal(t, "hello", result.Text())
	})

	t.Run("unknown tool fails without panic", func(t *testing.T) {
		registry := NewRegistry(zerolog.Nop())

		result := registry.Execute(context.Background(), "missing", nil)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "tool not found")
	})

	t.Run("missing required parameter fails validation", func(t *testing.T) {
		registry := NewRegistry(zerolog.Nop())
		require.NoError(t, registry.Register(echoTool()))

		result := registry.Execute(context.Background(), "echo", map[string]interface{}{})
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "parameter validation failed")
	})

	t.Run("unexpected parameter fails validation", func(t *testing.T) {
		registry := NewRegistry(zerolog.Nop())
		require.NoError(t, registry.Register(echoTool()))

		result := registry.Execute(context.Background(), "echo", map[string]interface{}{
			"text":  "hi",
			"bogus": true,
		})
		assert.False(t, result.Success)
	})

	t.Run("enum violation fails validation", func(t *testing.T) {
		registry := NewRegistry(zerolog.Nop())
		require.NoError(t, registry.Register(echoTool()))

		result := registry.Execute(context.Background(), "echo", map[string]interface{}{
			"text": "hi",
			"mode": "whisper",
		})
		assert.False(t, result.Success)
	})

	t.Run("handler error becomes a failed result", func(t *testing.T) {
		registry := NewRegistry(zerolog.Nop())
		require.NoError(t, registry.Register(Definition{
			Name:        "flaky",
			Description: "Always fails.",
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return nil, fmt.Errorf("upstream unavailable")
			},
		}))

		result := registry.Execute(context.Background(), "flaky", nil)
		assert.False(t, result.Success)
		assert.Equal(t, "Tool error: upstream unavailable", result.Text())
	})

	t.Run("handler panic becomes a failed result", func(t *testing.T) {
		registry := NewRegistry(zerolog.Nop())
		require.NoError(t, registry.Register(Definition{
			Name:        "bomb",
			Description: "Always panics.",
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				panic("boom")
			},
		}))

		result := registry.Execute(context.Background(), "bomb", nil)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "tool panicked")
	})
}

func TestResultText(t *testing.T) {
	assert.Equal(t, "plain text", Result{Success: true, Output: "plain text"}.Text())
	assert.Equal(t, `{"count":2}`, Result{Success: true, Output: map[string]interface{}{"count": 2}}.Text())
	assert.Equal(t, "Tool error: nope", Result{Success: false, Error: "nope"}.Text())
}

func TestIdentityContext(t *testing.T) {
	assert.Nil(t, IdentityFromContext(context.Background()))

	id := &Identity{UserID: "user-1", ThreadID: "thread-1", Channel: "web"}
	ctx := ContextWithIdentity(context.Background(), id)
	assert.Equal(t, id, IdentityFromContext(ctx))
}
