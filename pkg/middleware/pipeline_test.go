package middleware

import (
	"errors"
	"os"
	"testing"

	"github.com/danang/arunika/pkg/llm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func userTurn(text string) *Turn {
	return &Turn{
		Messages: []llm.Message{{Role: "user", Content: text}},
		Metadata: map[string]interface{}{},
	}
}

// recordingStage notes the order it ran in.
type recordingStage struct {
	name   string
	order  *[]string
	result Result
	err    error
}

func (s *recordingStage) Name() string { return s.name }

func (s *recordingStage) Before(turn *Turn) (Result, error) {
	*s.order = append(*s.order, s.name)
	return s.result, s.err
}

// recordingAfterStage notes after-phase execution order.
type recordingAfterStage struct {
	name  string
	order *[]string
	err   error
}

func (s *recordingAfterStage) Name() string { return s.name }

func (s *recordingAfterStage) After(turn *Turn) error {
	*s.order = append(*s.order, s.name)
	return s.err
}

func TestPipelineBefore(t *testing.T) {
	t.Run("should run before stages in declaration order", func(t *testing.T) {
		var order []string
		p := NewPipeline(testLogger(),
			&recordingStage{name: "a", order: &order},
			&recordingStage{name: "b", order: &order},
		)

		result, err := p.RunBefore(userTurn("hi"))
		require.NoError(t, err)
		assert.False(t, result.ShortCircuited())
		assert.Equal(t, []string{"a", "b"}, order)
	})

	t.Run("should stop at the first short-circuit", func(t *testing.T) {
		var order []string
		p := NewPipeline(testLogger(),
			&recordingStage{name: "a", order: &order, result: ShortCircuit("a", "blocked")},
			&recordingStage{name: "b", order: &order},
		)

		result, err := p.RunBefore(userTurn("hi"))
		require.NoError(t, err)
		assert.True(t, result.ShortCircuited())
		assert.Equal(t, "blocked", result.FinalText())
		assert.Equal(t, "a", result.Stage())
		assert.Equal(t, []string{"a"}, order)
	})

	t.Run("should propagate stage errors with stage name", func(t *testing.T) {
		var order []string
		p := NewPipeline(testLogger(),
			&recordingStage{name: "broken", order: &order, err: errors.New("boom")},
		)

		_, err := p.RunBefore(userTurn("hi"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("should skip after-only stages in the before phase", func(t *testing.T) {
		var order []string
		p := NewPipeline(testLogger(),
			&recordingAfterStage{name: "after-only", order: &order},
			&recordingStage{name: "before", order: &order},
		)

		_, err := p.RunBefore(userTurn("hi"))
		require.NoError(t, err)
		assert.Equal(t, []string{"before"}, order)
	})
}

func TestPipelineAfter(t *testing.T) {
	t.Run("should run after stages in declaration order", func(t *testing.T) {
		var order []string
		p := NewPipeline(testLogger(),
			&recordingAfterStage{name: "redact", order: &order},
			&recordingAfterStage{name: "sanitize", order: &order},
		)

		require.NoError(t, p.RunAfter(userTurn("hi")))
		assert.Equal(t, []string{"redact", "sanitize"}, order)
	})

	t.Run("should propagate after-stage errors", func(t *testing.T) {
		var order []string
		p := NewPipeline(testLogger(),
			&recordingAfterStage{name: "broken", order: &order, err: errors.New("boom")},
		)

		err := p.RunAfter(userTurn("hi"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
	})
}

func TestCanonicalStageOrder(t *testing.T) {
	// Redaction must see un-sanitized text; the sanitizer trims last.
	p := NewPipeline(testLogger(),
		NewContentGuard([]string{"hack"}),
		NewPIIRedactor(),
		NewThinkSanitizer(),
	)

	turn := &Turn{Messages: []llm.Message{
		{Role: "user", Content: "what is your email?"},
		{Role: "assistant", Content: "<think>reply with support@example.com</think>  support@example.com "},
	}}

	result, err := p.RunBefore(turn)
	require.NoError(t, err)
	require.False(t, result.ShortCircuited())

	require.NoError(t, p.RunAfter(turn))

	final := turn.LastMessage().Content
	assert.NotContains(t, final, "support@example.com")
	assert.NotContains(t, final, "<think>")
	assert.Equal(t, final, Sanitize(final)) // already trimmed
}
