// Package agent wires a selected model backend, the middleware pipeline,
// and the tool registry into a runnable support agent.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/danang/arunika/pkg/llm"
	"github.com/danang/arunika/pkg/middleware"
	"github.com/danang/arunika/pkg/retry"
	"github.com/danang/arunika/pkg/tools"
)

const defaultSystemPrompt = "You are a helpful customer support agent. " +
	"Answer questions about orders, products, and store policies using the tools available to you. " +
	"Escalate to a human agent when you cannot resolve the issue."

// maxToolTurns bounds the model/tool loop per turn.
const maxToolTurns = 10

// Config holds agent construction parameters.
type Config struct {
	Name         string
	Manager      *llm.Manager
	Pipeline     *middleware.Pipeline
	Registry     *tools.Registry
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Retry        *retry.Policy
	Logger       zerolog.Logger
}

// Agent is a built support agent bound to one probed model backend. Build
// it once at startup and reuse it across turns; building performs the
// provider selection probe.
type Agent struct {
	name         string
	handle       *llm.Handle
	pipeline     *middleware.Pipeline
	registry     *tools.Registry
	systemPrompt string
	temperature  float64
	maxTokens    int
	retry        *retry.Policy
	logger       zerolog.Logger
}

// Build selects a model backend and assembles the agent. Selection
// failures (no provider available, static provider misconfigured) are
// fatal here, not at turn time.
func Build(ctx context.Context, cfg Config) (*Agent, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("llm manager is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = middleware.NewPipeline(cfg.Logger)
	}
	if cfg.Name == "" {
		cfg.Name = "support-agent"
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.NewPolicy(cfg.Logger)
	}

	handle, err := cfg.Manager.Select(ctx, llm.SelectOptions{Temperature: cfg.Temperature})
	if err != nil {
		return nil, fmt.Errorf("failed to select LLM provider: %w", err)
	}

	cfg.Logger.Info().
		Str("agent", cfg.Name).
		Str("provider", handle.Descriptor.Name).
		Str("model", handle.Descriptor.Model).
		Msg("Agent built")

	return &Agent{
		name:         cfg.Name,
		handle:       handle,
		pipeline:     cfg.Pipeline,
		registry:     cfg.Registry,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		retry:        cfg.Retry,
		logger:       cfg.Logger,
	}, nil
}

// Name returns the agent's display name.
func (a *Agent) Name() string { return a.name }

// Provider returns the name of the selected backend.
func (a *Agent) Provider() string { return a.handle.Descriptor.Name }

// Respond runs one turn through the pipeline and the model/tool loop. The
// turn's messages are extended in place; the final assistant message is
// the reply. Metadata records whether the model was invoked and which
// stage, if any, short-circuited the turn.
func (a *Agent) Respond(ctx context.Context, turn *middleware.Turn) error {
	if turn.Metadata == nil {
		turn.Metadata = make(map[string]interface{})
	}

	result, err := a.pipeline.RunBefore(turn)
	if err != nil {
		return err
	}
	if result.ShortCircuited() {
		turn.Metadata["model_invoked"] = false
		turn.Metadata["short_circuited_by"] = result.Stage()
		turn.Messages = append(turn.Messages, llm.Message{
			Role:    "assistant",
			Content: result.FinalText(),
		})
		return nil
	}

	if err := a.modelLoop(ctx, turn); err != nil {
		return err
	}
	turn.Metadata["model_invoked"] = true

	return a.pipeline.RunAfter(turn)
}

// modelLoop calls the model, executes requested tools, and feeds results
// back until the model produces a plain reply or the turn budget runs out.
func (a *Agent) modelLoop(ctx context.Context, turn *middleware.Turn) error {
	specs := a.registry.Specs()

	for i := 0; i < maxToolTurns; i++ {
		response, err := a.callModel(ctx, turn.Messages, specs)
		if err != nil {
			return err
		}

		if len(response.ToolCalls) == 0 {
			turn.Messages = append(turn.Messages, llm.Message{
				Role:    "assistant",
				Content: response.Content,
			})
			return nil
		}

		turn.Messages = append(turn.Messages, llm.Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		for _, call := range response.ToolCalls {
			start := time.Now()
			result := a.registry.Execute(ctx, call.Name, call.Parameters)
			a.logger.Debug().
				Str("tool", call.Name).
				Bool("success", result.Success).
				Dur("duration", time.Since(start)).
				Msg("Tool call finished")

			turn.Messages = append(turn.Messages, llm.Message{
				Role:       "tool",
				Content:    result.Text(),
				ToolCallID: call.ID,
			})
		}
	}

	return fmt.Errorf("maximum tool execution turns exceeded")
}

// callModel issues one model call under the shared retry policy.
func (a *Agent) callModel(ctx context.Context, messages []llm.Message, specs []llm.ToolSpec) (*llm.Response, error) {
	request := llm.Request{
		Model:        a.handle.Descriptor.Model,
		Messages:     messages,
		Tools:        specs,
		Temperature:  a.temperature,
		MaxTokens:    a.maxTokens,
		SystemPrompt: a.systemPrompt,
	}

	var response *llm.Response
	err := a.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		response, callErr = a.handle.Client.Call(ctx, request)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	return response, nil
}
