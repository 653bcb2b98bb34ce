// Package llm holds the provider registry and the failover manager that
// selects a working model backend for the agent.
package llm

import (
	"context"
	"errors"
)

// Client is an interface for LLM API providers
type Client interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name
	Name() string
}

// Request contains the request parameters for an LLM call
type Request struct {
	Model        string
	Messages     []Message
	Tools        []ToolSpec
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// Response contains the response from an LLM call
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// Message represents a message in the conversation
type Message struct {
	Role       string                 `json:"role"` // system, user, assistant, tool
	Content    string                 `json:"content"`
	ToolCalls  []ToolCall             `json:"tool_calls,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ToolCall represents a tool invocation requested by the model
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolSpec describes a tool offered to the model
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Descriptor is the static description of one configured LLM backend.
// Immutable after load.
type Descriptor struct {
	Name    string
	APIKey  string
	BaseURL string // keyless endpoints (ollama)
	Model   string
}

// Handle is a selected, probed backend ready for use.
type Handle struct {
	Client     Client
	Descriptor Descriptor
}

// Sentinel errors reported by the manager.
var (
	// ErrNoProviderAvailable means no candidate in the priority list passed
	// its liveness probe.
	ErrNoProviderAvailable = errors.New("no available LLM provider passed health check")

	// ErrProviderNotConfigured means a statically selected provider is
	// missing credentials or a model id.
	ErrProviderNotConfigured = errors.New("provider not configured")
)
