package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/danang/arunika/pkg/llm"
)

// Parameter describes one input of a tool.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Enum        []string    `json:"enum,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler is the function signature for tool execution.
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Definition defines a tool's metadata and handler.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Result is what a tool invocation produced. A failed invocation carries
// the failure as text so the model can read it and recover.
type Result struct {
	Success  bool                   `json:"success"`
	Output   interface{}            `json:"output,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Text renders the result as the string handed back to the model.
func (r Result) Text() string {
	if !r.Success {
		return fmt.Sprintf("Tool error: %s", r.Error)
	}
	switch out := r.Output.(type) {
	case string:
		return out
	default:
		b, err := json.Marshal(out)
		if err != nil {
			return fmt.Sprintf("%v", out)
		}
		return string(b)
	}
}

// Registry holds the tools an agent may call. Parameters are validated
// against a generated JSON Schema before the handler runs.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	names   []string // registration order
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// Register adds a tool. Duplicate names are rejected.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := generateSchema(def)
	if err != nil {
		return fmt.Errorf("failed to generate schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s is already registered", def.Name)
	}

	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema
	r.names = append(r.names, def.Name)

	r.logger.Info().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Specs returns the registered tools in the shape the model providers
// expect, in registration order.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]llm.ToolSpec, 0, len(r.names))
	for _, name := range r.names {
		def := r.tools[name]
		specs = append(specs, llm.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schemaMap(*def),
		})
	}
	return specs
}

// Execute runs a tool. It never returns an error: unknown tools, invalid
// parameters, handler failures, and timeouts all come back as a failed
// Result so the conversation can continue.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) Result {
	start := time.Now()

	r.mu.RLock()
	tool := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if tool == nil {
		r.logger.Error().Str("tool", name).Msg("Tool not found")
		return Result{Success: false, Error: fmt.Sprintf("tool not found: %s", name)}
	}

	if params == nil {
		params = map[string]interface{}{}
	}
	if err := validateParams(schema, params); err != nil {
		r.logger.Error().Str("tool", name).Err(err).Msg("Parameter validation failed")
		return Result{Success: false, Error: fmt.Sprintf("parameter validation failed: %v", err)}
	}

	r.logger.Debug().Str("tool", name).Msg("Executing tool")

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				errChan <- fmt.Errorf("tool panicked: %v", rec)
			}
		}()
		out, err := tool.Handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- out
	}()

	select {
	case out := <-resultChan:
		duration := time.Since(start)
		r.logger.Debug().Str("tool", name).Dur("duration", duration).Msg("Tool execution completed")
		return Result{
			Success:  true,
			Output:   out,
			Metadata: map[string]interface{}{"duration": duration.Milliseconds()},
		}
	case err := <-errChan:
		duration := time.Since(start)
		r.logger.Error().Str("tool", name).Dur("duration", duration).Err(err).Msg("Tool execution failed")
		return Result{
			Success:  false,
			Error:    err.Error(),
			Metadata: map[string]interface{}{"duration": duration.Milliseconds()},
		}
	case <-timeoutCtx.Done():
		duration := time.Since(start)
		r.logger.Error().Str("tool", name).Dur("duration", duration).Msg("Tool execution timeout")
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("tool execution timeout after %v", r.timeout),
			Metadata: map[string]interface{}{"duration": duration.Milliseconds()},
		}
	}
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}

func schemaMap(def Definition) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			paramSchema["enum"] = param.Enum
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func generateSchema(def Definition) (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap(def)))
}

func validateParams(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}
