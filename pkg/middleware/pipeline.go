// Package middleware implements the ordered stage pipeline wrapped around
// every agent turn. Stages run in declaration order; a before-turn stage may
// short-circuit the whole turn, skipping the model loop and all remaining
// stages.
package middleware

import (
	"fmt"

	"github.com/danang/arunika/pkg/llm"
	"github.com/rs/zerolog"
)

// Turn is the mutable per-turn state the pipeline operates on.
type Turn struct {
	Messages []llm.Message
	Metadata map[string]interface{}
}

// FirstMessage returns the initiating message of the turn, or nil.
func (t *Turn) FirstMessage() *llm.Message {
	if len(t.Messages) == 0 {
		return nil
	}
	return &t.Messages[0]
}

// LastMessage returns the most recent message of the turn, or nil.
func (t *Turn) LastMessage() *llm.Message {
	if len(t.Messages) == 0 {
		return nil
	}
	return &t.Messages[len(t.Messages)-1]
}

// Result is the outcome of one stage: continue down the chain, or terminate
// the turn with a final response.
type Result struct {
	shortCircuit bool
	finalText    string
	stage        string
}

// Continue passes the turn to the next stage.
func Continue() Result {
	return Result{}
}

// ShortCircuit terminates the turn with the given final response text.
func ShortCircuit(stage, finalText string) Result {
	return Result{shortCircuit: true, finalText: finalText, stage: stage}
}

// ShortCircuited reports whether the stage terminated the turn.
func (r Result) ShortCircuited() bool { return r.shortCircuit }

// FinalText returns the terminal response of a short-circuit.
func (r Result) FinalText() string { return r.finalText }

// Stage returns the name of the stage that terminated the turn.
func (r Result) Stage() string { return r.stage }

// Stage is a named pipeline member. A stage participates in a phase by
// implementing BeforeStage, AfterStage, or both.
type Stage interface {
	Name() string
}

// BeforeStage runs before the model/tool loop starts.
type BeforeStage interface {
	Stage
	Before(turn *Turn) (Result, error)
}

// AfterStage runs after the model/tool loop has produced its final message.
// After-turn stages mutate the turn; they cannot short-circuit.
type AfterStage interface {
	Stage
	After(turn *Turn) error
}

// Pipeline is a fixed, ordered stage chain attached once per agent build.
type Pipeline struct {
	stages []Stage
	logger zerolog.Logger
}

// NewPipeline creates a pipeline with the given stages, in order.
func NewPipeline(logger zerolog.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, logger: logger}
}

// RunBefore executes before-turn stages in order. The first short-circuit
// wins and skips everything downstream.
func (p *Pipeline) RunBefore(turn *Turn) (Result, error) {
	for _, s := range p.stages {
		before, ok := s.(BeforeStage)
		if !ok {
			continue
		}

		result, err := before.Before(turn)
		if err != nil {
			return Result{}, fmt.Errorf("middleware %s: %w", s.Name(), err)
		}
		if result.ShortCircuited() {
			p.logger.Info().Str("stage", s.Name()).Msg("Turn short-circuited by middleware")
			return result, nil
		}
	}
	return Continue(), nil
}

// RunAfter executes after-turn stages in order.
func (p *Pipeline) RunAfter(turn *Turn) error {
	for _, s := range p.stages {
		after, ok := s.(AfterStage)
		if !ok {
			continue
		}
		if err := after.After(turn); err != nil {
			return fmt.Errorf("middleware %s: %w", s.Name(), err)
		}
	}
	return nil
}

// Stages returns the stage names in declaration order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}
