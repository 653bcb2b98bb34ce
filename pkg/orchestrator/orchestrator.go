// Package orchestrator drives one conversational turn end to end: derive
// the thread, build the per-turn identity, run the agent, and wrap the
// reply. It is the error boundary of the system.
package orchestrator

import (
	"context"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/danang/arunika/pkg/agent"
	"github.com/danang/arunika/pkg/llm"
	"github.com/danang/arunika/pkg/middleware"
	"github.com/danang/arunika/pkg/tools"
)

// ApologyText is the user-visible reply for any turn-level failure. The
// error itself goes into outbound metadata, never to the user.
const ApologyText = "I apologize, but I encountered an internal error. Please try again later."

// NoResponseText is substituted when the agent produced no reply at all.
const NoResponseText = "No response generated."

// Inbound is one parsed incoming message.
type Inbound struct {
	UserID   string                 `json:"user_id"`
	Channel  string                 `json:"channel"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Session carries conversation continuity hints from the caller.
type Session struct {
	ThreadID string                   `json:"thread_id,omitempty"`
	History  []map[string]interface{} `json:"history,omitempty"`
}

// Outbound is the turn's reply plus its derived metadata.
type Outbound struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Orchestrator runs turns against a built agent.
type Orchestrator struct {
	logger zerolog.Logger
}

// New creates an orchestrator.
func New(logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{logger: logger}
}

// Run executes one turn. It never returns an error: every failure becomes
// an apology response with the error recorded in metadata.
func (o *Orchestrator) Run(ctx context.Context, a *agent.Agent, in Inbound, session Session) Outbound {
	threadID := session.ThreadID
	if threadID == "" {
		threadID = in.UserID
	}

	turnID, err := gonanoid.New()
	if err != nil {
		turnID = "turn-unknown"
	}

	logger := o.logger.With().
		Str("turn_id", turnID).
		Str("thread_id", threadID).
		Str("user_id", in.UserID).
		Str("channel", in.Channel).
		Logger()

	metadata := map[string]interface{}{
		"agent_name": a.Name(),
		"turn_id":    turnID,
		"thread_id":  threadID,
		"user_id":    in.UserID,
		"channel":    in.Channel,
	}
	if len(in.Metadata) > 0 {
		metadata["ingress_metadata"] = in.Metadata
	}

	ctx = tools.ContextWithIdentity(ctx, &tools.Identity{
		UserID:   in.UserID,
		ThreadID: threadID,
		Channel:  in.Channel,
		History:  session.History,
	})

	turn := &middleware.Turn{
		Messages: []llm.Message{{Role: "user", Content: in.Text}},
		Metadata: map[string]interface{}{},
	}

	if err := a.Respond(ctx, turn); err != nil {
		logger.Error().
			Err(err).
			Str("text", in.Text).
			Msg("Turn failed")
		metadata["error"] = err.Error()
		return Outbound{Text: ApologyText, Metadata: metadata}
	}

	for k, v := range turn.Metadata {
		metadata[k] = v
	}

	text := ""
	if last := turn.LastMessage(); last != nil && last.Role == "assistant" {
		text = last.Content
	}
	if text == "" {
		logger.Warn().Msg("Agent produced no reply")
		text = NoResponseText
	}

	logger.Info().Int("messages", len(turn.Messages)).Msg("Turn completed")
	return Outbound{Text: text, Metadata: metadata}
}
