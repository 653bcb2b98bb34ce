package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danang/arunika/pkg/orchestrator"
)

// WebAdapter handles the plain JSON chat channel. The reply travels back
// on the HTTP response itself, so Deliver is a no-op.
type WebAdapter struct{}

// NewWebAdapter creates the web channel adapter.
func NewWebAdapter() *WebAdapter {
	return &WebAdapter{}
}

func (w *WebAdapter) Name() string { return "web" }

// Parse normalizes a {user_id, text, metadata} payload.
func (w *WebAdapter) Parse(raw []byte) (orchestrator.Inbound, error) {
	var payload struct {
		UserID   string                 `json:"user_id"`
		Text     string                 `json:"text"`
		ThreadID string                 `json:"thread_id"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return orchestrator.Inbound{}, fmt.Errorf("invalid payload: %w", err)
	}
	if strings.TrimSpace(payload.UserID) == "" {
		return orchestrator.Inbound{}, fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(payload.Text) == "" {
		return orchestrator.Inbound{}, fmt.Errorf("text is required")
	}

	metadata := payload.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	if payload.ThreadID != "" {
		metadata["thread_id"] = payload.ThreadID
	}

	return orchestrator.Inbound{
		UserID:   payload.UserID,
		Channel:  w.Name(),
		Text:     payload.Text,
		Metadata: metadata,
	}, nil
}

// Present returns the JSON body for the HTTP response.
func (w *WebAdapter) Present(out orchestrator.Outbound) interface{} {
	return map[string]interface{}{
		"response": out.Text,
		"metadata": out.Metadata,
	}
}

// Deliver is a no-op for the web channel.
func (w *WebAdapter) Deliver(ctx context.Context, in orchestrator.Inbound, out orchestrator.Outbound) {}
