package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/danang/arunika/pkg/orchestrator"
)

// WhatsAppAdapter handles WhatsApp Cloud API webhook payloads and sends
// replies through the graph API.
type WhatsAppAdapter struct {
	apiURL  string
	token   string
	phoneID string
	http    *http.Client
	logger  zerolog.Logger
}

// NewWhatsAppAdapter creates the adapter. token and phoneID may be empty
// when the channel is not configured; Deliver then degrades to a logged
// no-op.
func NewWhatsAppAdapter(token, phoneID string, logger zerolog.Logger) *WhatsAppAdapter {
	return &WhatsAppAdapter{
		apiURL:  "https://graph.facebook.com/v21.0",
		token:   token,
		phoneID: phoneID,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

func (w *WhatsAppAdapter) Name() string { return "whatsapp" }

// Parse normalizes a WhatsApp Cloud API webhook payload, taking the first
// text message of the first change.
func (w *WhatsAppAdapter) Parse(raw []byte) (orchestrator.Inbound, error) {
	var payload struct {
		Entry []struct {
			Changes []struct {
				Value struct {
					Messages []struct {
						From string `json:"from"`
						ID   string `json:"id"`
						Text struct {
							Body string `json:"body"`
						} `json:"text"`
					} `json:"messages"`
				} `json:"value"`
			} `json:"changes"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return orchestrator.Inbound{}, fmt.Errorf("invalid whatsapp payload: %w", err)
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				text := strings.TrimSpace(msg.Text.Body)
				if msg.From == "" || text == "" {
					continue
				}
				return orchestrator.Inbound{
					UserID:  msg.From,
					Channel: w.Name(),
					Text:    text,
					Metadata: map[string]interface{}{
						"wa_message_id": msg.ID,
					},
				}, nil
			}
		}
	}
	return orchestrator.Inbound{}, fmt.Errorf("payload carries no text message")
}

// Present returns the acknowledgement body for the webhook response.
func (w *WhatsAppAdapter) Present(out orchestrator.Outbound) interface{} {
	return map[string]interface{}{"status": "ok"}
}

// Deliver sends the reply back to the sender's number. Failures are
// logged, never returned.
func (w *WhatsAppAdapter) Deliver(ctx context.Context, in orchestrator.Inbound, out orchestrator.Outbound) {
	if w.token == "" || w.phoneID == "" {
		w.logger.Warn().Msg("WhatsApp channel not configured, dropping reply")
		return
	}

	body, err := json.Marshal(map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                in.UserID,
		"type":              "text",
		"text":              map[string]string{"body": out.Text},
	})
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to encode whatsapp reply")
		return
	}

	url := fmt.Sprintf("%s/%s/messages", w.apiURL, w.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to build whatsapp request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.http.Do(req)
	if err != nil {
		w.logger.Error().Err(err).Str("to", in.UserID).Msg("Failed to deliver whatsapp reply")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		w.logger.Error().Int("status", resp.StatusCode).Str("to", in.UserID).Msg("WhatsApp rejected reply")
	}
}
