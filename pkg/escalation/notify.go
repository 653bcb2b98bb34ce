package escalation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookNotifier POSTs escalation events to a set of operator endpoints.
// Delivery is best-effort: failures are logged and never surface to the
// conversation that triggered the escalation.
type WebhookNotifier struct {
	urls   []string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier creates a notifier for the given endpoint URLs.
func NewWebhookNotifier(urls []string, logger zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		urls:   urls,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// EscalationCreated delivers the event to every configured endpoint.
func (w *WebhookNotifier) EscalationCreated(e Escalation) {
	payload, err := json.Marshal(map[string]interface{}{
		"event":      "escalation.created",
		"escalation": e,
	})
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to encode escalation webhook payload")
		return
	}

	for _, url := range w.urls {
		resp, err := w.client.Post(url, "application/json", bytes.NewReader(payload))
		if err != nil {
			w.logger.Warn().Err(err).Str("url", url).Str("escalation_id", e.ID).Msg("Escalation webhook delivery failed")
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			w.logger.Warn().Int("status", resp.StatusCode).Str("url", url).Str("escalation_id", e.ID).Msg("Escalation webhook rejected")
			continue
		}
		w.logger.Debug().Str("url", url).Str("escalation_id", e.ID).Msg("Escalation webhook delivered")
	}
}
