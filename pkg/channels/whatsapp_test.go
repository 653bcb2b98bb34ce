package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danang/arunika/pkg/orchestrator"
)

func TestWhatsAppAdapterParse(t *testing.T) {
	adapter := NewWhatsAppAdapter("token", "12345", testLogger())

	t.Run("text message", func(t *testing.T) {
		in, err := adapter.Parse([]byte(`{
			"entry": [{
				"changes": [{
					"value": {
						"messages": [{
							"from": "628123456789",
							"id": "wamid.abc",
							"text": {"body": " need a refund "}
						}]
					}
				}]
			}]
		}`))
		require.NoError(t, err)

		assert.Equal(t, "628123456789", in.UserID)
		assert.Equal(t, "whatsapp", in.Channel)
		assert.Equal(t, "need a refund", in.Text)
		assert.Equal(t, "wamid.abc", in.Metadata["wa_message_id"])
	})

	t.Run("status-only payload", func(t *testing.T) {
		_, err := adapter.Parse([]byte(`{"entry": [{"changes": [{"value": {}}]}]}`))
		assert.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := adapter.Parse([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestWhatsAppAdapterDeliver(t *testing.T) {
	t.Run("posts reply to graph api", func(t *testing.T) {
		var gotPath, gotAuth string
		var gotBody map[string]interface{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		adapter := NewWhatsAppAdapter("secret-token", "555000", testLogger())
		adapter.apiURL = srv.URL

		adapter.Deliver(context.Background(),
			orchestrator.Inbound{UserID: "628123456789"},
			orchestrator.Outbound{Text: "Refund issued."})

		assert.Equal(t, "/555000/messages", gotPath)
		assert.Equal(t, "Bearer secret-token", gotAuth)
		assert.Equal(t, "whatsapp", gotBody["messaging_product"])
		assert.Equal(t, "628123456789", gotBody["to"])
		assert.Equal(t, "Refund issued.", gotBody["text"].(map[string]interface{})["body"])
	})

	t.Run("api failure swallowed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		adapter := NewWhatsAppAdapter("secret-token", "555000", testLogger())
		adapter.apiURL = srv.URL

		adapter.Deliver(context.Background(),
			orchestrator.Inbound{UserID: "628123456789"},
			orchestrator.Outbound{Text: "dropped"})
	})

	t.Run("unconfigured channel is a no-op", func(t *testing.T) {
		adapter := NewWhatsAppAdapter("", "", testLogger())
		adapter.Deliver(context.Background(),
			orchestrator.Inbound{UserID: "x"},
			orchestrator.Outbound{Text: "noop"})
	})
}
