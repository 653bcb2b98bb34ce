// Package knowledge talks to the retrieval service that indexes FAQs,
// shop policies, and company documents.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/danang/arunika/pkg/retry"
)

// Mode selects the retrieval strategy for a query.
type Mode string

const (
	ModeGlobal Mode = "global"
	ModeLocal  Mode = "local"
	ModeHybrid Mode = "hybrid"
	ModeNaive  Mode = "naive"
)

// Client is an HTTP client for the knowledge base service.
type Client struct {
	baseURL string
	http    *http.Client
	retry   *retry.Policy
	logger  zerolog.Logger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
		retry:   retry.NewPolicy(logger),
		logger:  logger,
	}
}

// Query asks the knowledge base a question and returns the answer text.
func (c *Client) Query(ctx context.Context, query string, mode Mode) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is required")
	}
	if mode == "" {
		mode = ModeGlobal
	}

	var out struct {
		Response string `json:"response"`
	}
	err := c.do(ctx, http.MethodPost, "/query", map[string]interface{}{
		"query": query,
		"mode":  string(mode),
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Response, nil
}

// InsertText adds a document to the knowledge base.
func (c *Client) InsertText(ctx context.Context, text, description string) error {
	payload := map[string]interface{}{"text": text}
	if description != "" {
		payload["description"] = description
	}
	return c.do(ctx, http.MethodPost, "/documents/text", payload, nil)
}

// Healthy reports whether the service is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 400
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := c.baseURL + endpoint
	return c.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			c.logger.Error().Int("status", resp.StatusCode).Str("url", url).Msg("Knowledge base request failed")
			return fmt.Errorf("knowledge base returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}

		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}
