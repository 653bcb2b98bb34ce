// Package memorystore talks to the long-term user memory service.
package memorystore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/danang/arunika/pkg/retry"
)

// Item is one remembered fact about a user.
type Item struct {
	ID       string                 `json:"id"`
	UserID   string                 `json:"user_id"`
	Memory   string                 `json:"memory"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Type returns the memory's type tag, defaulting to "general".
func (i Item) Type() string {
	if i.Metadata != nil {
		if t, ok := i.Metadata["type"].(string); ok && t != "" {
			return t
		}
	}
	return "general"
}

// Client is an HTTP client for the memory service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   *retry.Policy
	logger  zerolog.Logger
}

// NewClient creates a client for the service at baseURL. apiKey may be
// empty for a local deployment.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   retry.NewPolicy(logger),
		logger:  logger,
	}
}

// List returns all memories for a user. When types is non-empty, only
// memories whose type tag matches are returned.
func (c *Client) List(ctx context.Context, userID string, types ...string) ([]Item, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	var out struct {
		Results []Item `json:"results"`
	}
	endpoint := "/memories?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}

	if len(types) == 0 {
		return out.Results, nil
	}

	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	var items []Item
	for _, item := range out.Results {
		if wanted[item.Type()] {
			items = append(items, item)
		}
	}
	return items, nil
}

// Add stores a new memory for a user with the given type tag.
func (c *Client) Add(ctx context.Context, userID, memory, memType string, tags ...string) (*Item, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if memType == "" {
		memType = "general"
	}

	metadata := map[string]interface{}{"type": memType}
	if len(tags) > 0 {
		metadata["tags"] = tags
	}

	var out struct {
		Results []Item `json:"results"`
	}
	err := c.do(ctx, http.MethodPost, "/memories", map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": memory}},
		"user_id":  userID,
		"metadata": metadata,
	}, &out)
	if err != nil {
		return nil, err
	}

	if len(out.Results) > 0 {
		return &out.Results[0], nil
	}
	// Some deployments return nothing on dedup. Echo what we stored.
	return &Item{UserID: userID, Memory: memory, Metadata: metadata}, nil
}

// Delete removes one memory by id.
func (c *Client) Delete(ctx context.Context, memoryID string) error {
	if memoryID == "" {
		return fmt.Errorf("memory_id is required")
	}
	return c.do(ctx, http.MethodDelete, "/memories/"+url.PathEscape(memoryID), nil, nil)
}

// Clear removes all memories for a user, or only those with the given
// type tags when types is non-empty.
func (c *Client) Clear(ctx context.Context, userID string, types ...string) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}

	if len(types) > 0 {
		items, err := c.List(ctx, userID, types...)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := c.Delete(ctx, item.ID); err != nil {
				return err
			}
		}
		return nil
	}

	return c.do(ctx, http.MethodDelete, "/memories?user_id="+url.QueryEscape(userID), nil, nil)
}

// SummarizeUserContext renders a user's memories as a short context block
// for the system prompt.
func (c *Client) SummarizeUserContext(ctx context.Context, userID string) (string, error) {
	items, err := c.List(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "User has no previous history/context.", nil
	}

	var b strings.Builder
	b.WriteString("User Context:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- %s (type=%s)\n", item.Memory, item.Type())
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	fullURL := c.baseURL + endpoint
	return c.retry.Do(ctx, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			c.logger.Error().Int("status", resp.StatusCode).Str("url", fullURL).Msg("Memory service request failed")
			return fmt.Errorf("memory service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return err
		}
		return nil
	})
}
