// Package search provides the outbound web-search tool used by the agent.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint is the Serper search API endpoint.
const DefaultEndpoint = "https://google.serper.dev/search"

// defaultRegion biases search results; carried from the original deployment.
const defaultRegion = "in"

// Client issues web-search requests against a Serper-compatible endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithEndpoint overrides the search endpoint (used by tests and self-hosted proxies).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a search client bound to an API key.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:   DefaultEndpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	Query  string `json:"q"`
	Region string `json:"gl"`
}

// Search performs one web search and returns the provider's response body
// verbatim. A non-200 status is not an error: it is reported as tool output
// of the form "Error: <status> - <body>" so the agent can surface it to the
// user. Transport failures are returned as errors and fail the turn.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	payload, err := json.Marshal(searchRequest{Query: query, Region: defaultRegion})
	if err != nil {
		return "", fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error: %d - %s", resp.StatusCode, string(body)), nil
	}
	return string(body), nil
}
