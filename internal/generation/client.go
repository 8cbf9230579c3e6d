package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 4 << 20

// Params is the request sent to the generation API.
type Params struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Quality string `json:"quality,omitempty"`
}

// Generator performs one image generation call.
type Generator interface {
	Generate(ctx context.Context, params Params) (*Response, error)
}

// Client talks to a Zhipu-compatible images/generations endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client. The timeout bounds the whole HTTP exchange and
// is independent of any deadline on the caller's context.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Generate posts params and decodes the results collection item by item.
func (c *Client) Generate(ctx context.Context, params Params) (*Response, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	var result struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// A null or non-array data field is treated as an empty collection.
	var items []json.RawMessage
	if data := bytes.TrimSpace(result.Data); len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(result.Data, &items); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
	}

	return &Response{Data: classifyItems(items)}, nil
}
