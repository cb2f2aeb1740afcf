package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client calls an external classification service over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// classifyRequest is the request body sent to the service.
type classifyRequest struct {
	URI  string `json:"uri"`
	Text string `json:"text"`
}

// NewClient creates a classifier client for the given endpoint.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Classify posts the item text to the service and decodes the record.
// Service failures come back as ClassificationError so the caller can
// leave the item unenriched for a later run.
func (c *Client) Classify(ctx context.Context, uri, text string) (*Record, error) {
	body, err := json.Marshal(classifyRequest{URI: uri, Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ClassificationError{URI: uri, Reason: "service unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ClassificationError{URI: uri, Reason: fmt.Sprintf("service returned %d", resp.StatusCode)}
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, &ClassificationError{URI: uri, Reason: "undecodable response", Err: err}
	}
	return &rec, nil
}
